// Package cli implements the interactive server console and the tabular
// output of the load driver.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/energizer-project/war/internal/config"
	"github.com/energizer-project/war/internal/events"
	"github.com/energizer-project/war/internal/network"
	"github.com/energizer-project/war/internal/protocol"
	"github.com/energizer-project/war/internal/server"
)

// CLI is the interactive console of a running war server.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	sessions *server.Manager
	listener *network.TCPListener

	in  io.Reader
	out io.Writer
}

// NewCLI creates a console reading commands from in and writing to out.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, sessions *server.Manager, listener *network.TCPListener, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		sessions: sessions,
		listener: listener,
		in:       in,
		out:      out,
	}
}

// Start reads and executes commands until ctx is done, the input ends, or
// the operator quits.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nwar console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "war> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			quit, err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:])
			if err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
			if quit {
				return
			}
		}
	}
}

// execute runs one command and reports whether the console should exit.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) (bool, error) {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "sessions", "ls":
		c.printSessions()
	case "session":
		return false, c.printSession(args)
	case "connections", "conns":
		c.printConnections()
	case "abort":
		return false, c.cmdAbort(args)
	case "setconfig":
		return false, c.cmdSetConfig(ctx, args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down war server...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
		return true, nil
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false, nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, `
Commands:
  status               Session counters and pairing slot
  sessions             List active sessions
  session <id>         Show one session
  connections          List live player connections
  abort <id> [reason]  Tear down an active session
  setconfig <k> <v>    Update a server setting (e.g. enforce_dealt_cards false)
  quit                 Shut the server down
  help                 Show this help message`)
}

func (c *CLI) newTable(header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func (c *CLI) printStatus() {
	stats := c.sessions.Stats()

	tw := c.newTable([]string{"Active", "Started", "Completed", "Aborted", "Rounds", "Waiting", "Connections"})
	tw.Append([]string{
		strconv.Itoa(stats.Active),
		strconv.FormatUint(stats.Started, 10),
		strconv.FormatUint(stats.Completed, 10),
		strconv.FormatUint(stats.Aborted, 10),
		strconv.FormatUint(stats.RoundsPlayed, 10),
		strconv.Itoa(c.listener.Waiting()),
		strconv.Itoa(c.listener.Registry().Count()),
	})
	tw.Render()
}

func (c *CLI) printSessions() {
	sessions := c.sessions.GetAllInfo()
	if len(sessions) == 0 {
		fmt.Fprintln(c.out, "No active sessions")
		return
	}

	tw := c.newTable([]string{"ID", "Player A", "Player B", "State", "Round", "Score", "Duration"})
	for _, s := range sessions {
		tw.Append([]string{
			s.ID,
			s.RemoteA,
			s.RemoteB,
			s.State.String(),
			fmt.Sprintf("%d/%d", s.Round, protocol.HandSize),
			fmt.Sprintf("%+d", s.ScoreA),
			s.Duration,
		})
	}
	tw.Render()
}

func (c *CLI) printSession(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: session <id>")
	}
	s, ok := c.sessions.GetSession(args[0])
	if !ok {
		return fmt.Errorf("session %s not found", args[0])
	}

	fmt.Fprintf(c.out, "\n  Session:   %s\n", s.ID)
	fmt.Fprintf(c.out, "  Player A:  %s (%+d)\n", s.RemoteA, s.ScoreA)
	fmt.Fprintf(c.out, "  Player B:  %s (%+d)\n", s.RemoteB, s.ScoreB)
	fmt.Fprintf(c.out, "  State:     %s\n", s.State)
	fmt.Fprintf(c.out, "  Round:     %d\n", s.Round)
	fmt.Fprintf(c.out, "  Duration:  %s\n\n", s.Duration)
	return nil
}

func (c *CLI) printConnections() {
	conns := c.listener.Registry().GetAll()
	if len(conns) == 0 {
		fmt.Fprintln(c.out, "No live connections")
		return
	}

	tw := c.newTable([]string{"ID", "Remote", "Bytes In", "Bytes Out"})
	for id, conn := range conns {
		tw.Append([]string{
			strconv.FormatUint(id, 10),
			conn.RemoteAddr().String(),
			strconv.FormatUint(conn.BytesIn(), 10),
			strconv.FormatUint(conn.BytesOut(), 10),
		})
	}
	tw.Render()
}

func (c *CLI) cmdAbort(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: abort <id> [reason]")
	}
	reason := "aborted by operator"
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}
	if !c.sessions.Abort(args[0], reason) {
		return fmt.Errorf("session %s not found", args[0])
	}
	fmt.Fprintf(c.out, "Session %s aborted\n", args[0])
	return nil
}

func (c *CLI) cmdSetConfig(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	value := parseValue(strings.Join(args[1:], " "))

	previous := c.cfg.GetServer()
	if err := c.cfg.UpdateServerField(key, value); err != nil {
		return err
	}
	if v := config.Validate(c.cfg); !v.IsValid() {
		c.cfg.SetServer(previous)
		return fmt.Errorf("%s: %s", v.Errors[0].Field, v.Errors[0].Message)
	}

	if c.cfg.Path() != "" {
		if err := c.cfg.Save(); err != nil {
			return err
		}
	}

	c.eventBus.Emit(ctx, events.Event{
		Type:   events.EventConfigChanged,
		Source: "cli",
		Payload: events.ConfigChangedPayload{
			Section: "server",
			Key:     key,
			Value:   value,
		},
	})

	fmt.Fprintf(c.out, "Config updated: %s = %v\n", key, value)
	return nil
}

// parseValue turns console input into the JSON type a config field expects.
func parseValue(s string) interface{} {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
