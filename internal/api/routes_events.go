package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/war/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 256
)

// streamedEvents is what /api/events forwards when no filter is given.
var streamedEvents = append(append([]events.EventType{}, events.SessionEventTypes...),
	events.EventLoadReport,
	events.EventHeartbeat,
	events.EventConfigChanged,
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents upgrades to a websocket and streams bus events as JSON
// text frames. ?types=a,b narrows the stream. Slow readers drop events.
func (s *Server) handleEvents(c *gin.Context) {
	types := streamedEvents
	if raw := c.Query("types"); raw != "" {
		types = nil
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, events.EventType(t))
			}
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	name := "ws-" + uuid.NewString()
	send := make(chan []byte, wsSendBuffer)
	forward := func(ctx context.Context, e events.Event) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		select {
		case send <- data:
		default:
		}
		return nil
	}

	for _, t := range types {
		s.eventBus.Subscribe(t, name, forward)
	}
	defer func() {
		for _, t := range types {
			s.eventBus.Unsubscribe(t, name)
		}
	}()

	log.Debug().Str("subscriber", name).Int("types", len(types)).Msg("event stream opened")

	done := make(chan struct{})
	go readPump(conn, done)
	writePump(conn, send, done, s.eventBus.StopCh())

	log.Debug().Str("subscriber", name).Msg("event stream closed")
}

// readPump discards client frames and closes done when the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-done:
			return
		}
	}
}
