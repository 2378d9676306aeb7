package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/energizer-project/war/internal/events"
)

// Driver runs Count clients against Addr with at most Concurrency of them
// in flight at once.
type Driver struct {
	Addr        string
	Count       int
	Concurrency int
	Options     []Option

	// EventBus, when set, receives a load_report event after each run.
	EventBus *events.EventBus
}

// Report aggregates the outcome of one driver run.
type Report struct {
	Requested int           `json:"requested"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Won       int           `json:"won"`
	Lost      int           `json:"lost"`
	Drew      int           `json:"drew"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

func (r *Report) add(res Result, err error) {
	if err != nil {
		r.Failed++
		return
	}
	r.Completed++
	switch res.Outcome {
	case OutcomeWon:
		r.Won++
	case OutcomeLost:
		r.Lost++
	default:
		r.Drew++
	}
}

// Run plays every client and returns the aggregate. Failed clients are
// counted in the report; clients not started before ctx ends count as
// failed too.
func (d *Driver) Run(ctx context.Context) Report {
	start := time.Now()
	report := Report{Requested: d.Count}
	if d.Count <= 0 {
		report.Requested = 0
		d.finish(ctx, &report, start)
		return report
	}

	limit := d.Concurrency
	if limit < 1 {
		limit = 1
	}

	c := New(d.Addr, d.Options...)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(limit)

	for i := 0; i < d.Count; i++ {
		if ctx.Err() != nil {
			mu.Lock()
			report.Failed += d.Count - i
			mu.Unlock()
			break
		}
		// Go blocks while limit clients are in flight.
		g.Go(func() error {
			res, err := c.Play(ctx)
			c.logResult(res, err)

			mu.Lock()
			report.add(res, err)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	d.finish(ctx, &report, start)
	return report
}

func (d *Driver) finish(ctx context.Context, report *Report, start time.Time) {
	report.Elapsed = time.Since(start)

	log.Info().
		Str("target", d.Addr).
		Int("failed", report.Failed).
		Dur("elapsed", report.Elapsed).
		Msgf("%d completed clients", report.Completed)

	if d.EventBus == nil {
		return
	}
	d.EventBus.Emit(context.WithoutCancel(ctx), events.Event{
		Type:   events.EventLoadReport,
		Source: "driver",
		Payload: events.LoadReportPayload{
			Target:    d.Addr,
			Requested: report.Requested,
			Completed: report.Completed,
			Failed:    report.Failed,
			Won:       report.Won,
			Lost:      report.Lost,
			Drew:      report.Drew,
			Elapsed:   report.Elapsed,
		},
	})
}
