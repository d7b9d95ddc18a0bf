package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/normanking/impetus/internal/logging"
)

// Notifier is the outbound notification contract. Implementations deliver a
// nudge to the user (push, local notification, webhook) and may fail; the
// engine treats delivery as fire-and-forget.
type Notifier interface {
	Send(ctx context.Context, habitID, tone, message string, at time.Time) error
}

// Dispatcher is the single log-and-ignore boundary for notification side
// effects. Handlers call Dispatch instead of wrapping every Send in their own
// error handling; a delivery failure never fails a cycle.
type Dispatcher struct {
	notifier Notifier
	log      *logging.Logger
}

// NewDispatcher wraps a notifier. A nil notifier yields a dispatcher whose
// Ready method reports false.
func NewDispatcher(n Notifier) *Dispatcher {
	return &Dispatcher{
		notifier: n,
		log:      logging.Global().WithComponent("Notify"),
	}
}

// Ready reports whether an outbound channel is configured. Handlers check
// this reachability precondition before committing to a nudge.
func (d *Dispatcher) Ready() bool {
	return d != nil && d.notifier != nil
}

// Dispatch sends asynchronously, logging and swallowing any error.
func (d *Dispatcher) Dispatch(habitID, tone, message string, at time.Time) {
	if !d.Ready() {
		d.log.Warn("no notifier configured, dropping nudge for %s", habitID)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.notifier.Send(ctx, habitID, tone, message, at); err != nil {
			d.log.Error("notification for %s failed: %v", habitID, err)
		}
	}()
}

// ConsoleNotifier writes nudges to an io.Writer, the default delivery channel
// when no external integration is configured.
type ConsoleNotifier struct {
	Out io.Writer
}

// Send implements Notifier.
func (c *ConsoleNotifier) Send(ctx context.Context, habitID, tone, message string, at time.Time) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintf(out, "[%s] nudge (%s, %s): %s\n", at.Format("15:04"), habitID, tone, message)
	return err
}

// FuncNotifier adapts a function to the Notifier interface, for tests and
// the demo CLI.
type FuncNotifier func(ctx context.Context, habitID, tone, message string, at time.Time) error

// Send implements Notifier.
func (f FuncNotifier) Send(ctx context.Context, habitID, tone, message string, at time.Time) error {
	return f(ctx, habitID, tone, message, at)
}
