package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/normanking/impetus/internal/inference/calltext"
	"github.com/normanking/impetus/internal/logging"
	"github.com/normanking/impetus/internal/routing"
	"github.com/normanking/impetus/internal/tools"
)

// DeferConfidence marks the guaranteed fallback response.
const DeferConfidence = 0.1

// Client walks the fallback chain for one cycle. It reports every attempt to
// the shared routing stats and is guaranteed to return a usable response; no
// backend error ever escapes to the orchestrator.
type Client struct {
	backends []Backend
	caps     Capabilities
	stats    *routing.Stats
	log      *logging.Logger
}

// NewClient builds a client over the chain in default attempt order
// (cloud, hybrid, local, mock). Capabilities come from the startup probe.
func NewClient(backends []Backend, caps Capabilities, stats *routing.Stats) *Client {
	return &Client{
		backends: backends,
		caps:     caps,
		stats:    stats,
		log:      logging.Global().WithComponent("Inference"),
	}
}

// Capabilities returns the injected startup probe result.
func (c *Client) Capabilities() Capabilities { return c.caps }

// Infer attempts the chain in the order implied by the routing decision and
// returns the first usable response. Every non-final attempt is bounded by
// the backend's timeout; on timeout or error the chain falls through. When
// everything fails a synthetic defer response is returned.
func (c *Client) Infer(ctx context.Context, decision routing.Decision, online bool, req *Request) *Response {
	var lastErr error

	for _, b := range c.order(decision) {
		if !b.Ready(c.caps, online) {
			c.log.Debug("skipping %s: not ready", b.Name())
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, b.Timeout())
		start := time.Now()
		resp, err := b.Complete(attemptCtx, req)
		cancel()
		elapsed := time.Since(start)

		if err != nil || resp == nil || !resp.Success {
			if err == nil {
				err = fmt.Errorf("backend %s returned unusable response", b.Name())
			}
			lastErr = err
			c.stats.Report(b.Path(), elapsed, false)
			c.log.Warn("%s attempt failed after %v: %v", b.Name(), elapsed, err)
			continue
		}

		c.stats.Report(b.Path(), elapsed, true)
		c.normalize(resp, b, elapsed)
		c.log.Info("%s answered in %v (%d calls, %.0f tok/s)",
			b.Name(), elapsed, len(resp.Calls), resp.TokensPerSec)
		return resp
	}

	reason := "all inference backends unavailable"
	if lastErr != nil {
		reason = fmt.Sprintf("all inference backends failed, last error: %v", lastErr)
	}
	c.log.Warn("falling back to deterministic defer: %s", reason)
	return Defer(reason)
}

// order arranges the chain for the routed path. The chain itself is the
// safety net; the decision only biases which stage is tried first.
func (c *Client) order(d routing.Decision) []Backend {
	switch d.Path {
	case routing.PathLocal:
		return c.sorted(routing.PathLocal, routing.PathCloud, routing.PathMock)
	case routing.PathMock:
		return c.sorted(routing.PathMock, routing.PathLocal, routing.PathCloud)
	default:
		return c.sorted(routing.PathCloud, routing.PathLocal, routing.PathMock)
	}
}

func (c *Client) sorted(order ...routing.Path) []Backend {
	out := make([]Backend, 0, len(c.backends))
	for _, p := range order {
		for _, b := range c.backends {
			if b.Path() == p {
				out = append(out, b)
			}
		}
	}
	return out
}

// normalize fills the envelope fields and, when the backend produced no
// structured calls, runs the textual micro-parser over the free text.
// Text-extracted calls cap confidence at 0.5.
func (c *Client) normalize(resp *Response, b Backend, elapsed time.Duration) {
	resp.Backend = b.Name()
	resp.Path = b.Path()
	resp.Latency = elapsed

	if len(resp.Calls) == 0 && resp.Text != "" {
		parsed, err := calltext.Parse(resp.Text)
		if err != nil {
			c.log.Debug("no parseable call in %s text output", b.Name())
			return
		}
		resp.Calls = []tools.Call{{Name: parsed.Name, Arguments: parsed.Arguments}}
		if resp.Confidence > 0.5 {
			resp.Confidence = 0.5
		}
	}
}

// Defer builds the guaranteed fallback response: well-formed, successful,
// exactly one synthetic defer action, low confidence.
func Defer(reason string) *Response {
	return &Response{
		Success:    true,
		Text:       reason,
		Calls:      []tools.Call{deferCall(reason)},
		Backend:    "defer",
		Path:       routing.PathMock,
		Confidence: DeferConfidence,
	}
}
