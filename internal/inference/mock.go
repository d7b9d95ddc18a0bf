package inference

import (
	"context"
	"time"

	"github.com/normanking/impetus/internal/routing"
	"github.com/normanking/impetus/internal/tools"
)

// Mock is the deterministic offline backend. It never fails and never leaves
// the process, so it serves both the mock routing path and tests.
type Mock struct{}

// NewMock creates the mock backend.
func NewMock() *Mock { return &Mock{} }

func (m *Mock) Name() string                  { return "mock" }
func (m *Mock) Path() routing.Path            { return routing.PathMock }
func (m *Mock) Timeout() time.Duration        { return time.Second }
func (m *Mock) Ready(Capabilities, bool) bool { return true }

// Complete always defers. The real decision quality comes from the other
// backends; the mock exists so a fully offline device still completes cycles.
func (m *Mock) Complete(ctx context.Context, req *Request) (*Response, error) {
	return &Response{
		Success:    true,
		Text:       "deferring: no inference backend reachable",
		Calls:      []tools.Call{deferCall("no inference backend reachable")},
		Confidence: 0.3,
	}, nil
}

func deferCall(reason string) tools.Call {
	return tools.Call{
		Name:      "defer_action",
		Arguments: map[string]any{"reason": reason},
	}
}
