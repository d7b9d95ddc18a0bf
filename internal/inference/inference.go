// Package inference executes the routed decision request through an ordered
// fallback chain of backends (cloud REST, hybrid relay, pure on-device,
// deterministic defer), normalizing every backend to one Response shape. The
// chain never returns an error to the orchestrator; when all backends fail it
// synthesizes a well-formed defer response.
package inference

import (
	"context"
	"time"

	"github.com/normanking/impetus/internal/logging"
	"github.com/normanking/impetus/internal/routing"
	"github.com/normanking/impetus/internal/tools"
)

// LocalThroughputFloor is the tokens/sec above which a hybrid response is
// considered to have been served by the on-device model rather than relayed.
const LocalThroughputFloor = 25.0

// Request is one normalized inference request.
type Request struct {
	System      string
	Prompt      string
	Tools       []*tools.Tool
	Temperature float64
	MaxTokens   int
}

// Response is the single normalized result shape every backend produces.
type Response struct {
	Success       bool           `json:"success"`
	Text          string         `json:"text,omitempty"`
	Calls         []tools.Call   `json:"calls,omitempty"`
	TokensPerSec  float64        `json:"tokens_per_sec,omitempty"`
	Latency       time.Duration  `json:"latency"`
	Backend       string         `json:"backend"`
	Path          routing.Path   `json:"path"`
	Confidence    float64        `json:"confidence"`
	ServedLocally bool           `json:"served_locally"`
}

// Backend is one stage of the fallback chain.
type Backend interface {
	// Name identifies the backend in logs and audit records.
	Name() string

	// Path is the routing path this backend's attempts are booked under.
	Path() routing.Path

	// Timeout bounds a single attempt.
	Timeout() time.Duration

	// Ready reports whether this backend can be attempted given the startup
	// capability probe and current connectivity.
	Ready(caps Capabilities, online bool) bool

	// Complete performs one inference attempt. The context carries the
	// per-attempt deadline; implementations must leave no state behind on
	// any exit path.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ═══════════════════════════════════════════════════════════════════════════════
// CAPABILITIES
// ═══════════════════════════════════════════════════════════════════════════════

// Capabilities is the result of the one-time startup probe. It is computed
// once in main and injected into the chain; backends read it, never write it.
type Capabilities struct {
	CloudConfigured  bool      `json:"cloud_configured"`   // API key present
	HybridReachable  bool      `json:"hybrid_reachable"`   // relay host answered
	HybridModelReady bool      `json:"hybrid_model_ready"` // model present on relay
	LocalReachable   bool      `json:"local_reachable"`    // on-device server answered
	LocalModelReady  bool      `json:"local_model_ready"`  // model pulled on device
	ProbedAt         time.Time `json:"probed_at"`
}

// Prober is implemented by backends that can answer the startup probe.
type Prober interface {
	Probe(ctx context.Context, caps *Capabilities)
}

// ProbeCapabilities runs every backend's probe once and returns the combined
// capability set. Called at process start only.
func ProbeCapabilities(ctx context.Context, backends ...Backend) Capabilities {
	log := logging.Global().WithComponent("Inference")
	caps := Capabilities{ProbedAt: time.Now()}

	for _, b := range backends {
		p, ok := b.(Prober)
		if !ok {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		p.Probe(probeCtx, &caps)
		cancel()
	}

	log.Info("capability probe: cloud=%t hybrid=%t/%t local=%t/%t",
		caps.CloudConfigured, caps.HybridReachable, caps.HybridModelReady,
		caps.LocalReachable, caps.LocalModelReady)
	return caps
}
