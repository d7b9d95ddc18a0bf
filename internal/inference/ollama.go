package inference

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/normanking/impetus/internal/logging"
	"github.com/normanking/impetus/internal/routing"
	"github.com/normanking/impetus/internal/tools"
)

const (
	// DefaultLocalModel is the stock on-device model.
	DefaultLocalModel = "llama3.2:3b"

	// DefaultLocalURL is the on-device ollama server.
	DefaultLocalURL = "http://localhost:11434"

	hybridTimeout = 20 * time.Second
	localTimeout  = 15 * time.Second
)

// OllamaConfig configures an ollama-backed stage.
type OllamaConfig struct {
	BaseURL   string
	APIKey    string // bearer token for authenticated relay hosts
	Model     string
	MaxTokens int
}

// authTransport adds a bearer token for relay hosts that require one.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(clone)
}

func newOllamaClient(cfg OllamaConfig) (*api.Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", cfg.BaseURL, err)
	}
	httpClient := &http.Client{}
	if cfg.APIKey != "" {
		httpClient.Transport = &authTransport{base: http.DefaultTransport, apiKey: cfg.APIKey}
	}
	return api.NewClient(base, httpClient), nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HYBRID RELAY
// ═══════════════════════════════════════════════════════════════════════════════

// Hybrid relays through a remote ollama host, second in the default chain. It
// only runs when the startup probe found the relay reachable with the model
// already present; the chain never waits for a remote model load.
type Hybrid struct {
	cfg    OllamaConfig
	client *api.Client
	log    *logging.Logger
}

// NewHybrid creates the hybrid relay backend.
func NewHybrid(cfg OllamaConfig) (*Hybrid, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("hybrid relay requires a base url")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLocalModel
	}
	client, err := newOllamaClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Hybrid{cfg: cfg, client: client, log: logging.Global().WithComponent("Hybrid")}, nil
}

func (h *Hybrid) Name() string           { return "hybrid" }
func (h *Hybrid) Path() routing.Path     { return routing.PathCloud }
func (h *Hybrid) Timeout() time.Duration { return hybridTimeout }

func (h *Hybrid) Ready(caps Capabilities, online bool) bool {
	return online && caps.HybridReachable && caps.HybridModelReady
}

// Probe implements Prober with a single model listing.
func (h *Hybrid) Probe(ctx context.Context, caps *Capabilities) {
	ok, ready := probeOllama(ctx, h.client, h.cfg.Model)
	caps.HybridReachable = ok
	caps.HybridModelReady = ready
}

func (h *Hybrid) Complete(ctx context.Context, req *Request) (*Response, error) {
	resp, err := ollamaChat(ctx, h.client, h.cfg.Model, h.cfg.MaxTokens, req)
	if err != nil {
		return nil, err
	}
	// Throughput above the floor means the relay answered from a warm
	// on-device model; this only informs the advisory flag.
	resp.ServedLocally = resp.TokensPerSec >= LocalThroughputFloor
	resp.Confidence = 0.7
	return resp, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// PURE ON-DEVICE
// ═══════════════════════════════════════════════════════════════════════════════

// Local is pure on-device inference, the last real stage. The model is pulled
// lazily on first use; the busy flag is cleared on every exit path so a
// timed-out attempt never wedges the backend in an inferring state.
type Local struct {
	cfg    OllamaConfig
	client *api.Client
	log    *logging.Logger

	mu     sync.Mutex
	busy   bool
	loaded bool
}

// NewLocal creates the on-device backend.
func NewLocal(cfg OllamaConfig) (*Local, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLocalURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLocalModel
	}
	client, err := newOllamaClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Local{cfg: cfg, client: client, log: logging.Global().WithComponent("Local")}, nil
}

func (l *Local) Name() string           { return "local" }
func (l *Local) Path() routing.Path     { return routing.PathLocal }
func (l *Local) Timeout() time.Duration { return localTimeout }

// Ready requires only that the on-device server answered the probe; the model
// itself loads lazily.
func (l *Local) Ready(caps Capabilities, online bool) bool {
	return caps.LocalReachable
}

// Probe implements Prober.
func (l *Local) Probe(ctx context.Context, caps *Capabilities) {
	ok, ready := probeOllama(ctx, l.client, l.cfg.Model)
	caps.LocalReachable = ok
	caps.LocalModelReady = ready
	l.mu.Lock()
	l.loaded = ready
	l.mu.Unlock()
}

func (l *Local) Complete(ctx context.Context, req *Request) (resp *Response, err error) {
	l.mu.Lock()
	if l.busy {
		l.mu.Unlock()
		return nil, fmt.Errorf("on-device inference already in progress")
	}
	l.busy = true
	loaded := l.loaded
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.busy = false
		l.mu.Unlock()
	}()

	if !loaded {
		if err := l.ensureModel(ctx); err != nil {
			return nil, err
		}
	}

	resp, err = ollamaChat(ctx, l.client, l.cfg.Model, l.cfg.MaxTokens, req)
	if err != nil {
		return nil, err
	}
	resp.ServedLocally = true
	resp.Confidence = 0.6
	return resp, nil
}

// ensureModel pulls the model on first use.
func (l *Local) ensureModel(ctx context.Context) error {
	_, ready := probeOllama(ctx, l.client, l.cfg.Model)
	if !ready {
		l.log.Info("pulling model %s", l.cfg.Model)
		if err := l.client.Pull(ctx, &api.PullRequest{Model: l.cfg.Model}, func(api.ProgressResponse) error {
			return nil
		}); err != nil {
			return fmt.Errorf("pull model %s: %w", l.cfg.Model, err)
		}
	}
	l.mu.Lock()
	l.loaded = true
	l.mu.Unlock()
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED OLLAMA PLUMBING
// ═══════════════════════════════════════════════════════════════════════════════

// probeOllama reports (server reachable, model present).
func probeOllama(ctx context.Context, client *api.Client, model string) (bool, bool) {
	list, err := client.List(ctx)
	if err != nil {
		return false, false
	}
	for _, m := range list.Models {
		if m.Name == model || strings.HasPrefix(m.Name, model+":") {
			return true, true
		}
	}
	return true, false
}

// ollamaChat runs one non-streaming chat turn and normalizes the result.
func ollamaChat(ctx context.Context, client *api.Client, model string, maxTokens int, req *Request) (*Response, error) {
	start := time.Now()

	messages := make([]api.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	if maxTokens <= 0 {
		maxTokens = 1024
	}
	stream := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options:  map[string]any{"num_predict": maxTokens},
	}
	if req.Temperature > 0 {
		chatReq.Options["temperature"] = req.Temperature
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ollamaTools(req.Tools)
	}

	var text strings.Builder
	var calls []tools.Call
	var evalCount int
	var evalDuration time.Duration

	err := client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		if r.Message.Content != "" {
			text.WriteString(r.Message.Content)
		}
		for _, tc := range r.Message.ToolCalls {
			calls = append(calls, tools.Call{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments.ToMap(),
			})
		}
		if r.Done {
			evalCount = r.EvalCount
			evalDuration = r.EvalDuration
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	tps := 0.0
	if evalDuration > 0 {
		tps = float64(evalCount) / evalDuration.Seconds()
	}

	return &Response{
		Success:      true,
		Text:         text.String(),
		Calls:        calls,
		TokensPerSec: tps,
		Latency:      time.Since(start),
	}, nil
}

// ollamaTools converts the registry schemas to ollama tool declarations.
func ollamaTools(ts []*tools.Tool) []api.Tool {
	out := make([]api.Tool, 0, len(ts))
	for _, t := range ts {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Properties: api.NewToolPropertiesMap(),
		}
		for _, p := range t.Parameters {
			prop := api.ToolProperty{
				Type:        api.PropertyType{jsonType(p.Type)},
				Description: p.Description,
			}
			if len(p.Enum) > 0 {
				enum := make([]any, len(p.Enum))
				for i, v := range p.Enum {
					enum[i] = v
				}
				prop.Enum = enum
			}
			params.Properties.Set(p.Name, prop)
			if p.Required {
				params.Required = append(params.Required, p.Name)
			}
		}
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
