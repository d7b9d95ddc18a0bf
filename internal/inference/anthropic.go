package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/normanking/impetus/internal/logging"
	"github.com/normanking/impetus/internal/routing"
	"github.com/normanking/impetus/internal/tools"
)

// DefaultCloudModel is the stock cloud model for decision cycles. Haiku-class
// is plenty for a single-action decision and keeps latency down.
const DefaultCloudModel = "claude-3-5-haiku-latest"

const cloudTimeout = 30 * time.Second

// CloudConfig configures the direct REST backend.
type CloudConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// Cloud is the direct remote REST backend, first in the default chain.
type Cloud struct {
	cfg    CloudConfig
	client anthropic.Client
	log    *logging.Logger
}

// NewCloud creates the cloud backend. An empty API key is allowed; the
// backend simply reports not ready.
func NewCloud(cfg CloudConfig) *Cloud {
	if cfg.Model == "" {
		cfg.Model = DefaultCloudModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Cloud{
		cfg:    cfg,
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		log:    logging.Global().WithComponent("Cloud"),
	}
}

func (c *Cloud) Name() string           { return "cloud" }
func (c *Cloud) Path() routing.Path     { return routing.PathCloud }
func (c *Cloud) Timeout() time.Duration { return cloudTimeout }

// Ready requires connectivity and a configured key.
func (c *Cloud) Ready(caps Capabilities, online bool) bool {
	return online && caps.CloudConfigured
}

// Probe implements Prober. The key check is local; no request is made.
func (c *Cloud) Probe(ctx context.Context, caps *Capabilities) {
	caps.CloudConfigured = c.cfg.APIKey != ""
}

// Complete sends one message with the tool schemas attached and extracts
// native tool-use blocks.
func (c *Cloud) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		params.Tools = cloudTools(req.Tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("cloud request: %w", err)
	}

	latency := time.Since(start)
	var text strings.Builder
	var calls []tools.Call

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := make(map[string]any)
			if err := json.Unmarshal(block.Input, &args); err != nil {
				c.log.Warn("malformed tool_use input for %s: %v", block.Name, err)
			}
			calls = append(calls, tools.Call{Name: block.Name, Arguments: args})
		}
	}

	tps := 0.0
	if secs := latency.Seconds(); secs > 0 {
		tps = float64(resp.Usage.OutputTokens) / secs
	}

	return &Response{
		Success:      true,
		Text:         text.String(),
		Calls:        calls,
		TokensPerSec: tps,
		Latency:      latency,
		Confidence:   0.9,
	}, nil
}

// cloudTools converts the registry schemas to Anthropic tool declarations.
func cloudTools(ts []*tools.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(ts))
	for _, t := range ts {
		props := make(map[string]any, len(t.Parameters))
		var required []string
		for _, p := range t.Parameters {
			prop := map[string]any{
				"type":        jsonType(p.Type),
				"description": p.Description,
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			props[p.Name] = prop
			if p.Required {
				required = append(required, p.Name)
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   required,
				},
			},
		})
	}
	return out
}

func jsonType(t string) string {
	switch t {
	case "number", "integer", "boolean":
		return t
	default:
		return "string"
	}
}
