// Package anthropic adapts the Anthropic Messages API to provider.Provider,
// grounded on the teacher pack's activebook-gllm Anthropic streaming client.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/kandev/wavecoord/internal/model"
	"github.com/kandev/wavecoord/internal/provider"
)

// Config configures the Anthropic adapter.
type Config struct {
	APIKey    string `mapstructure:"apiKey"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"maxTokens"`
	BaseURL   string `mapstructure:"baseUrl"`
}

// Provider runs agent turns through the Anthropic Messages API. Each Run
// call is a single-shot request carrying the role's system prompt; wavecoord
// agents don't hold a persistent multi-turn chat client-side, since the
// coordinator's own conversation store already replays prior turns into the
// prompt (see BuildAgentContext).
type Provider struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

var _ provider.Provider = (*Provider)(nil)

// New constructs an Anthropic-backed Provider.
func New(cfg Config) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &Provider{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: maxTokens,
	}
}

func (p *Provider) Run(ctx context.Context, role model.Role, agentID, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{{
			Text: systemPromptFor(role),
			Type: constant.Text("text"),
		}},
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}

	var out string
	for _, block := range msg.Content {
		if text := block.Text; text != "" {
			out += text
		}
	}
	return out, nil
}

// RunStreaming consumes the server-sent event stream and forwards every
// text delta to onChunk, returning the fully assembled text.
func (p *Provider) RunStreaming(ctx context.Context, role model.Role, agentID, prompt string, onChunk provider.ChunkHandler) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{{
			Text: systemPromptFor(role),
			Type: constant.Text("text"),
		}},
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	var out string
	for stream.Next() {
		event := stream.Current()
		if event.Type != "content_block_delta" {
			continue
		}
		delta := event.AsContentBlockDelta().Delta
		if delta.Type != "text_delta" {
			continue
		}
		out += delta.Text
		if onChunk != nil {
			onChunk(delta.Text)
		}
	}
	if err := stream.Err(); err != nil {
		return out, fmt.Errorf("anthropic stream: %w", err)
	}
	return out, nil
}

// Interrupt is a no-op: a single-shot Messages.New/NewStreaming call has no
// server-side cancel handle beyond the caller's own ctx.
func (p *Provider) Interrupt(agentID string) error { return nil }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Name:                "anthropic",
		SupportsStreaming:   true,
		SupportsFileEditing: false,
		SupportsTerminal:    false,
		SupportsToolCalling: true,
		Priority:            10,
	}
}

func systemPromptFor(role model.Role) string {
	switch role {
	case model.RoleRouta:
		return "You are ROUTA, the coordinating planner agent. Produce a plan of @@@task blocks."
	case model.RoleCrafter:
		return "You are CRAFTER, an implementing agent. Complete your assigned task and call report_to_parent when done."
	case model.RoleGate:
		return "You are GATE, the verifying agent. Respond with APPROVED or NOT APPROVED."
	default:
		return ""
	}
}
