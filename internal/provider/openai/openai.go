// Package openai adapts the OpenAI Chat Completions API to provider.Provider,
// grounded on the teacher pack's activebook-gllm OpenAI streaming client.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kandev/wavecoord/internal/model"
	"github.com/kandev/wavecoord/internal/provider"
)

// Config configures the OpenAI adapter.
type Config struct {
	APIKey  string `mapstructure:"apiKey"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"baseUrl"`
}

// Provider runs agent turns through the OpenAI Chat Completions API.
// Like the Anthropic adapter, each Run is single-shot: wavecoord's own
// conversation store (not the OpenAI client) carries prior turns.
type Provider struct {
	client *openai.Client
	model  string
}

var _ provider.Provider = (*Provider)(nil)

// New constructs an OpenAI-backed Provider.
func New(cfg Config) *Provider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

func (p *Provider) Run(ctx context.Context, role model.Role, agentID, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPromptFor(role)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// RunStreaming consumes the chat completion stream and forwards every delta
// to onChunk, returning the fully assembled text.
func (p *Provider) RunStreaming(ctx context.Context, role model.Role, agentID, prompt string, onChunk provider.ChunkHandler) (string, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPromptFor(role)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: true,
	})
	if err != nil {
		return "", fmt.Errorf("openai create chat completion stream: %w", err)
	}
	defer stream.Close()

	var out string
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("openai stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out += delta
		if onChunk != nil {
			onChunk(delta)
		}
	}
	return out, nil
}

// Interrupt is a no-op: a single-shot chat completion has no server-side
// cancel handle beyond the caller's own ctx.
func (p *Provider) Interrupt(agentID string) error { return nil }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Name:                "openai",
		SupportsStreaming:   true,
		SupportsFileEditing: false,
		SupportsTerminal:    false,
		SupportsToolCalling: true,
		Priority:            5,
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
