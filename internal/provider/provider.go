// Package provider implements the Provider Router of spec §4.7: a
// capability-declaring backend abstraction, a capability-based router that
// picks the best-fit provider per role, and a resilient wrapper that never
// throws.
package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/wavecoord/internal/common/kerrors"
	"github.com/kandev/wavecoord/internal/common/logger"
	"github.com/kandev/wavecoord/internal/model"
	"github.com/kandev/wavecoord/internal/store"
)

// ChunkHandler receives a streamed fragment of a running provider's output.
type ChunkHandler func(chunk string)

// Capabilities describes what a provider can do, used by CapabilityBasedRouter
// to pick the best fit for a role.
type Capabilities struct {
	Name                string
	SupportsStreaming   bool
	SupportsFileEditing bool
	SupportsTerminal    bool
	SupportsToolCalling bool
	Priority            int // higher runs first among equally-matched providers
}

// Provider is a backend capable of driving one agent turn.
type Provider interface {
	Run(ctx context.Context, role model.Role, agentID, prompt string) (string, error)
	RunStreaming(ctx context.Context, role model.Role, agentID, prompt string, onChunk ChunkHandler) (string, error)
	Interrupt(agentID string) error
	Capabilities() Capabilities
}

// roleNeeds captures the capability profile spec §4.7 assigns each role.
func roleNeeds(role model.Role) (toolCalling, fileEditing, terminal bool) {
	switch role {
	case model.RoleRouta:
		return true, false, false
	case model.RoleCrafter:
		return false, true, true
	case model.RoleGate:
		return true, false, false
	default:
		return false, false, false
	}
}

// score rates how well caps satisfies role's needs; higher is better.
func score(role model.Role, caps Capabilities) int {
	wantTool, wantEdit, wantTerm := roleNeeds(role)
	s := 0
	if wantTool && caps.SupportsToolCalling {
		s += 4
	}
	if wantEdit && caps.SupportsFileEditing {
		s += 4
	}
	if wantTerm && caps.SupportsTerminal {
		s += 4
	}
	if wantEdit && !caps.SupportsFileEditing {
		s -= 8
	}
	if wantTerm && !caps.SupportsTerminal {
		s -= 8
	}
	s += caps.Priority
	return s
}

// CapabilityBasedRouter holds an ordered list of providers and dispatches
// run calls to the best-fit provider for a role, falling back to the first
// provider in order if none satisfies the role's needs.
type CapabilityBasedRouter struct {
	providers []Provider
}

// NewCapabilityBasedRouter builds a router over providers, in priority order.
func NewCapabilityBasedRouter(providers ...Provider) *CapabilityBasedRouter {
	return &CapabilityBasedRouter{providers: providers}
}

func (r *CapabilityBasedRouter) pick(role model.Role) Provider {
	if len(r.providers) == 0 {
		return nil
	}
	best := r.providers[0]
	bestScore := score(role, best.Capabilities())
	for _, p := range r.providers[1:] {
		if sc := score(role, p.Capabilities()); sc > bestScore {
			best, bestScore = p, sc
		}
	}
	if bestScore < 0 {
		return r.providers[0]
	}
	return best
}

func (r *CapabilityBasedRouter) Run(ctx context.Context, role model.Role, agentID, prompt string) (string, error) {
	p := r.pick(role)
	if p == nil {
		return "", kerrors.New(kerrors.KindConfigError, fmt.Errorf("no providers registered"))
	}
	return p.Run(ctx, role, agentID, prompt)
}

func (r *CapabilityBasedRouter) RunStreaming(ctx context.Context, role model.Role, agentID, prompt string, onChunk ChunkHandler) (string, error) {
	p := r.pick(role)
	if p == nil {
		return "", kerrors.New(kerrors.KindConfigError, fmt.Errorf("no providers registered"))
	}
	return p.RunStreaming(ctx, role, agentID, prompt, onChunk)
}

// ResilientAgentProvider wraps a Provider so failures never propagate as
// errors: a failure is recorded as a system message in the agent's
// conversation and a synthetic "[provider error: ...]" string is returned
// instead, per spec §4.7 and §7.
type ResilientAgentProvider struct {
	inner         Provider
	conversations store.ConversationStore
	log           *logger.Logger
	timeout       time.Duration
}

// NewResilientAgentProvider wraps inner with the given conversation store
// (for failure transcripts) and per-run timeout.
func NewResilientAgentProvider(inner Provider, conversations store.ConversationStore, timeout time.Duration, log *logger.Logger) *ResilientAgentProvider {
	if log == nil {
		log = logger.Default()
	}
	return &ResilientAgentProvider{inner: inner, conversations: conversations, log: log, timeout: timeout}
}

func (p *ResilientAgentProvider) Run(ctx context.Context, role model.Role, agentID, prompt string) (string, error) {
	runCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	out, err := p.inner.Run(runCtx, role, agentID, prompt)
	if err != nil {
		return p.recordFailure(runCtx, agentID, err), nil
	}
	return out, nil
}

func (p *ResilientAgentProvider) RunStreaming(ctx context.Context, role model.Role, agentID, prompt string, onChunk ChunkHandler) (string, error) {
	runCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	out, err := p.inner.RunStreaming(runCtx, role, agentID, prompt, onChunk)
	if err != nil {
		return p.recordFailure(runCtx, agentID, err), nil
	}
	return out, nil
}

func (p *ResilientAgentProvider) Interrupt(agentID string) error {
	return p.inner.Interrupt(agentID)
}

func (p *ResilientAgentProvider) Capabilities() Capabilities {
	return p.inner.Capabilities()
}

func (p *ResilientAgentProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *ResilientAgentProvider) recordFailure(ctx context.Context, agentID string, err error) string {
	kind := kerrors.KindProviderFailure
	if ctx.Err() != nil {
		kind = kerrors.KindTimeout
	}
	wrapped := kerrors.New(kind, err)
	p.log.Warn("provider run failed", zap.Error(wrapped), zap.String("agent_id", agentID))

	synthetic := fmt.Sprintf("[provider error: %v]", wrapped)
	if p.conversations != nil {
		_ = p.conversations.Append(context.Background(), model.Message{
			AgentID:   agentID,
			Role:      model.MessageRoleSystem,
			Content:   synthetic,
			Timestamp: time.Now(),
		})
	}
	return synthetic
}
