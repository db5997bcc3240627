// Package coordinator implements the Coordinator State Machine of spec
// §4.6: the PLANNING->READY->EXECUTING->WAVE_COMPLETE->VERIFYING->
// {NEEDS_FIX|COMPLETED} phase machine driving one workspace's coordination
// session. CoordinationState lives in a single observable cell; external
// code reads it (via Snapshot) but never writes it directly.
package coordinator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kandev/wavecoord/internal/common/kerrors"
	"github.com/kandev/wavecoord/internal/common/logger"
	"github.com/kandev/wavecoord/internal/model"
	"github.com/kandev/wavecoord/internal/rolesys"
	"github.com/kandev/wavecoord/internal/store"
	"github.com/kandev/wavecoord/internal/subscription"
	"github.com/kandev/wavecoord/internal/taskparser"
	"github.com/kandev/wavecoord/internal/toolsurface"
)

// illegalPhaseError is a contract violation (e.g. calling executeNextWave
// while PLANNING) — per spec §7, these throw rather than return a tagged
// result, since they indicate a caller bug, not an expected failure.
type illegalPhaseError struct {
	op   string
	want []model.CoordinationPhase
	got  model.CoordinationPhase
}

func (e *illegalPhaseError) Error() string {
	return fmt.Sprintf("%s: requires phase in %v, got %s", e.op, e.want, e.got)
}

// Delegation pairs the CRAFTER created for a task with that task's id,
// returned by ExecuteNextWave.
type Delegation struct {
	CrafterID string
	TaskID    string
}

// Coordinator drives one workspace's coordination session.
type Coordinator struct {
	mu    sync.Mutex
	state model.CoordinationState

	agents        store.AgentStore
	tasks         store.TaskStore
	conversations store.ConversationStore
	tools         *toolsurface.Surface
	subs          *subscription.Service
	log           *logger.Logger

	maxWaves     int
	tailMessages int

	waveSubID string // completion-watch subscription for the current wave
}

// Config bundles the tunables a Coordinator needs (spec §6's CoordinatorConfig).
type Config struct {
	MaxWaves                 int
	ConversationTailMessages int
}

// New constructs a Coordinator for one workspace, wired to the shared
// stores, tool surface, and subscription service.
func New(agents store.AgentStore, tasks store.TaskStore, conversations store.ConversationStore, tools *toolsurface.Surface, subs *subscription.Service, cfg Config, log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Default()
	}
	maxWaves := cfg.MaxWaves
	if maxWaves <= 0 {
		maxWaves = 5
	}
	tail := cfg.ConversationTailMessages
	if tail <= 0 {
		tail = 20
	}
	return &Coordinator{
		agents:        agents,
		tasks:         tasks,
		conversations: conversations,
		tools:         tools,
		subs:          subs,
		log:           log,
		maxWaves:      maxWaves,
		tailMessages:  tail,
		state:         model.CoordinationState{Phase: model.PhaseIdle},
	}
}

// Snapshot returns a value copy of the current coordination state.
func (c *Coordinator) Snapshot() *model.CoordinationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// TaskByID looks up a task by id, for callers (e.g. the Orchestrator) that
// need to summarize outcomes without reaching into the store directly.
func (c *Coordinator) TaskByID(ctx context.Context, id string) (*model.Task, error) {
	return c.tasks.Get(ctx, id)
}

// EnsureReported synthesizes a failing report_to_parent for a CRAFTER whose
// provider run never produced one (spec §4.8: "if out never produced
// report_to_parent, synthesize one with success=false"), so the wave can
// still reach a deterministic completion signal.
func (c *Coordinator) EnsureReported(ctx context.Context, d Delegation) error {
	c.mu.Lock()
	routaID := c.state.RoutaAgentID
	c.mu.Unlock()

	task, err := c.tasks.Get(ctx, d.TaskID)
	if err != nil {
		return err
	}
	if task.Status != model.TaskStatusInProgress {
		return nil
	}

	res := c.tools.ReportToParent(ctx, toolsurface.ReportToParentInput{
		ParentID: routaID,
		Report: model.CompletionReport{
			AgentID: d.CrafterID,
			TaskID:  d.TaskID,
			Summary: "no completion report was produced; synthesized failure",
			Success: false,
		},
	})
	if !res.Success {
		return fmt.Errorf("%s", res.Error)
	}
	return nil
}

func (c *Coordinator) requirePhase(op string, allowed ...model.CoordinationPhase) error {
	for _, p := range allowed {
		if c.state.Phase == p {
			return nil
		}
	}
	return &illegalPhaseError{op: op, want: allowed, got: c.state.Phase}
}

// Initialize creates a ROUTA agent (ACTIVE) and transitions IDLE->PLANNING.
func (c *Coordinator) Initialize(ctx context.Context, workspaceID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requirePhase("initialize", model.PhaseIdle); err != nil {
		panic(err)
	}

	res := c.tools.CreateAgent(ctx, toolsurface.CreateAgentInput{
		WorkspaceID: workspaceID,
		Role:        model.RoleRouta,
		Name:        "routa",
	})
	if !res.Success {
		return "", kerrors.New(kerrors.KindProviderFailure, fmt.Errorf("%s", res.Error))
	}
	routa := res.Data.(*model.Agent)

	c.state = model.CoordinationState{
		Phase:        model.PhasePlanning,
		WorkspaceID:  workspaceID,
		RoutaAgentID: routa.ID,
	}
	return routa.ID, nil
}

// RegisterTasks parses planText's @@@task blocks, saves them, and if any
// exist transitions PLANNING->READY. Returns the new task ids.
func (c *Coordinator) RegisterTasks(ctx context.Context, planText string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requirePhase("registerTasks", model.PhasePlanning); err != nil {
		panic(err)
	}

	tasks := taskparser.Parse(planText)
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		t.WorkspaceID = c.state.WorkspaceID
		if err := c.tasks.Save(ctx, t); err != nil {
			return nil, err
		}
		ids = append(ids, t.ID)
	}

	if len(ids) > 0 {
		c.state.Phase = model.PhaseReady
	}
	return ids, nil
}

// ExecuteNextWave requires phase in {READY, NEEDS_FIX}. For every ready
// task it creates a named CRAFTER and delegates the task, transitioning to
// EXECUTING.
func (c *Coordinator) ExecuteNextWave(ctx context.Context) ([]Delegation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requirePhase("executeNextWave", model.PhaseReady, model.PhaseNeedsFix); err != nil {
		panic(err)
	}

	ready, err := c.tasks.FindReadyTasks(ctx, c.state.WorkspaceID)
	if err != nil {
		return nil, err
	}

	c.state.CurrentWave++
	wave := c.state.CurrentWave

	var delegations []Delegation
	var crafterIDs []string
	var taskIDs []string

	for _, t := range ready {
		name := fmt.Sprintf("crafter-%s-%d", slugify(t.Title), wave)
		res := c.tools.CreateAgent(ctx, toolsurface.CreateAgentInput{
			WorkspaceID: c.state.WorkspaceID,
			Role:        model.RoleCrafter,
			Name:        name,
			ParentID:    &c.state.RoutaAgentID,
		})
		if !res.Success {
			return nil, kerrors.New(kerrors.KindProviderFailure, fmt.Errorf("%s", res.Error))
		}
		crafter := res.Data.(*model.Agent)

		delRes := c.tools.DelegateTask(ctx, toolsurface.DelegateTaskInput{
			TaskID:      t.ID,
			AgentID:     crafter.ID,
			DelegatedBy: c.state.RoutaAgentID,
		})
		if !delRes.Success {
			return nil, kerrors.New(kerrors.KindProviderFailure, fmt.Errorf("%s", delRes.Error))
		}

		delegations = append(delegations, Delegation{CrafterID: crafter.ID, TaskID: t.ID})
		crafterIDs = append(crafterIDs, crafter.ID)
		taskIDs = append(taskIDs, t.ID)
	}

	c.state.ActiveCrafterIDs = crafterIDs
	c.state.WaveHistory = append(c.state.WaveHistory, model.WaveRecord{Wave: wave, TaskIDs: taskIDs, RecordedAt: time.Now().UTC()})
	c.state.Phase = model.PhaseExecuting

	return delegations, nil
}

// BuildAgentContext returns the prompt an agent should receive: its role's
// fixed behavior text, the current task snapshot (if any), and the tail of
// its conversation.
func (c *Coordinator) BuildAgentContext(ctx context.Context, agentID string) (string, error) {
	agent, err := c.agents.Get(ctx, agentID)
	if err != nil {
		return "", err
	}

	var b strings.Builder

	var taskSnapshot string
	assigned, terr := c.tasks.ListByAssignee(ctx, agentID)
	if terr == nil {
		for _, t := range assigned {
			if model.IsAssignableStatus(t.Status) {
				taskSnapshot = fmt.Sprintf("Current task: %s\nObjective: %s\nScope: %s\nDefinition of done: %s\nVerification: %s\n",
					t.Title, t.Objective, strings.Join(t.Scope, "; "), strings.Join(t.AcceptanceCriteria, "; "), strings.Join(t.VerificationCommands, "; "))
				break
			}
		}
	}
	if taskSnapshot != "" {
		b.WriteString(taskSnapshot)
		b.WriteString("\n")
	}

	tail, merr := c.conversations.GetLastN(ctx, agentID, c.tailMessages)
	if merr == nil {
		for _, m := range tail {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		}
	}

	return rolesys.InjectRoleContext(agent.Role, b.String()), nil
}

// ObserveWaveCompletion blocks until every CRAFTER created for the current
// wave has status=COMPLETED, observed via subscription to agent:completed,
// then transitions EXECUTING->WAVE_COMPLETE.
func (c *Coordinator) ObserveWaveCompletion(ctx context.Context) error {
	c.mu.Lock()
	if err := c.requirePhase("observeWaveCompletion", model.PhaseExecuting); err != nil {
		c.mu.Unlock()
		panic(err)
	}
	routaID := c.state.RoutaAgentID
	crafterIDs := append([]string(nil), c.state.ActiveCrafterIDs...)
	c.mu.Unlock()

	remaining := make(map[string]bool, len(crafterIDs))
	for _, id := range crafterIDs {
		remaining[id] = true
	}
	// Every CRAFTER may already be COMPLETED (e.g. a fast mock provider) by
	// the time we get here, so check the store before waiting on events.
	if done, err := c.allCompletedViaStore(ctx, remaining); err != nil {
		return err
	} else if !done {
		subID := c.subs.Subscribe(routaID, "routa", []string{string(model.EventTypeAgentCompleted)}, false, false)
		defer c.subs.Unsubscribe(subID)

		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()

		for len(remaining) > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				for _, d := range c.subs.DrainPendingEvents(routaID) {
					if d.Event.Type == model.EventTypeAgentCompleted && d.Event.AgentCompleted != nil {
						delete(remaining, d.Event.AgentCompleted.AgentID)
					}
				}
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Phase = model.PhaseWaveComplete
	return nil
}

// allCompletedViaStore reports whether every agent in remaining is already
// COMPLETED in the store. ObserveWaveCompletion calls it once, before it
// subscribes and waits for agent:completed events.
func (c *Coordinator) allCompletedViaStore(ctx context.Context, remaining map[string]bool) (bool, error) {
	for id := range remaining {
		a, err := c.agents.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if a.Status == model.AgentStatusCompleted {
			delete(remaining, id)
		}
	}
	return len(remaining) == 0, nil
}

// StartVerification creates a GATE agent, sets activeGateId, and
// transitions WAVE_COMPLETE->VERIFYING.
func (c *Coordinator) StartVerification(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requirePhase("startVerification", model.PhaseWaveComplete); err != nil {
		panic(err)
	}

	res := c.tools.CreateAgent(ctx, toolsurface.CreateAgentInput{
		WorkspaceID: c.state.WorkspaceID,
		Role:        model.RoleGate,
		Name:        fmt.Sprintf("gate-%d", c.state.CurrentWave),
		ParentID:    &c.state.RoutaAgentID,
	})
	if !res.Success {
		return "", kerrors.New(kerrors.KindProviderFailure, fmt.Errorf("%s", res.Error))
	}
	gate := res.Data.(*model.Agent)

	c.state.ActiveGateID = &gate.ID
	c.state.Phase = model.PhaseVerifying
	return gate.ID, nil
}

// VerdictParseWarning is a supplemented diagnostic (Open Question (b)):
// surfaced when a gate's output contains both verdict markers, so callers
// can log the ambiguity even though NOT_APPROVED still wins deterministically.
type VerdictParseWarning struct {
	GateOutput string
}

// RecordVerdict parses the gate's verdict markers and applies them to every
// task currently in REVIEW_REQUIRED, then advances the phase.
func (c *Coordinator) RecordVerdict(ctx context.Context, gateOutput string) (model.CoordinationPhase, *VerdictParseWarning, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requirePhase("recordVerdict", model.PhaseVerifying); err != nil {
		panic(err)
	}

	verdict, warning := parseVerdict(gateOutput)

	tasks, err := c.tasks.ListByWorkspace(ctx, c.state.WorkspaceID)
	if err != nil {
		return "", nil, err
	}

	allResolved := true
	for _, t := range tasks {
		if t.Status != model.TaskStatusReviewRequired {
			if t.Status != model.TaskStatusCompleted {
				allResolved = false
			}
			continue
		}

		var to model.TaskStatus
		switch verdict {
		case model.VerdictApproved:
			to = model.TaskStatusCompleted
		case model.VerdictNotApproved:
			to = model.TaskStatusNeedsFix
		default:
			to = model.TaskStatusBlocked
		}

		updated, err := c.tasks.UpdateStatus(ctx, t.ID, model.TaskStatusReviewRequired, to)
		if err != nil {
			return "", nil, err
		}
		v := verdict
		updated.VerificationVerdict = &v
		if err := c.tasks.Save(ctx, updated); err != nil {
			return "", nil, err
		}

		if to == model.TaskStatusNeedsFix {
			if _, err := c.tasks.UpdateStatus(ctx, t.ID, model.TaskStatusNeedsFix, model.TaskStatusPending); err != nil {
				return "", nil, err
			}
			allResolved = false
		}
		if to == model.TaskStatusBlocked {
			allResolved = false
		}
	}

	if len(c.state.WaveHistory) > 0 {
		last := &c.state.WaveHistory[len(c.state.WaveHistory)-1]
		last.GateAgentID = derefOr(c.state.ActiveGateID, "")
		v := verdict
		last.Verdict = &v
	}

	if allResolved {
		c.state.Phase = model.PhaseCompleted
	} else if c.state.CurrentWave >= c.maxWaves {
		return c.state.Phase, warning, kerrors.New(kerrors.KindMaxWavesReached, fmt.Errorf("max waves (%d) reached without full resolution", c.maxWaves))
	} else {
		c.state.Phase = model.PhaseNeedsFix
	}

	c.state.ActiveGateID = nil
	return c.state.Phase, warning, nil
}

var (
	reNotApproved = regexp.MustCompile(`(?i)not\s+approved`)
	reApproved    = regexp.MustCompile(`(?i)approved`)
)

// parseVerdict scans output for the markers per spec §4.6: NOT_APPROVED
// wins over APPROVED; absence of either is BLOCKED. A standalone "approved"
// elsewhere in output alongside a "not approved" marker is the ambiguous
// case Open Question (b) calls out, surfaced as a warning.
func parseVerdict(output string) (model.VerificationVerdict, *VerdictParseWarning) {
	hasNot := reNotApproved.MatchString(output)
	// Check for a standalone "approved" that isn't part of a "not approved"
	// occurrence, so "NOT APPROVED" alone doesn't spuriously warn.
	withoutNot := reNotApproved.ReplaceAllString(output, "")
	hasApproved := reApproved.MatchString(withoutNot)

	switch {
	case hasNot && hasApproved:
		return model.VerdictNotApproved, &VerdictParseWarning{GateOutput: output}
	case hasNot:
		return model.VerdictNotApproved, nil
	case hasApproved:
		return model.VerdictApproved, nil
	default:
		return model.VerdictBlocked, nil
	}
}

// Reset cancels subscriptions and clears active ids; stores are retained.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.RoutaAgentID != "" {
		c.subs.UnsubscribeAll(c.state.RoutaAgentID)
	}
	workspaceID := c.state.WorkspaceID
	c.state = model.CoordinationState{Phase: model.PhaseIdle, WorkspaceID: workspaceID}
}

// Shutdown cancels subscriptions and clears active ids; stores are retained.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.RoutaAgentID != "" {
		c.subs.UnsubscribeAll(c.state.RoutaAgentID)
	}
	for _, id := range c.state.ActiveCrafterIDs {
		c.subs.UnsubscribeAll(id)
	}
	c.state.ActiveCrafterIDs = nil
	c.state.ActiveGateID = nil
}

func slugify(title string) string {
	lower := strings.ToLower(title)
	var b strings.Builder
	lastDash := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
