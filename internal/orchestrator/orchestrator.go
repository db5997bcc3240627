// Package orchestrator implements the outer loop of spec §4.8: given a
// provider router and a workspace, it drives planning, wave execution, and
// verification to completion (or MaxWavesReached), emitting OrchestratorPhase
// updates at every state boundary.
package orchestrator

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kandev/wavecoord/internal/common/kerrors"
	"github.com/kandev/wavecoord/internal/common/logger"
	"github.com/kandev/wavecoord/internal/common/tracing"
	"github.com/kandev/wavecoord/internal/coordinator"
	"github.com/kandev/wavecoord/internal/model"
)

// Runner is the minimal provider-router surface the outer loop drives: a
// single blocking run per agent turn. Both provider.CapabilityBasedRouter
// and provider.ResilientAgentProvider satisfy this.
type Runner interface {
	Run(ctx context.Context, role model.Role, agentID, prompt string) (string, error)
}

// Phase is one state boundary of the Orchestrator's outer loop, per spec §4.8.
type Phase string

const (
	PhaseInitializing         Phase = "Initializing"
	PhasePlanning             Phase = "Planning"
	PhasePlanReady            Phase = "PlanReady"
	PhaseTasksRegistered      Phase = "TasksRegistered"
	PhaseWaveStarting         Phase = "WaveStarting"
	PhaseCrafterRunning       Phase = "CrafterRunning"
	PhaseCrafterCompleted     Phase = "CrafterCompleted"
	PhaseVerificationStarting Phase = "VerificationStarting"
	PhaseVerificationDone     Phase = "VerificationCompleted"
	PhaseNeedsFix             Phase = "NeedsFix"
	PhaseCompleted            Phase = "Completed"
	PhaseMaxWavesReached      Phase = "MaxWavesReached"
)

// PhaseUpdate is delivered to the Orchestrator's callback at every boundary.
type PhaseUpdate struct {
	Phase   Phase
	Wave    int
	Detail  string
	AgentID string
}

// PhaseCallback receives every PhaseUpdate. It must not block for long; the
// Orchestrator calls it synchronously inline with the outer loop.
type PhaseCallback func(update PhaseUpdate)

// ResultKind is the terminal outcome of a Run call.
type ResultKind string

const (
	ResultSuccess         ResultKind = "Success"
	ResultNoTasks         ResultKind = "NoTasks"
	ResultMaxWavesReached ResultKind = "MaxWavesReached"
)

// TaskSummary is one resolved task's outcome, included in Result.
type TaskSummary struct {
	TaskID  string
	Title   string
	Status  model.TaskStatus
	Summary string
}

// Result is the Orchestrator's terminal outcome for one Run call.
type Result struct {
	Kind         ResultKind
	TaskSummary  []TaskSummary
	PlanText     string // echoed for NoTasks
	GateRuns     int
	RunOrder     []model.Role
}

// Orchestrator wires a Coordinator and a Provider Router to drive one
// workspace's request through the full ROUTA->CRAFTER->GATE pipeline.
type Orchestrator struct {
	coord    *coordinator.Coordinator
	router   Runner
	log      *logger.Logger
	tracer   trace.Tracer
	maxWaves int
	onPhase  PhaseCallback

	mu       sync.Mutex
	runOrder []model.Role
	gateRuns int
}

// New constructs an Orchestrator. onPhase may be nil to discard updates.
// ConfigError is raised synchronously here, per spec §7, if coord or router
// is nil.
func New(coord *coordinator.Coordinator, router Runner, maxWaves int, onPhase PhaseCallback, log *logger.Logger) (*Orchestrator, error) {
	if coord == nil || router == nil {
		return nil, kerrors.New(kerrors.KindConfigError, errNilDependency)
	}
	if log == nil {
		log = logger.Default()
	}
	if onPhase == nil {
		onPhase = func(PhaseUpdate) {}
	}
	if maxWaves <= 0 {
		maxWaves = 5
	}
	return &Orchestrator{coord: coord, router: router, log: log, tracer: tracing.Tracer("orchestrator"), maxWaves: maxWaves, onPhase: onPhase}, nil
}

var errNilDependency = configErr("orchestrator requires a non-nil coordinator and provider router")

type configErr string

func (e configErr) Error() string { return string(e) }

// emit wraps the phase transition in its own span (per spec, "the
// Orchestrator wraps each phase transition... in a span") before invoking
// the callback. Phases are instantaneous boundaries, so the span is started
// and ended immediately rather than spanning the work between boundaries.
func (o *Orchestrator) emit(ctx context.Context, update PhaseUpdate) {
	_, span := o.tracer.Start(ctx, string(update.Phase), trace.WithAttributes(
		attribute.Int("wave", update.Wave),
		attribute.String("agent_id", update.AgentID),
	))
	if update.Detail != "" {
		span.SetAttributes(attribute.String("detail", update.Detail))
	}
	span.End()
	o.onPhase(update)
}

// runProvider wraps a single provider.Run call in a span (per spec, "the
// Orchestrator wraps... each provider run in a span"), recording the
// outcome.
func (o *Orchestrator) runProvider(ctx context.Context, role model.Role, agentID, prompt string) (string, error) {
	runCtx, span := o.tracer.Start(ctx, "provider.run", trace.WithAttributes(
		attribute.String("role", string(role)),
		attribute.String("agent_id", agentID),
	))
	defer span.End()

	out, err := o.router.Run(runCtx, role, agentID, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (o *Orchestrator) recordRun(role model.Role) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runOrder = append(o.runOrder, role)
}

// Run drives the full outer loop of spec §4.8 for one workspace and user
// request, returning the terminal Result.
func (o *Orchestrator) Run(ctx context.Context, workspaceID, userRequest string) (Result, error) {
	o.emit(ctx, PhaseUpdate{Phase: PhaseInitializing})
	routaID, err := o.coord.Initialize(ctx, workspaceID)
	if err != nil {
		return Result{}, err
	}

	o.emit(ctx, PhaseUpdate{Phase: PhasePlanning, AgentID: routaID})
	routaCtx, err := o.coord.BuildAgentContext(ctx, routaID)
	if err != nil {
		return Result{}, err
	}
	o.recordRun(model.RoleRouta)
	plan, err := o.runProvider(ctx, model.RoleRouta, routaID, routaCtx+"\n\n"+userRequest)
	if err != nil {
		return Result{}, err
	}
	o.emit(ctx, PhaseUpdate{Phase: PhasePlanReady, AgentID: routaID})

	taskIDs, err := o.coord.RegisterTasks(ctx, plan)
	if err != nil {
		return Result{}, err
	}
	if len(taskIDs) == 0 {
		return Result{Kind: ResultNoTasks, PlanText: plan, RunOrder: o.snapshotRunOrder()}, nil
	}
	o.emit(ctx, PhaseUpdate{Phase: PhaseTasksRegistered, Detail: plan})

	for wave := 1; wave <= o.maxWaves; wave++ {
		o.emit(ctx, PhaseUpdate{Phase: PhaseWaveStarting, Wave: wave})

		delegations, err := o.coord.ExecuteNextWave(ctx)
		if err != nil {
			return Result{}, err
		}

		var wg sync.WaitGroup
		for _, d := range delegations {
			wg.Add(1)
			go func(d coordinator.Delegation) {
				defer wg.Done()
				o.runCrafter(ctx, d)
			}(d)
		}
		wg.Wait()

		if err := o.coord.ObserveWaveCompletion(ctx); err != nil {
			return Result{}, err
		}

		gateID, err := o.coord.StartVerification(ctx)
		if err != nil {
			return Result{}, err
		}
		o.emit(ctx, PhaseUpdate{Phase: PhaseVerificationStarting, Wave: wave, AgentID: gateID})

		gateCtx, err := o.coord.BuildAgentContext(ctx, gateID)
		if err != nil {
			return Result{}, err
		}
		o.recordRun(model.RoleGate)
		o.mu.Lock()
		o.gateRuns++
		o.mu.Unlock()
		verdictText, err := o.runProvider(ctx, model.RoleGate, gateID, gateCtx)
		if err != nil {
			return Result{}, err
		}

		phase, warning, err := o.coord.RecordVerdict(ctx, verdictText)
		if warning != nil {
			o.log.Warn("ambiguous gate verdict: both markers present")
		}
		if kerrors.Is(err, kerrors.KindMaxWavesReached) {
			o.emit(ctx, PhaseUpdate{Phase: PhaseMaxWavesReached, Wave: wave})
			return Result{Kind: ResultMaxWavesReached, TaskSummary: o.summarize(ctx, taskIDs), GateRuns: o.gateRuns, RunOrder: o.snapshotRunOrder()}, nil
		}
		if err != nil {
			return Result{}, err
		}
		o.emit(ctx, PhaseUpdate{Phase: PhaseVerificationDone, Wave: wave})

		if phase == model.PhaseCompleted {
			o.emit(ctx, PhaseUpdate{Phase: PhaseCompleted, Wave: wave})
			return Result{Kind: ResultSuccess, TaskSummary: o.summarize(ctx, taskIDs), GateRuns: o.gateRuns, RunOrder: o.snapshotRunOrder()}, nil
		}
		o.emit(ctx, PhaseUpdate{Phase: PhaseNeedsFix, Wave: wave})
	}

	return Result{Kind: ResultMaxWavesReached, TaskSummary: o.summarize(ctx, taskIDs), GateRuns: o.gateRuns, RunOrder: o.snapshotRunOrder()}, nil
}

// runCrafter drives a single CRAFTER's turn. After the provider run it calls
// coord.EnsureReported, which submits a failing completion report through
// the tool surface if the turn left the assigned task IN_PROGRESS (no
// report_to_parent was made).
func (o *Orchestrator) runCrafter(ctx context.Context, d coordinator.Delegation) {
	o.emit(ctx, PhaseUpdate{Phase: PhaseCrafterRunning, AgentID: d.CrafterID})

	craftCtx, err := o.coord.BuildAgentContext(ctx, d.CrafterID)
	if err != nil {
		o.log.Error("failed to build crafter context")
		return
	}
	o.recordRun(model.RoleCrafter)
	if _, err := o.runProvider(ctx, model.RoleCrafter, d.CrafterID, craftCtx); err != nil {
		o.log.Error("crafter run failed")
	}

	if err := o.coord.EnsureReported(ctx, d); err != nil {
		o.log.Warn("failed to synthesize missing completion report")
	}

	o.emit(ctx, PhaseUpdate{Phase: PhaseCrafterCompleted, AgentID: d.CrafterID})
}

func (o *Orchestrator) snapshotRunOrder() []model.Role {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.Role(nil), o.runOrder...)
}

func (o *Orchestrator) summarize(ctx context.Context, taskIDs []string) []TaskSummary {
	summaries := make([]TaskSummary, 0, len(taskIDs))
	for _, id := range taskIDs {
		t, err := o.coord.TaskByID(ctx, id)
		if err != nil {
			continue
		}
		s := TaskSummary{TaskID: t.ID, Title: t.Title, Status: t.Status}
		if t.CompletionSummary != nil {
			s.Summary = *t.CompletionSummary
		}
		summaries = append(summaries, s)
	}
	return summaries
}
