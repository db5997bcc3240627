package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kandev/wavecoord/internal/model"
)

// PostgresConfig mirrors config.DatabaseConfig's fields needed to build a DSN,
// kept separate from internal/common/config to avoid an import cycle.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

func (c PostgresConfig) dsn() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, sslMode)
}

// NewPostgresPool connects, pings, and creates the schema if it doesn't
// already exist, grounded on the teacher's internal/common/database pooling
// pattern. The returned pool backs all three Postgres*Store types, one per
// entity, mirroring how the in-memory reference stores split by entity too.
func NewPostgresPool(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	poolCfg.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return pool, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			model_tier TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			parent_id TEXT,
			status TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agents_workspace_id ON agents(workspace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_agents_parent_id ON agents(parent_id)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			objective TEXT NOT NULL,
			scope JSONB NOT NULL DEFAULT '[]',
			acceptance_criteria JSONB NOT NULL DEFAULT '[]',
			verification_commands JSONB NOT NULL DEFAULT '[]',
			assigned_to TEXT,
			status TEXT NOT NULL,
			dependencies JSONB NOT NULL DEFAULT '[]',
			parallel_group TEXT,
			workspace_id TEXT NOT NULL,
			completion_summary TEXT,
			verification_verdict TEXT,
			verification_report TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_workspace_id ON tasks(workspace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assigned_to ON tasks(assigned_to)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			agent_id TEXT NOT NULL,
			turn INT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			from_agent_id TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_agent_id ON messages(agent_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type pgxRow interface {
	Scan(dest ...interface{}) error
}

// --- PostgresAgentStore ---

// PostgresAgentStore is an AgentStore backed by a shared pgxpool.Pool.
type PostgresAgentStore struct {
	pool *pgxpool.Pool
}

var _ AgentStore = (*PostgresAgentStore)(nil)

// NewPostgresAgentStore wraps an existing pool (schema assumed initialized
// by NewPostgresPool).
func NewPostgresAgentStore(pool *pgxpool.Pool) *PostgresAgentStore {
	return &PostgresAgentStore{pool: pool}
}

func (s *PostgresAgentStore) Save(ctx context.Context, agent *model.Agent) error {
	metadata, err := json.Marshal(agent.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO agents (id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, role = EXCLUDED.role, model_tier = EXCLUDED.model_tier,
			workspace_id = EXCLUDED.workspace_id, parent_id = EXCLUDED.parent_id,
			status = EXCLUDED.status, metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at
	`, agent.ID, agent.Name, agent.Role, agent.ModelTier, agent.WorkspaceID, agent.ParentID,
		agent.Status, metadata, agent.CreatedAt, agent.UpdatedAt)
	return err
}

func (s *PostgresAgentStore) Get(ctx context.Context, id string) (*model.Agent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at
		FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func (s *PostgresAgentStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*model.Agent, error) {
	return s.queryAgents(ctx, `
		SELECT id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at
		FROM agents WHERE workspace_id = $1 ORDER BY created_at`, workspaceID)
}

func (s *PostgresAgentStore) ListByParent(ctx context.Context, parentID string) ([]*model.Agent, error) {
	return s.queryAgents(ctx, `
		SELECT id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at
		FROM agents WHERE parent_id = $1 ORDER BY created_at`, parentID)
}

func (s *PostgresAgentStore) ListByRole(ctx context.Context, workspaceID string, role model.Role) ([]*model.Agent, error) {
	return s.queryAgents(ctx, `
		SELECT id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at
		FROM agents WHERE workspace_id = $1 AND role = $2 ORDER BY created_at`, workspaceID, role)
}

func (s *PostgresAgentStore) ListByStatus(ctx context.Context, workspaceID string, status model.AgentStatus) ([]*model.Agent, error) {
	return s.queryAgents(ctx, `
		SELECT id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at
		FROM agents WHERE workspace_id = $1 AND status = $2 ORDER BY created_at`, workspaceID, status)
}

// UpdateStatus performs the compare-and-set inside a single statement: the
// WHERE clause pins the observed `from` status, so a concurrent writer that
// already advanced it loses the race and gets ErrCompareAndSetFailed.
func (s *PostgresAgentStore) UpdateStatus(ctx context.Context, id string, from, to model.AgentStatus) (*model.Agent, error) {
	if !model.CanTransitionAgentStatus(from, to) {
		return nil, ErrCompareAndSetFailed
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE agents SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
		RETURNING id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at
	`, to, id, from)
	agent, err := scanAgent(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrCompareAndSetFailed
	}
	return agent, err
}

func (s *PostgresAgentStore) queryAgents(ctx context.Context, query string, args ...interface{}) ([]*model.Agent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, rows.Err()
}

func scanAgent(row pgxRow) (*model.Agent, error) {
	var a model.Agent
	var metadata []byte
	err := row.Scan(&a.ID, &a.Name, &a.Role, &a.ModelTier, &a.WorkspaceID, &a.ParentID,
		&a.Status, &metadata, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// --- PostgresTaskStore ---

// PostgresTaskStore is a TaskStore backed by a shared pgxpool.Pool.
type PostgresTaskStore struct {
	pool *pgxpool.Pool
}

var _ TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore wraps an existing pool (schema assumed initialized
// by NewPostgresPool).
func NewPostgresTaskStore(pool *pgxpool.Pool) *PostgresTaskStore {
	return &PostgresTaskStore{pool: pool}
}

const taskColumns = `id, title, objective, scope, acceptance_criteria, verification_commands,
	assigned_to, status, dependencies, parallel_group, workspace_id,
	completion_summary, verification_verdict, verification_report, created_at, updated_at`

func (s *PostgresTaskStore) Save(ctx context.Context, task *model.Task) error {
	scope, _ := json.Marshal(task.Scope)
	criteria, _ := json.Marshal(task.AcceptanceCriteria)
	verifyCmds, _ := json.Marshal(task.VerificationCommands)
	deps, _ := json.Marshal(task.Dependencies)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, title, objective, scope, acceptance_criteria, verification_commands,
			assigned_to, status, dependencies, parallel_group, workspace_id,
			completion_summary, verification_verdict, verification_report, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, objective = EXCLUDED.objective, scope = EXCLUDED.scope,
			acceptance_criteria = EXCLUDED.acceptance_criteria, verification_commands = EXCLUDED.verification_commands,
			assigned_to = EXCLUDED.assigned_to, status = EXCLUDED.status, dependencies = EXCLUDED.dependencies,
			parallel_group = EXCLUDED.parallel_group, completion_summary = EXCLUDED.completion_summary,
			verification_verdict = EXCLUDED.verification_verdict, verification_report = EXCLUDED.verification_report,
			updated_at = EXCLUDED.updated_at
	`, task.ID, task.Title, task.Objective, scope, criteria, verifyCmds,
		task.AssignedTo, task.Status, deps, task.ParallelGroup, task.WorkspaceID,
		task.CompletionSummary, task.VerificationVerdict, task.VerificationReport,
		task.CreatedAt, task.UpdatedAt)
	return err
}

func (s *PostgresTaskStore) Get(ctx context.Context, id string) (*model.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (s *PostgresTaskStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*model.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE workspace_id = $1 ORDER BY created_at`, workspaceID)
}

func (s *PostgresTaskStore) ListByAssignee(ctx context.Context, agentID string) ([]*model.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE assigned_to = $1 ORDER BY created_at`, agentID)
}

// FindReadyTasks returns PENDING tasks whose dependency list (possibly empty)
// is fully COMPLETED, evaluated with a correlated NOT EXISTS subquery rather
// than pulling every task into Go to replicate MemoryTaskStore's in-process
// dependency walk.
func (s *PostgresTaskStore) FindReadyTasks(ctx context.Context, workspaceID string) ([]*model.Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		WHERE t.workspace_id = $1 AND t.status = 'PENDING'
		AND NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(t.dependencies) dep
			LEFT JOIN tasks d ON d.id = dep
			WHERE d.id IS NULL OR d.status <> 'COMPLETED'
		)
		ORDER BY t.created_at`, workspaceID)
}

func (s *PostgresTaskStore) UpdateStatus(ctx context.Context, id string, from, to model.TaskStatus) (*model.Task, error) {
	if !model.CanTransitionTaskStatus(from, to) {
		return nil, ErrCompareAndSetFailed
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE tasks SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
		RETURNING `+taskColumns, to, id, from)
	task, err := scanTask(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrCompareAndSetFailed
	}
	return task, err
}

func (s *PostgresTaskStore) queryTasks(ctx context.Context, query string, args ...interface{}) ([]*model.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(row pgxRow) (*model.Task, error) {
	var t model.Task
	var scope, criteria, verifyCmds, deps []byte
	err := row.Scan(&t.ID, &t.Title, &t.Objective, &scope, &criteria, &verifyCmds,
		&t.AssignedTo, &t.Status, &deps, &t.ParallelGroup, &t.WorkspaceID,
		&t.CompletionSummary, &t.VerificationVerdict, &t.VerificationReport,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(scope, &t.Scope)
	_ = json.Unmarshal(criteria, &t.AcceptanceCriteria)
	_ = json.Unmarshal(verifyCmds, &t.VerificationCommands)
	_ = json.Unmarshal(deps, &t.Dependencies)
	return &t, nil
}

// --- PostgresConversationStore ---

// PostgresConversationStore is a ConversationStore backed by a shared
// pgxpool.Pool, append-only per agent via an auto-incrementing primary key
// for ordering.
type PostgresConversationStore struct {
	pool *pgxpool.Pool
}

var _ ConversationStore = (*PostgresConversationStore)(nil)

// NewPostgresConversationStore wraps an existing pool (schema assumed
// initialized by NewPostgresPool).
func NewPostgresConversationStore(pool *pgxpool.Pool) *PostgresConversationStore {
	return &PostgresConversationStore{pool: pool}
}

func (s *PostgresConversationStore) Append(ctx context.Context, msg model.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (agent_id, turn, role, content, from_agent_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.AgentID, msg.Turn, msg.Role, msg.Content, msg.FromAgentID, msg.Timestamp)
	return err
}

func (s *PostgresConversationStore) GetConversation(ctx context.Context, agentID string) ([]model.Message, error) {
	return s.queryMessages(ctx, `
		SELECT agent_id, turn, role, content, from_agent_id, created_at
		FROM messages WHERE agent_id = $1 ORDER BY id`, agentID)
}

func (s *PostgresConversationStore) GetLastN(ctx context.Context, agentID string, n int) ([]model.Message, error) {
	if n <= 0 {
		return s.GetConversation(ctx, agentID)
	}
	return s.queryMessages(ctx, `
		SELECT agent_id, turn, role, content, from_agent_id, created_at FROM (
			SELECT agent_id, turn, role, content, from_agent_id, created_at, id
			FROM messages WHERE agent_id = $1 ORDER BY id DESC LIMIT $2
		) recent ORDER BY id`, agentID, n)
}

func (s *PostgresConversationStore) GetByTurnRange(ctx context.Context, agentID string, fromTurn, toTurn int) ([]model.Message, error) {
	return s.queryMessages(ctx, `
		SELECT agent_id, turn, role, content, from_agent_id, created_at
		FROM messages WHERE agent_id = $1 AND turn >= $2 AND turn <= $3 ORDER BY id`, agentID, fromTurn, toTurn)
}

func (s *PostgresConversationStore) GetMessageCount(ctx context.Context, agentID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM messages WHERE agent_id = $1`, agentID).Scan(&count)
	return count, err
}

func (s *PostgresConversationStore) DeleteConversation(ctx context.Context, agentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE agent_id = $1`, agentID)
	return err
}

func (s *PostgresConversationStore) queryMessages(ctx context.Context, query string, args ...interface{}) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.AgentID, &m.Turn, &m.Role, &m.Content, &m.FromAgentID, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
