package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kandev/wavecoord/internal/coordinator"
	"github.com/kandev/wavecoord/internal/eventbus"
	"github.com/kandev/wavecoord/internal/model"
	"github.com/kandev/wavecoord/internal/orchestrator"
	"github.com/kandev/wavecoord/internal/provider"
	"github.com/kandev/wavecoord/internal/store"
	"github.com/kandev/wavecoord/internal/subscription"
	"github.com/kandev/wavecoord/internal/toolsurface"
)

const onePlan = `
@@@task
# Implement Login API
## Objective
Add a login endpoint.
## Definition of Done
- login returns a token
@@@
`

func setupTestHandler(t *testing.T) (*Handler, *gin.Engine, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := eventbus.NewMemoryEventBus(64, nil)
	subs := subscription.New(bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, subs.StartListening(ctx))

	agents := store.NewMemoryAgentStore()
	tasks := store.NewMemoryTaskStore()
	convos := store.NewMemoryConversationStore()
	tools := toolsurface.New(agents, tasks, convos, bus, subs, nil)
	coord := coordinator.New(agents, tasks, convos, tools, subs, coordinator.Config{MaxWaves: 5, ConversationTailMessages: 20}, nil)

	scripts := map[model.Role][]string{
		model.RoleRouta:   {onePlan},
		model.RoleCrafter: {"done"},
		model.RoleGate:    {"APPROVED"},
	}
	mock := provider.NewMockProvider(provider.Capabilities{SupportsToolCalling: true, SupportsFileEditing: true, SupportsTerminal: true}, scripts)

	orch, err := orchestrator.New(coord, mock, 5, nil, nil)
	require.NoError(t, err)

	handler := NewHandler(orch, coord, tools, nil)
	router := gin.New()
	SetupRoutes(router.Group("/api/v1"), handler)

	return handler, router, func() {
		cancel()
		bus.Close()
	}
}

func TestHandler_GetState(t *testing.T) {
	_, router, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/ws-1/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_GetTask_NotFound(t *testing.T) {
	_, router, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_RunWorkspace_MissingBody(t *testing.T) {
	_, router, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspaces/ws-1/run", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ListAgents_EmptyWorkspace(t *testing.T) {
	_, router, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/ws-1/agents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
