// Package api exposes the orchestrator, coordinator state, and agent tool
// surface over HTTP, grounded on the teacher's internal/orchestrator/api
// handler package.
package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/wavecoord/internal/common/kerrors"
	"github.com/kandev/wavecoord/internal/common/logger"
	"github.com/kandev/wavecoord/internal/coordinator"
	"github.com/kandev/wavecoord/internal/orchestrator"
	"github.com/kandev/wavecoord/internal/store"
	"github.com/kandev/wavecoord/internal/toolsurface"
)

// Handler serves the HTTP surface over one workspace's orchestrator.
type Handler struct {
	orch  *orchestrator.Orchestrator
	coord *coordinator.Coordinator
	tools *toolsurface.Surface
	log   *logger.Logger
}

// NewHandler constructs a Handler over an already-wired Orchestrator,
// Coordinator, and tool Surface sharing the same workspace.
func NewHandler(orch *orchestrator.Orchestrator, coord *coordinator.Coordinator, tools *toolsurface.Surface, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{orch: orch, coord: coord, tools: tools, log: log.With(zap.String("component", "api"))}
}

type runRequest struct {
	UserRequest string `json:"user_request" binding:"required"`
}

// RunWorkspace drives the full orchestrator loop synchronously for one
// workspace and returns its terminal Result.
// POST /api/v1/workspaces/:workspaceId/run
func (h *Handler) RunWorkspace(c *gin.Context) {
	workspaceID := c.Param("workspaceId")
	if workspaceID == "" {
		writeError(c, kerrors.New(kerrors.KindConfigError, errMissingWorkspaceID))
		return
	}

	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, kerrors.New(kerrors.KindConfigError, err))
		return
	}

	result, err := h.orch.Run(c.Request.Context(), workspaceID, req.UserRequest)
	if err != nil {
		h.log.Error("orchestrator run failed", zap.String("workspace_id", workspaceID), zap.Error(err))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetState returns the coordinator's current CoordinationState snapshot.
// GET /api/v1/workspaces/:workspaceId/state
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.Snapshot())
}

// GetTask returns a single task by id.
// GET /api/v1/tasks/:taskId
func (h *Handler) GetTask(c *gin.Context) {
	taskID := c.Param("taskId")
	task, err := h.coord.TaskByID(c.Request.Context(), taskID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// ListAgents proxies the list_agents tool for a workspace.
// GET /api/v1/workspaces/:workspaceId/agents
func (h *Handler) ListAgents(c *gin.Context) {
	writeToolResult(c, h.tools.ListAgents(c.Request.Context(), c.Param("workspaceId")))
}

// GetAgentStatus proxies the get_agent_status tool.
// GET /api/v1/agents/:agentId
func (h *Handler) GetAgentStatus(c *gin.Context) {
	writeToolResult(c, h.tools.GetAgentStatus(c.Request.Context(), c.Param("agentId")))
}

// GetAgentSummary proxies the get_agent_summary tool.
// GET /api/v1/agents/:agentId/summary
func (h *Handler) GetAgentSummary(c *gin.Context) {
	writeToolResult(c, h.tools.GetAgentSummary(c.Request.Context(), c.Param("agentId")))
}

// GetAgentConversation proxies the read_agent_conversation tool.
// GET /api/v1/agents/:agentId/conversation
func (h *Handler) GetAgentConversation(c *gin.Context) {
	writeToolResult(c, h.tools.ReadAgentConversation(c.Request.Context(), c.Param("agentId"), nil, nil))
}

type errMissingWorkspaceIDType string

func (e errMissingWorkspaceIDType) Error() string { return string(e) }

const errMissingWorkspaceID = errMissingWorkspaceIDType("workspace id is required")

// writeToolResult maps a toolsurface.ToolResult onto the HTTP response,
// keeping the same success/data/error envelope the tool surface already uses
// for its MCP exposure.
func writeToolResult(c *gin.Context, res toolsurface.ToolResult) {
	if !res.Success {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": res.Error}})
		return
	}
	c.JSON(http.StatusOK, res.Data)
}

// writeError maps a kerrors.Kind onto an HTTP status code. Errors that
// aren't tagged fall back to 500.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case kerrors.Is(err, kerrors.KindNotFound), stderrors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case kerrors.Is(err, kerrors.KindIllegalTransition), kerrors.Is(err, kerrors.KindConfigError):
		status = http.StatusBadRequest
	case kerrors.Is(err, kerrors.KindTimeout):
		status = http.StatusGatewayTimeout
	case kerrors.Is(err, kerrors.KindMaxWavesReached):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": gin.H{"message": err.Error()}})
}

// SetupRoutes wires the orchestrator/coordinator/tool-surface HTTP endpoints
// onto a gin router group.
func SetupRoutes(group *gin.RouterGroup, h *Handler) {
	group.POST("/workspaces/:workspaceId/run", h.RunWorkspace)
	group.GET("/workspaces/:workspaceId/state", h.GetState)
	group.GET("/workspaces/:workspaceId/agents", h.ListAgents)
	group.GET("/tasks/:taskId", h.GetTask)
	group.GET("/agents/:agentId", h.GetAgentStatus)
	group.GET("/agents/:agentId/summary", h.GetAgentSummary)
	group.GET("/agents/:agentId/conversation", h.GetAgentConversation)
}
