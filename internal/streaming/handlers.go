package streaming

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/wavecoord/internal/common/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler serves WebSocket upgrade requests for the streaming hub.
type WSHandler struct {
	hub *Hub
	log *logger.Logger
}

// NewWSHandler constructs a WSHandler bound to hub.
func NewWSHandler(hub *Hub, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.Default()
	}
	return &WSHandler{hub: hub, log: log.With(zap.String("component", "ws_handler"))}
}

// StreamWorkspace upgrades the connection and subscribes the client to a
// single workspace's phase/chunk events.
// WS /api/v1/workspaces/:workspaceId/stream
func (h *WSHandler) StreamWorkspace(c *gin.Context) {
	workspaceID := c.Param("workspaceId")
	if workspaceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "MISSING_WORKSPACE_ID", "message": "workspace id is required"}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", zap.String("workspace_id", workspaceID), zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	client := NewClient(clientID, conn, h.hub, h.log)
	h.hub.Register(client)
	client.Subscribe(workspaceID)

	h.log.Info("streaming client connected",
		zap.String("client_id", clientID),
		zap.String("workspace_id", workspaceID))

	go client.WritePump()
	go client.ReadPump()
}

// StreamAll upgrades the connection without an initial subscription; the
// client drives its own subscribe/unsubscribe messages over the socket.
// WS /api/v1/stream
func (h *WSHandler) StreamAll(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	client := NewClient(clientID, conn, h.hub, h.log)
	h.hub.Register(client)

	h.log.Info("streaming client connected", zap.String("client_id", clientID))

	go client.WritePump()
	go client.ReadPump()
}

// SetupRoutes wires the streaming endpoints onto a gin router group.
func SetupRoutes(group *gin.RouterGroup, handler *WSHandler) {
	group.GET("/workspaces/:workspaceId/stream", handler.StreamWorkspace)
	group.GET("/stream", handler.StreamAll)
}
