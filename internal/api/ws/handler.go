package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/api/middleware"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/relay"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ClientMessage is a frame sent by the host UI
type ClientMessage struct {
	Type string `json:"type"`
}

// Handler serves GET /ws/workspaces/:id/console
type Handler struct {
	workspaces *workspace.Manager
	hub        *Hub
	upgrader   websocket.Upgrader
	logger     *logging.Logger
	metrics    *monitoring.Metrics
}

// NewHandler creates a websocket handler. Upgrades from origins the
// policy rejects fail with 403.
func NewHandler(workspaces *workspace.Manager, hub *Hub, origins *relay.Origins, logger *logging.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		workspaces: workspaces,
		hub:        hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return origins.Allowed(r.Header.Get("Origin"), r.Host)
			},
		},
		logger:  logging.OrNop(logger).Named("ws"),
		metrics: metrics,
	}
}

// HandleConnection upgrades the request, replays the current console and
// run state, then streams new frames until the client goes away
func (h *Handler) HandleConnection(c *gin.Context) {
	wsID := id.WorkspaceID(c.Param("id"))
	owner := middleware.Owner(c)

	// Subscribe before the snapshot so nothing falls between them
	sub := h.hub.Subscribe(wsID)
	defer h.hub.Unsubscribe(sub)

	snap, err := h.workspaces.Get(c.Request.Context(), owner, wsID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, workspace.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, workspace.ErrForbidden):
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()
	h.logger.Debug("Console subscriber connected", zap.String("workspace", wsID.String()), zap.String("owner", owner))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	replies := make(chan types.WSMessage, 8)
	go h.readLoop(ctx, cancel, conn, owner, wsID, replies)

	if err := h.replay(conn, snap); err != nil {
		return
	}
	h.writeLoop(ctx, conn, sub, replies, snap.Version)
}

// replay sends a welcome frame, the buffered console lines and the run
func (h *Handler) replay(conn *websocket.Conn, snap *workspace.Workspace) error {
	now := time.Now().UnixMilli()
	frames := make([]types.WSMessage, 0, len(snap.Console)+2)
	frames = append(frames, types.WSMessage{Type: types.FrameSystem, Message: "connected", Timestamp: now})
	for i := range snap.Console {
		frames = append(frames, types.WSMessage{Type: types.FrameConsole, ConsoleLine: &snap.Console[i], Timestamp: now})
	}
	run := snap.Run
	frames = append(frames, types.WSMessage{Type: types.FrameRun, Run: &run, Timestamp: now})

	for _, msg := range frames {
		msg.Workspace = snap.ID.String()
		if err := h.send(conn, msg); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *Subscription, replies <-chan types.WSMessage, seen int) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if replayed(msg, seen) {
				continue
			}
			if err := h.send(conn, msg); err != nil {
				return
			}
		case msg := <-replies:
			if err := h.send(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop handles client frames. Any read error ends the connection.
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, owner string, wsID id.WorkspaceID, replies chan<- types.WSMessage) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		h.metrics.RecordWSMessage("in", msg.Type)

		var reply types.WSMessage
		switch msg.Type {
		case "ping":
			reply = types.WSMessage{Type: types.FramePong}
		case "clear":
			// Subscribers, this one included, get a clear frame from the hub
			if err := h.workspaces.ClearConsole(ctx, owner, wsID); err != nil {
				reply = types.WSMessage{Type: types.FrameError, Message: err.Error()}
			}
		default:
			reply = types.WSMessage{Type: types.FrameError, Message: "unknown message type"}
		}
		if reply.Type == "" {
			continue
		}
		reply.Workspace = wsID.String()
		reply.Timestamp = time.Now().UnixMilli()
		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, msg types.WSMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	return nil
}

// replayed reports whether a hub frame was queued before the snapshot with
// the given version was taken, so the replay already covers it
func replayed(msg types.WSMessage, version int) bool {
	return msg.Version != 0 && msg.Version <= version
}
