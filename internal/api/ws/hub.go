// Package ws streams workspace console output to host UIs over websockets.
package ws

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
)

// subscriberBuffer is how many frames a slow client may lag before frames
// are dropped for it
const subscriberBuffer = 256

// Subscription is one client's frame channel
type Subscription struct {
	C         <-chan types.WSMessage
	ch        chan types.WSMessage
	workspace id.WorkspaceID
}

// Hub fans workspace events out to subscribers. It implements
// workspace.Listener.
type Hub struct {
	mu      sync.RWMutex
	subs    map[id.WorkspaceID]map[*Subscription]struct{}
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewHub creates an empty hub
func NewHub(metrics *monitoring.Metrics) *Hub {
	return &Hub{
		subs:    make(map[id.WorkspaceID]map[*Subscription]struct{}),
		metrics: metrics,
		now:     time.Now,
	}
}

// Subscribe registers a subscriber for one workspace. The caller must
// Unsubscribe when done.
func (h *Hub) Subscribe(workspace id.WorkspaceID) *Subscription {
	ch := make(chan types.WSMessage, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, workspace: workspace}

	h.mu.Lock()
	set, ok := h.subs[workspace]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[workspace] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[sub.workspace]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.workspace)
	}
	close(sub.ch)
}

// Publish sends a frame to every subscriber of the workspace without
// blocking; frames are dropped for subscribers whose buffer is full
func (h *Hub) Publish(workspace id.WorkspaceID, msg types.WSMessage) {
	if msg.Timestamp == 0 {
		msg.Timestamp = h.now().UnixMilli()
	}
	msg.Workspace = workspace.String()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[workspace] {
		select {
		case sub.ch <- msg:
			h.metrics.RecordWSMessage("out", msg.Type)
		default:
			h.metrics.RecordWSMessage("dropped", msg.Type)
		}
	}
}

// Count returns the number of subscribers of a workspace
func (h *Hub) Count(workspace id.WorkspaceID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[workspace])
}

// ConsoleAppended implements workspace.Listener
func (h *Hub) ConsoleAppended(workspace id.WorkspaceID, line types.ConsoleLine, version int) {
	h.Publish(workspace, types.WSMessage{Type: types.FrameConsole, ConsoleLine: &line, Version: version})
}

// ConsoleCleared implements workspace.Listener
func (h *Hub) ConsoleCleared(workspace id.WorkspaceID, version int) {
	h.Publish(workspace, types.WSMessage{Type: types.FrameClear, Version: version})
}

// RunChanged implements workspace.Listener
func (h *Hub) RunChanged(workspace id.WorkspaceID, run types.Run, version int) {
	h.Publish(workspace, types.WSMessage{Type: types.FrameRun, Run: &run, Version: version})
}
