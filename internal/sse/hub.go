package sse

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kirkhezir/church-app-sub002/internal/metrics"
	"github.com/kirkhezir/church-app-sub002/internal/model"
)

const (
	heartbeatInterval     = 30 * time.Second
	backpressureFullLimit = 5

	ActionDeleted = "deleted"
)

// SSEHub fans announcement changes out to connected portal sessions. One
// stream is kept per user; a new connection replaces the previous one.
type SSEHub struct {
	clients  sync.Map
	eventBuf *RingBuffer

	logger    *zap.Logger
	stopCh    chan struct{}
	closeOnce sync.Once
}

func NewHub(logger *zap.Logger) *SSEHub {
	hub := newHub(logger)
	go hub.startHeartbeat()
	return hub
}

func newHub(logger *zap.Logger) *SSEHub {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SSEHub{
		eventBuf: NewRingBuffer(defaultRingBufferSize),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (h *SSEHub) Register(client *SSEClient) {
	if h == nil || client == nil || client.UserID == "" {
		return
	}

	if current, loaded := h.clients.Swap(client.UserID, client); loaded {
		if previous, ok := current.(*SSEClient); ok && previous != client {
			previous.Close()
		}
	}
	metrics.SetStreamClients(h.ConnectedCount())
}

// Unregister removes client only if it is still the registered stream for
// its user.
func (h *SSEHub) Unregister(client *SSEClient) {
	if h == nil || client == nil {
		return
	}

	if h.clients.CompareAndDelete(client.UserID, client) {
		metrics.SetStreamClients(h.ConnectedCount())
	}
	client.Close()
}

// PublishAnnouncement broadcasts a lifecycle change. Deleted announcements
// only carry their id.
func (h *SSEHub) PublishAnnouncement(action string, announcement *model.Announcement) {
	if h == nil || announcement == nil {
		return
	}

	payload := AnnouncementEvent{
		Action: action,
		ID:     announcement.ID.String(),
	}
	if action != ActionDeleted {
		payload.Announcement = announcement
	}
	h.Broadcast(NewEvent(EventAnnouncement, payload))
}

func (h *SSEHub) Broadcast(event SSEEvent) {
	if h == nil {
		return
	}

	if event.Type != EventHeartbeat {
		h.eventBuf.Push(event)
	}
	h.clients.Range(func(_, value any) bool {
		if client, ok := value.(*SSEClient); ok {
			h.dispatch(client, event)
		}
		return true
	})
}

// Since returns buffered events newer than lastID for stream resumption.
func (h *SSEHub) Since(lastID string) []SSEEvent {
	if h == nil {
		return nil
	}
	return h.eventBuf.Since(lastID)
}

func (h *SSEHub) Close() {
	if h == nil {
		return
	}

	h.closeOnce.Do(func() {
		close(h.stopCh)
		h.clients.Range(func(key, value any) bool {
			h.clients.Delete(key)
			if client, ok := value.(*SSEClient); ok {
				client.Close()
			}
			return true
		})
		metrics.SetStreamClients(0)
	})
}

func (h *SSEHub) ConnectedCount() int {
	if h == nil {
		return 0
	}

	count := 0
	h.clients.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (h *SSEHub) dispatch(client *SSEClient, event SSEEvent) {
	if client == nil {
		return
	}

	select {
	case <-client.Done:
		return
	case client.Ch <- event:
		client.MarkDispatchSuccess()
		return
	default:
		streak := client.MarkDispatchFull()
		h.logger.Warn("drop stream event due to full buffer",
			zap.String("user_id", client.UserID),
			zap.String("type", event.Type),
			zap.Int32("full_streak", streak),
		)
		if streak >= backpressureFullLimit {
			h.logger.Warn("disconnect slow stream client",
				zap.String("user_id", client.UserID),
				zap.Int32("full_streak", streak),
			)
			h.Unregister(client)
		}
	}
}

func (h *SSEHub) startHeartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case now := <-ticker.C:
			h.Broadcast(NewEvent(EventHeartbeat, map[string]any{
				"ts": now.UTC().Format(time.RFC3339Nano),
			}))
		}
	}
}
