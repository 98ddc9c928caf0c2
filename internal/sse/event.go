package sse

import (
	"encoding/json"
	"strconv"
	"sync/atomic"

	"github.com/kirkhezir/church-app-sub002/internal/model"
)

type SSEEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data string `json:"data"`
}

const (
	EventHeartbeat    = "heartbeat"
	EventAnnouncement = "announcement"
)

// AnnouncementEvent is the payload of an announcement event. Announcement is
// omitted once the item has been deleted.
type AnnouncementEvent struct {
	Action       string              `json:"action"`
	ID           string              `json:"id"`
	Announcement *model.Announcement `json:"announcement,omitempty"`
}

var globalEventID int64

func NewEvent(eventType string, payload any) SSEEvent {
	id := atomic.AddInt64(&globalEventID, 1)
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("null")
	}

	return SSEEvent{
		ID:   strconv.FormatInt(id, 10),
		Type: eventType,
		Data: string(data),
	}
}
