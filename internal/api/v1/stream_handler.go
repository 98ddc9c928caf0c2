package v1

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirkhezir/church-app-sub002/internal/api/middleware"
	"github.com/kirkhezir/church-app-sub002/internal/api/response"
	"github.com/kirkhezir/church-app-sub002/internal/sse"
)

type StreamHandler struct {
	hub *sse.SSEHub
}

func NewStreamHandler(hub *sse.SSEHub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

func RegisterAnnouncementStreamRoutes(group *gin.RouterGroup, hub *sse.SSEHub, auth gin.HandlerFunc) {
	if hub == nil {
		return
	}

	handler := NewStreamHandler(hub)
	if auth != nil {
		group.GET("/announcements/stream", auth, handler.Stream)
		return
	}
	group.GET("/announcements/stream", handler.Stream)
}

// Stream
// @Summary Live announcement changes
// @Description Server-sent events; resumes after Last-Event-ID when the event is still buffered.
// @Tags announcement
// @Produce text/event-stream
// @Success 200 {string} string
// @Failure 401 {object} response.Response
// @Router /api/v1/announcements/stream [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "stream unsupported")
		return
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	client := sse.NewClient(claims.UserID, claims.Role)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	for _, event := range h.hub.Since(c.GetHeader("Last-Event-ID")) {
		if err := writeSSEEvent(c, event); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-client.Done:
			return
		case event := <-client.Ch:
			if err := writeSSEEvent(c, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(c *gin.Context, event sse.SSEEvent) error {
	if _, err := fmt.Fprintf(c.Writer, "id: %s\nevent: %s\n", event.ID, event.Type); err != nil {
		return err
	}

	for _, line := range strings.Split(event.Data, "\n") {
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n", line); err != nil {
			return err
		}
	}

	_, err := fmt.Fprint(c.Writer, "\n")
	return err
}
