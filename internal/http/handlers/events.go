package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studymill/studymill-backend/internal/http/response"
	"github.com/studymill/studymill-backend/internal/platform/logger"
	"github.com/studymill/studymill-backend/internal/progress"
)

// EventsHandler streams job progress to the owner over SSE.
type EventsHandler struct {
	log *logger.Logger
	hub *progress.Hub
}

func NewEventsHandler(log *logger.Logger, hub *progress.Hub) *EventsHandler {
	return &EventsHandler{
		log: log.With("handler", "EventsHandler"),
		hub: hub,
	}
}

func (h *EventsHandler) Stream(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", nil)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	client := h.hub.Subscribe(owner.String())
	defer h.hub.Unsubscribe(client)

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	c.Writer.WriteString(": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-keepalive.C:
			c.Writer.WriteString(": keepalive\n\n")
			flusher.Flush()
		case msg, open := <-client.Outbound:
			if !open {
				return
			}
			payload, err := json.Marshal(msg.Event)
			if err != nil {
				h.log.Warn("marshal progress event", "error", err)
				continue
			}
			c.Writer.WriteString("event: job_progress\ndata: ")
			c.Writer.Write(payload)
			c.Writer.WriteString("\n\n")
			flusher.Flush()
		}
	}
}
