package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"geargrid/listing"
)

// AllEventsChannel 收到所有刊登的異動
const AllEventsChannel = "*"

type eventPayload struct {
	Type  listing.EventType `json:"type"`
	CarID uuid.UUID         `json:"carId"`
	Actor uuid.UUID         `json:"actor"`
	At    time.Time         `json:"at"`
}

func eventChannels(event listing.Event) []string {
	return []string{AllEventsChannel, event.CarID.String()}
}

// Stream listing changes
// (GET /admin/events?car=)
func (impl *ServerImpl) streamEvents(c *gin.Context) {
	const op = "StreamEvents"
	ctx := c.Request.Context()
	if impl.events == nil {
		impl.respondError(c, op, &listing.ConfigurationError{Setting: "redis-event-stream"})
		return
	}
	channel := AllEventsChannel
	if car := c.Query("car"); car != "" {
		id, err := uuid.Parse(car)
		if err != nil {
			badRequest(c, "invalid car")
			return
		}
		channel = id.String()
	}
	ch, err := impl.events.Subscribe(channel)
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	defer impl.events.Unsubscribe(channel, ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	// 先送出標頭，讓客戶端確認訂閱已建立
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Type), eventPayload(event))
			return true
		}
	})
}
