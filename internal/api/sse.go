package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"gapminder/internal/events"
)

// sseKeepaliveInterval is how often a comment line is sent to idle streams.
var sseKeepaliveInterval = 15 * time.Second

// StreamEvents streams a session's frame, population and close events as
// server-sent events. The stream ends when the client disconnects or the
// session closes.
func (h *Handler) StreamEvents(c echo.Context) error {
	if h.hub == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "event stream disabled")
	}
	s, err := h.session(c)
	if err != nil {
		return h.fail(c, err)
	}

	sub := h.hub.Subscribe(events.SessionTopics(s.ID))
	defer h.hub.Unsubscribe(sub)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	h.logger.Debug("event stream opened", zap.String("session", s.ID))
	return h.stream(c.Request().Context(), w, sub, c.Request().Header.Get("Last-Event-ID"))
}

// stream writes sub's events to w until ctx ends or a close event is sent.
// When lastEventID is set, buffered events after it are replayed first.
func (h *Handler) stream(ctx context.Context, w *echo.Response, sub *events.Subscription, lastEventID string) error {
	// Events already replayed may also be queued on the subscription; skip
	// them.
	var replayed uint64
	if lastEventID != "" {
		if lastID, err := strconv.ParseUint(lastEventID, 10, 64); err == nil {
			for _, evt := range h.hub.EventsSince(lastID) {
				replayed = evt.ID
				if sub.Matches(evt.Topic) {
					writeSSEEvent(w, evt)
					if isClosed(evt) {
						w.Flush()
						return nil
					}
				}
			}
			w.Flush()
		}
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-sub.C():
			if evt.ID <= replayed {
				continue
			}
			writeSSEEvent(w, evt)
			w.Flush()
			if isClosed(evt) {
				return nil
			}
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			w.Flush()
		}
	}
}

func isClosed(evt *events.Event) bool {
	return strings.HasSuffix(evt.Topic, "."+events.KindClosed)
}

func writeSSEEvent(w *echo.Response, evt *events.Event) {
	fmt.Fprintf(w, "id:%d\n", evt.ID)
	fmt.Fprintf(w, "event:%s\n", evt.Topic)
	fmt.Fprintf(w, "data:%s\n\n", evt.Data)
}
