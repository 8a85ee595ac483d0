package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
)

type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan events.Notice, error)
}

type StreamHandler struct {
	sub       Subscriber
	logger    *slog.Logger
	writeErr  auth.ErrorWriter
	heartbeat time.Duration
}

func NewStreamHandler(sub Subscriber, logger *slog.Logger, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &StreamHandler{sub: sub, logger: logger, writeErr: httpx.ErrorWriter(logger), heartbeat: heartbeat}
}

func (h *StreamHandler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/notifications/stream", auth.RequireRole(h.writeErr)(http.HandlerFunc(h.Stream)))
}

// Stream is a server-sent event stream of the caller's notices.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeErr(w, r, apperr.Internal("streaming not supported", nil))
		return
	}

	notices, err := h.sub.Subscribe(r.Context(), p.UserID)
	if err != nil {
		h.writeErr(w, r, apperr.Upstream("notification stream unavailable", err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, "connected", "", map[string]any{"user_id": p.UserID})
	flusher.Flush()
	h.logger.Debug("notification stream opened", "user_id", p.UserID)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("notification stream closed", "user_id", p.UserID)
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat %d\n\n", time.Now().Unix())
			flusher.Flush()
		case n, ok := <-notices:
			if !ok {
				return
			}
			writeEvent(w, "notification", n.ID, n)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event, id string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, raw)
}
