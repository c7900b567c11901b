package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/pkg/logger"
)

const defaultHeartbeat = 15 * time.Second

// EventsHandler streams contest results as Server-Sent Events.
type EventsHandler struct {
	deps      Dependencies
	heartbeat time.Duration
	logger    logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies, heartbeat time.Duration, log logger.Logger) *EventsHandler {
	return &EventsHandler{deps: deps, heartbeat: heartbeat, logger: log}
}

// HandleStream handles GET /contests/{id}/events. The stream opens with a
// "snapshot" event holding the current results and continues with an
// "update" event whenever the totals grow. Comment lines keep idle
// connections alive.
func (h *EventsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.contest_events"
	ctx := r.Context()
	id := r.PathValue("id")

	// Subscribe before reading so no vote falls between the two.
	sub, err := h.deps.Subscribe(id)
	if err != nil {
		writeDomainError(ctx, h.logger, w, op, err)
		return
	}
	defer sub.Close()

	view, err := h.deps.Contest(ctx, id)
	if err != nil {
		writeDomainError(ctx, h.logger, w, op, err)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", view); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Warn(ctx, "event stream cannot flush", logger.Error(err))
		return
	}
	last := view.Total

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-sub.C:
			if !ok {
				return
			}
			if v.Total <= last {
				continue
			}
			last = v.Total
			if err := writeEvent(w, "update", v); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, event string, view types.ContestView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
