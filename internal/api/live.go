package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-schedule/internal/course"
	"github.com/p-n-ai/pai-schedule/internal/schedule"
)

const liveWriteTimeout = 10 * time.Second

// Live event types.
const (
	EventItem     = "item"
	EventSchedule = "schedule"
)

// LiveEvent is one message on the live schedule socket.
type LiveEvent struct {
	Type     string           `json:"type"`
	Item     *ItemEvent       `json:"item,omitempty"`
	Schedule *schedule.Result `json:"schedule,omitempty"`
}

// ItemEvent carries a single patched item.
type ItemEvent struct {
	UnitIndex int           `json:"unitIndex"`
	ItemIndex int           `json:"itemIndex"`
	Value     schedule.Item `json:"value"`
}

// handleLive upgrades to a WebSocket and streams the session's updates
// until either side closes.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	studentKey, courseID := studentKeyParam(r), r.PathValue("courseID")
	extID := r.URL.Query().Get("external_student_id")
	if extID == "" {
		writeError(w, http.StatusBadRequest, "external_student_id is required")
		return
	}

	// Server-wide deadlines would otherwise cut long-lived sockets.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	send := func(ev LiveEvent) {
		wctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
		defer cancel()
		if err := wsjson.Write(wctx, conn, ev); err != nil {
			slog.Debug("live write failed", "student", studentKey, "course_id", courseID, "error", err)
		}
	}

	sess, err := h.controller.GetScheduleData(ctx, studentKey, courseID, extID,
		func(ui, ii int, it schedule.Item) {
			send(LiveEvent{Type: EventItem, Item: &ItemEvent{UnitIndex: ui, ItemIndex: ii, Value: it}})
		},
		func(res *schedule.Result, _ *course.Course, _ *course.StudentCourse) {
			send(LiveEvent{Type: EventSchedule, Schedule: res})
		},
	)
	if err != nil {
		slog.Error("failed to start live session", "student", studentKey, "course_id", courseID, "error", err)
		conn.Close(websocket.StatusInternalError, "session failed")
		return
	}
	defer sess.Cleanup()

	<-ctx.Done()
	conn.Close(websocket.StatusNormalClosure, "")
}
