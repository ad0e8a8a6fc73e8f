// Package api serves normalized schedules over HTTP and WebSocket.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-schedule/internal/course"
	"github.com/p-n-ai/pai-schedule/internal/docstore"
	"github.com/p-n-ai/pai-schedule/internal/report"
	"github.com/p-n-ai/pai-schedule/internal/schedule"
)

const readyTimeout = 2 * time.Second

// Config holds configuration for creating a Handler.
type Config struct {
	Store          docstore.Store
	Normalizer     *schedule.Normalizer
	Controller     *schedule.Controller
	OriginPatterns []string         // extra WebSocket origins
	Now            func() time.Time // workbook timestamps, defaults to time.Now
}

// Handler serves the schedule API.
type Handler struct {
	store          docstore.Store
	normalizer     *schedule.Normalizer
	controller     *schedule.Controller
	originPatterns []string
	now            func() time.Time
}

// New creates a Handler.
func New(cfg Config) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		store:          cfg.Store,
		normalizer:     cfg.Normalizer,
		controller:     cfg.Controller,
		originPatterns: cfg.OriginPatterns,
		now:            now,
	}
}

// Routes returns the HTTP router.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /readyz", h.handleReadyz)
	mux.HandleFunc("GET /api/students/{studentKey}/courses/{courseID}/schedule", h.handleSchedule)
	mux.HandleFunc("GET /api/students/{studentKey}/courses/{courseID}/structure", h.handleStructure)
	mux.HandleFunc("GET /api/students/{studentKey}/courses/{courseID}/marks.xlsx", h.handleMarksWorkbook)
	mux.HandleFunc("GET /ws/students/{studentKey}/courses/{courseID}/schedule", h.handleLive)
	return mux
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := h.store.HealthCheck(ctx); err != nil {
		slog.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	res, _, ok := h.normalize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleStructure(w http.ResponseWriter, r *http.Request) {
	c, sc, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, schedule.ValidateStructure(sc.ScheduleUnits(), c.Units))
}

func (h *Handler) handleMarksWorkbook(w http.ResponseWriter, r *http.Request) {
	res, c, ok := h.normalize(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	meta := report.Meta{
		StudentKey:  studentKeyParam(r),
		CourseID:    c.ID,
		CourseTitle: c.Title,
		GeneratedAt: h.now(),
	}
	if err := report.WriteMarksWorkbook(&buf, res, meta); err != nil {
		slog.Error("failed to build marks workbook", "course_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build workbook")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", r.PathValue("courseID")+"-marks.xlsx"))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// normalize loads both documents and runs a one-shot normalization. It
// writes the error response itself and reports false on failure.
func (h *Handler) normalize(w http.ResponseWriter, r *http.Request) (*schedule.Result, *course.Course, bool) {
	extID := r.URL.Query().Get("external_student_id")
	if extID == "" {
		writeError(w, http.StatusBadRequest, "external_student_id is required")
		return nil, nil, false
	}

	c, sc, ok := h.load(w, r)
	if !ok {
		return nil, nil, false
	}

	res := h.normalizer.Normalize(r.Context(), sc.ScheduleUnits(), c.WithStatus(sc.Status), extID, nil)
	if res == nil {
		writeError(w, http.StatusNotFound, "schedule unavailable")
		return nil, nil, false
	}
	return res, c, true
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*course.Course, *course.StudentCourse, bool) {
	ctx := r.Context()
	studentKey, courseID := studentKeyParam(r), r.PathValue("courseID")

	body, err := h.store.Get(ctx, docstore.CoursePath(courseID))
	if err != nil {
		h.storeError(w, "course", err)
		return nil, nil, false
	}
	c, err := course.DecodeCourse(body)
	if err != nil {
		slog.Warn("invalid course document", "course_id", courseID, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "course document is invalid")
		return nil, nil, false
	}

	body, err = h.store.Get(ctx, docstore.StudentCoursePath(studentKey, courseID))
	if err != nil {
		h.storeError(w, "student course", err)
		return nil, nil, false
	}
	sc, err := course.DecodeStudentCourse(body)
	if err != nil {
		slog.Warn("invalid student course document", "student", studentKey, "course_id", courseID, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "student course document is invalid")
		return nil, nil, false
	}

	return c, sc, true
}

func (h *Handler) storeError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, docstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	slog.Error("document store read failed", "document", what, "error", err)
	writeError(w, http.StatusBadGateway, "document store unavailable")
}

// studentKeyParam accepts either an email or an already encoded key.
func studentKeyParam(r *http.Request) string {
	return docstore.StudentKey(r.PathValue("studentKey"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
