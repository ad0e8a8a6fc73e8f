package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-schedule/internal/api"
	"github.com/p-n-ai/pai-schedule/internal/assessment"
	"github.com/p-n-ai/pai-schedule/internal/docstore"
	"github.com/p-n-ai/pai-schedule/internal/schedule"
)

const (
	courseDoc = `{
  "id": "bio-20",
  "title": "Biology 20",
  "status": "On Track",
  "weights": {"lesson": 0.3, "exam": 0.7},
  "units": [
    {"name": "Cells", "sequence": 1, "items": [
      {"title": "Cell Structure", "type": "lesson"},
      {"title": "Cells Exam", "type": "exam", "lti": {"enabled": true, "deep_link_id": "dl-cells"}}
    ]}
  ]
}`
	studentDoc = `{
  "status": "Behind",
  "schedule": {"units": [
    {"name": "Schedule Information", "items": []},
    {"name": "Cells", "sequence": 1, "items": [
      {"title": "Cell Structure", "date": "2024-10-01"},
      {"title": "Cells Exam", "date": "2024-10-20"}
    ]}
  ]}
}`
	studentKey = "grace@example,com"
	coursePath = "/students/grace@example.com/courses/bio-20"
)

func seededStore(t *testing.T) *docstore.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	must := func(err error) {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(store.Put(ctx, docstore.CoursePath("bio-20"), []byte(courseDoc)))
	must(store.Put(ctx, docstore.StudentCoursePath(studentKey, "bio-20"), []byte(studentDoc)))
	must(docstore.PutJSON(ctx, store, docstore.DeepLinkPath("dl-cells"), assessment.DeepLinkInfo{
		URL: "https://edge.example/cells", AssessmentID: "a-cells", ScoreMaximum: 40,
	}))
	must(docstore.PutJSON(ctx, store, docstore.GradePath("a-cells", "ext-7"), assessment.GradeRecord{
		Score: 30, Status: "completed", LastChange: 1728990000,
	}))
	return store
}

func newHandler(store docstore.Store) *api.Handler {
	now := func() time.Time { return time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC) }
	normalizer := schedule.NewNormalizer(schedule.NormalizerConfig{Resolver: assessment.NewSource(store), Now: now})
	return api.New(api.Config{
		Store:      store,
		Normalizer: normalizer,
		Controller: schedule.NewController(schedule.ControllerConfig{Store: store, Normalizer: normalizer}),
		Now:        now,
	})
}

func TestHealthEndpoints(t *testing.T) {
	mux := newHandler(docstore.NewMemoryStore()).Routes()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

// downStore fails every health check.
type downStore struct {
	*docstore.MemoryStore
}

func (downStore) HealthCheck(context.Context) error { return errors.New("connection refused") }

func TestReadyz_StoreDown(t *testing.T) {
	mux := newHandler(downStore{docstore.NewMemoryStore()}).Routes()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSchedule(t *testing.T) {
	mux := newHandler(seededStore(t)).Routes()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api"+coursePath+"/schedule?external_student_id=ext-7", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var res schedule.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.TotalItems != 2 {
		t.Errorf("TotalItems = %d, want 2", res.TotalItems)
	}
	exam := res.Units[0].Items[1]
	if exam.State != schedule.Completed || exam.Assessment == nil || exam.Assessment.ScorePercent != 75 {
		t.Errorf("exam = %+v", exam)
	}
	if res.ScheduleAdherence.Status != "Behind" || res.ScheduleAdherence.AlertLevel != schedule.AlertWarning {
		t.Errorf("adherence status = %q/%q", res.ScheduleAdherence.Status, res.ScheduleAdherence.AlertLevel)
	}
}

func TestSchedule_Errors(t *testing.T) {
	store := seededStore(t)
	_ = store.Put(context.Background(), docstore.CoursePath("broken"), []byte(`{"units":[{"name":"x","items":[{"title":"t","type":"essay"}]}]}`))
	mux := newHandler(store).Routes()

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"missing external id", "/api" + coursePath + "/schedule", http.StatusBadRequest},
		{"unknown course", "/api/students/grace@example.com/courses/nope/schedule?external_student_id=ext-7", http.StatusNotFound},
		{"unknown student", "/api/students/linus@example.com/courses/bio-20/schedule?external_student_id=ext-7", http.StatusNotFound},
		{"invalid course", "/api/students/grace@example.com/courses/broken/schedule?external_student_id=ext-7", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("body = %s, want an error message", rec.Body.String())
			}
		})
	}
}

func TestStructure(t *testing.T) {
	mux := newHandler(seededStore(t)).Routes()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api"+coursePath+"/structure", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var v schedule.Validation
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !v.IsValid {
		t.Errorf("validation = %+v, want valid", v)
	}
}

func TestMarksWorkbook(t *testing.T) {
	mux := newHandler(seededStore(t)).Routes()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api"+coursePath+"/marks.xlsx?external_student_id=ext-7", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "bio-20-marks.xlsx") {
		t.Errorf("Content-Disposition = %q", got)
	}

	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Items")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("item rows = %d, want header + 2", len(rows))
	}
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, eventType string) api.LiveEvent {
	t.Helper()
	for {
		var ev api.LiveEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read %s event: %v", eventType, err)
		}
		if ev.Type == eventType {
			return ev
		}
	}
}

func TestLiveSchedule(t *testing.T) {
	store := seededStore(t)
	srv := httptest.NewServer(newHandler(store).Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + coursePath + "/schedule?external_student_id=ext-7"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	ev := readUntil(t, ctx, conn, api.EventSchedule)
	if ev.Schedule == nil || ev.Schedule.TotalItems != 2 {
		t.Fatalf("schedule event = %+v", ev)
	}

	err = docstore.PutJSON(ctx, store, docstore.GradePath("a-cells", "ext-7"), assessment.GradeRecord{
		Score: 40, Status: "completed", LastChange: 1729000000,
	})
	if err != nil {
		t.Fatal(err)
	}

	ev = readUntil(t, ctx, conn, api.EventItem)
	for ev.Item.Value.Assessment.ScorePercent != 100 {
		ev = readUntil(t, ctx, conn, api.EventItem)
	}
	if ev.Item.UnitIndex != 0 || ev.Item.ItemIndex != 1 {
		t.Errorf("item event at (%d,%d), want (0,1)", ev.Item.UnitIndex, ev.Item.ItemIndex)
	}

	conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for store.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d after close, want 0", store.Subscribers())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveSchedule_RequiresExternalID(t *testing.T) {
	mux := newHandler(seededStore(t)).Routes()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws"+coursePath+"/schedule", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
