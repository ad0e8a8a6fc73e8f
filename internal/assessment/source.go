// Package assessment adapts external assessment deep links and grade records
// stored in the document store.
package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/p-n-ai/pai-schedule/internal/docstore"
)

// DeepLinkInfo is the metadata behind an item's external assessment link.
type DeepLinkInfo struct {
	URL          string  `json:"url"`
	AssessmentID string  `json:"assessment_id"`
	CourseID     string  `json:"course_id"`
	ScoreMaximum float64 `json:"scoreMaximum"`
}

// Number is a numeric field that also accepts fractional values and numeric
// strings. Anything else decodes as 0 instead of failing the whole record.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = 0
	switch x := v.(type) {
	case float64:
		*n = Number(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			*n = Number(f)
		}
	}
	return nil
}

// GradeRecord is a student's raw grade for one external assessment.
type GradeRecord struct {
	Score      float64 `json:"score"`
	Status     string  `json:"status"`
	StartTime  Number  `json:"startTime"`
	LastChange Number  `json:"lastChange"`
	Version    Number  `json:"version"`
	ScoredData string  `json:"scoreddata,omitempty"`
}

// Data is the resolved assessment attached to a completed item.
type Data struct {
	URL          string  `json:"url,omitempty"`
	AssessmentID string  `json:"assessmentId,omitempty"`
	ScoreMaximum float64 `json:"scoreMaximum"`
	ScorePercent float64 `json:"scorePercent"`
	Score        float64 `json:"score"`
	Status       string  `json:"status"`
	StartTime    Number  `json:"startTime"`
	LastChange   Number  `json:"lastChange"`
	Version      Number  `json:"version"`
	ScoredData   any     `json:"scoreddata,omitempty"`
}

// LastChangedAt converts LastChange (Unix seconds) to a time. It reports
// false when no change time was recorded.
func (d *Data) LastChangedAt() (time.Time, bool) {
	if d == nil || d.LastChange <= 0 {
		return time.Time{}, false
	}
	sec, frac := math.Modf(float64(d.LastChange))
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// Build combines a grade record with its deep-link metadata. It returns nil
// unless both are present.
func Build(record *GradeRecord, info *DeepLinkInfo) *Data {
	if record == nil || info == nil {
		return nil
	}

	d := &Data{
		URL:          info.URL,
		AssessmentID: info.AssessmentID,
		ScoreMaximum: info.ScoreMaximum,
		ScorePercent: ScorePercent(record.Score, info.ScoreMaximum),
		Score:        record.Score,
		Status:       record.Status,
		StartTime:    record.StartTime,
		LastChange:   record.LastChange,
		Version:      record.Version,
	}
	if record.ScoredData != "" {
		d.ScoredData = Decompress(record.ScoredData)
	}
	return d
}

// ScorePercent returns score/maximum as a percentage rounded to one decimal,
// or 0 when maximum is not positive.
func ScorePercent(score, maximum float64) float64 {
	if maximum <= 0 {
		return 0
	}
	p := math.Round(score/maximum*100*10) / 10
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return p
}

// Source reads deep links and grade records from a document store.
type Source struct {
	store docstore.Store
}

// NewSource creates a Source over store.
func NewSource(store docstore.Store) *Source {
	return &Source{store: store}
}

// FetchDeepLinkInfo returns the metadata for deepLinkID, or nil when the id is
// empty or no record exists.
func (s *Source) FetchDeepLinkInfo(ctx context.Context, deepLinkID string) (*DeepLinkInfo, error) {
	if deepLinkID == "" {
		return nil, nil
	}
	var info DeepLinkInfo
	found, err := docstore.GetJSON(ctx, s.store, docstore.DeepLinkPath(deepLinkID), &info)
	if err != nil {
		return nil, fmt.Errorf("fetch deep link %s: %w", deepLinkID, err)
	}
	if !found {
		return nil, nil
	}
	return &info, nil
}

// FetchAssessmentGrade returns the student's grade record, or nil when either
// id is empty or no record exists.
func (s *Source) FetchAssessmentGrade(ctx context.Context, assessmentID, externalStudentID string) (*GradeRecord, error) {
	if assessmentID == "" || externalStudentID == "" {
		return nil, nil
	}
	var rec GradeRecord
	found, err := docstore.GetJSON(ctx, s.store, docstore.GradePath(assessmentID, externalStudentID), &rec)
	if err != nil {
		return nil, fmt.Errorf("fetch grade %s: %w", assessmentID, err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// Resolve chains deep-link lookup, grade fetch and Build. Every failure is
// logged and yields nil so the caller can treat the item as pending.
func (s *Source) Resolve(ctx context.Context, deepLinkID, externalStudentID string) (*DeepLinkInfo, *Data) {
	info, err := s.FetchDeepLinkInfo(ctx, deepLinkID)
	if err != nil {
		slog.Warn("deep link lookup failed", "deep_link_id", deepLinkID, "error", err)
		return nil, nil
	}
	if info == nil {
		slog.Debug("deep link not found", "deep_link_id", deepLinkID)
		return nil, nil
	}

	rec, err := s.FetchAssessmentGrade(ctx, info.AssessmentID, externalStudentID)
	if err != nil {
		slog.Warn("grade lookup failed",
			"assessment_id", info.AssessmentID,
			"external_student_id", externalStudentID,
			"error", err,
		)
		return info, nil
	}
	return info, Build(rec, info)
}

// WatchGrade subscribes to a student's grade record. fn receives nil when the
// record is deleted or cannot be decoded.
func (s *Source) WatchGrade(ctx context.Context, assessmentID, externalStudentID string, fn func(*GradeRecord)) (docstore.Unsubscribe, error) {
	if assessmentID == "" || externalStudentID == "" {
		return nil, fmt.Errorf("assessment id and external student id are required")
	}
	path := docstore.GradePath(assessmentID, externalStudentID)
	return s.store.Subscribe(ctx, path, func(body []byte) {
		if body == nil {
			fn(nil)
			return
		}
		var rec GradeRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			slog.Warn("decode grade record failed", "path", path, "error", err)
			fn(nil)
			return
		}
		fn(&rec)
	})
}
