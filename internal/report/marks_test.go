package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-schedule/internal/assessment"
	"github.com/p-n-ai/pai-schedule/internal/course"
	"github.com/p-n-ai/pai-schedule/internal/report"
	"github.com/p-n-ai/pai-schedule/internal/schedule"
)

func examResult() *schedule.Result {
	date := course.NewDate(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC))
	units := []schedule.Unit{{Name: "Finals", Sequence: 1, Items: []schedule.Item{
		schedule.Item{Title: "Midterm", Type: course.Exam, Weight: 1, Date: date, UnitName: "Finals"}.
			WithAssessment(&assessment.Data{ScorePercent: 80}),
		{Title: "Final", Type: course.Exam, Weight: 1, GlobalIndex: 1, ItemIndex: 1, UnitName: "Finals", State: schedule.Pending},
	}}}
	weights := course.Weights{course.Exam: 1}
	return &schedule.Result{
		Units:             units,
		TotalItems:        2,
		Weights:           weights,
		Marks:             schedule.ComputeMarks(units, weights),
		ScheduleAdherence: schedule.Adherence{Status: "Behind", AlertLevel: schedule.AlertWarning},
	}
}

func TestWriteMarksWorkbook(t *testing.T) {
	var buf bytes.Buffer
	meta := report.Meta{StudentKey: "ada@example,com", CourseID: "c-1", CourseTitle: "Calculus", GeneratedAt: time.Unix(0, 0)}

	if err := report.WriteMarksWorkbook(&buf, examResult(), meta); err != nil {
		t.Fatalf("WriteMarksWorkbook() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	summary, err := f.GetRows(report.SummarySheet)
	if err != nil {
		t.Fatalf("GetRows(summary) error = %v", err)
	}
	if summary[0][1] != "ada@example,com" {
		t.Errorf("student cell = %q", summary[0][1])
	}
	if summary[3][1] != "Behind" || summary[3][2] != "warning" {
		t.Errorf("status row = %v", summary[3])
	}

	byCategory := map[string][]string{}
	for _, row := range summary[7:] {
		if len(row) > 0 {
			byCategory[row[0]] = row
		}
	}
	exam := byCategory["exam"]
	if len(exam) < 6 || exam[2] != "40" || exam[3] != "80" || exam[4] != "1" || exam[5] != "2" {
		t.Errorf("exam row = %v", exam)
	}
	overall := byCategory["Overall"]
	if len(overall) < 4 || overall[2] != "40" || overall[3] != "80" {
		t.Errorf("overall row = %v", overall)
	}

	items, err := f.GetRows(report.ItemsSheet)
	if err != nil {
		t.Fatalf("GetRows(items) error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("item rows = %d, want header + 2", len(items))
	}
	if items[1][2] != "Midterm" || items[1][4] != "2024-10-01" || items[1][6] != "completed" || items[1][7] != "80" {
		t.Errorf("completed item row = %v", items[1])
	}
	if items[2][6] != "pending" || items[2][4] != "" {
		t.Errorf("pending item row = %v", items[2])
	}
}

func TestWriteMarksWorkbook_NilResult(t *testing.T) {
	var buf bytes.Buffer
	if err := report.WriteMarksWorkbook(&buf, nil, report.Meta{}); err == nil {
		t.Error("expected error for nil result")
	}
}
