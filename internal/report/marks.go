// Package report renders normalized schedules as spreadsheets.
package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-schedule/internal/course"
	"github.com/p-n-ai/pai-schedule/internal/schedule"
)

const (
	SummarySheet = "Summary"
	ItemsSheet   = "Items"
)

// Meta identifies whose marks a workbook holds.
type Meta struct {
	StudentKey  string
	CourseID    string
	CourseTitle string
	GeneratedAt time.Time
}

// WriteMarksWorkbook writes an .xlsx with a per-category summary and one
// row per course item.
func WriteMarksWorkbook(w io.Writer, res *schedule.Result, meta Meta) error {
	if res == nil {
		return fmt.Errorf("write marks workbook: no schedule result")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(ItemsSheet); err != nil {
		return fmt.Errorf("create items sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeSummary(f, res, meta, bold); err != nil {
		return err
	}
	if err := writeItems(f, res, bold); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, res *schedule.Result, meta Meta, bold int) error {
	adh := res.ScheduleAdherence
	rows := [][]any{
		{"Student", meta.StudentKey},
		{"Course", meta.CourseID, meta.CourseTitle},
		{"Generated", meta.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Status", adh.Status, string(adh.AlertLevel)},
		{"Lessons offset", adh.LessonsOffset},
		{},
		{"Category", "Weight", "With zeros %", "Omit missing %", "Completed", "Total", "Weight achieved", "Weight possible"},
	}
	header := len(rows)

	for _, c := range course.Categories {
		cm := res.Marks.Category(c)
		rows = append(rows, []any{
			string(c), res.Weights.Of(c),
			round2(cm.WithZeros), round2(cm.OmitMissing),
			cm.Completed, cm.Total,
			round2(cm.WeightAchieved), round2(cm.WeightPossible),
		})
	}
	rows = append(rows, []any{"Overall", "", round2(res.Marks.Overall.WithZeros), round2(res.Marks.Overall.OmitMissing)})

	if err := setRows(f, SummarySheet, rows); err != nil {
		return err
	}
	if err := f.SetRowStyle(SummarySheet, header, header, bold); err != nil {
		return fmt.Errorf("style summary header: %w", err)
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 18); err != nil {
		return fmt.Errorf("size summary columns: %w", err)
	}
	return nil
}

func writeItems(f *excelize.File, res *schedule.Result, bold int) error {
	rows := [][]any{{"#", "Unit", "Title", "Type", "Date", "Weight", "State", "Score %"}}
	for _, it := range res.Items() {
		date := ""
		if it.Date.Defined() {
			date = it.Date.Format(time.DateOnly)
		}
		var score any = ""
		if it.IsCompleted() {
			score = it.Assessment.ScorePercent
		}
		rows = append(rows, []any{
			it.GlobalIndex + 1, it.UnitName, it.Title, string(it.Type),
			date, it.Weight, string(it.State), score,
		})
	}

	if err := setRows(f, ItemsSheet, rows); err != nil {
		return err
	}
	if err := f.SetRowStyle(ItemsSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style items header: %w", err)
	}
	if err := f.SetColWidth(ItemsSheet, "B", "C", 28); err != nil {
		return fmt.Errorf("size items columns: %w", err)
	}
	return nil
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
