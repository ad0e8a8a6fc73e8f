package schedule_test

import (
	"math"
	"time"

	"github.com/p-n-ai/pai-schedule/internal/assessment"
	"github.com/p-n-ai/pai-schedule/internal/course"
	"github.com/p-n-ai/pai-schedule/internal/schedule"
)

var testNow = time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)

func day(n int) course.Date {
	return course.NewDate(time.Date(2024, 10, n, 0, 0, 0, 0, time.UTC))
}

func weight(w float64) *float64 { return &w }

func scored(percent float64) *assessment.Data {
	return &assessment.Data{ScorePercent: percent, Status: "completed", LastChange: 1728000000}
}

func pending(typ course.Category, w float64) schedule.Item {
	return schedule.Item{Title: string(typ), Type: typ, Weight: w, State: schedule.Pending}
}

func done(typ course.Category, w, percent float64) schedule.Item {
	return pending(typ, w).WithAssessment(scored(percent))
}

func oneUnit(items ...schedule.Item) []schedule.Unit {
	return []schedule.Unit{{Name: "Unit 1", Sequence: 1, Items: items}}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// mathCourse has two content units; the exam in unit 2 is linked to an
// external assessment.
func mathCourse() *course.Course {
	return &course.Course{
		ID:      "math-30-1",
		Title:   "Math 30-1",
		Status:  "On Track",
		Weights: course.Weights{course.Lesson: 0.2, course.Assignment: 0.2, course.Exam: 0.6},
		Units: []course.Unit{
			{Name: "Functions", Sequence: 1, Items: []course.Item{
				{Title: "Intro to Functions", Type: course.Lesson},
				{Title: "Function Notation", Type: course.Lesson},
				{Title: "Functions Assignment", Type: course.Assignment, Weight: weight(2)},
			}},
			{Name: "Trigonometry", Sequence: 2, Items: []course.Item{
				{Title: "Unit Circle", Type: course.Lesson},
				{Title: "Trig Exam", Type: course.Exam, LTI: &course.ExternalLink{Enabled: true, DeepLinkID: "dl-trig"}},
			}},
		},
	}
}

// mathSchedule mirrors mathCourse and prepends a Schedule Information unit.
func mathSchedule() []course.ScheduleUnit {
	return []course.ScheduleUnit{
		{Name: course.ScheduleInformationUnit, Items: []course.ScheduleItem{{Title: "Start", Date: day(1)}}},
		{Name: "Functions", Sequence: 1, Items: []course.ScheduleItem{
			{Title: "Intro to Functions", Date: day(7)},
			{Title: "Function Notation", Date: day(10)},
			{Title: "Functions Assignment", Date: day(14)},
		}},
		{Name: "Trigonometry", Sequence: 2, Items: []course.ScheduleItem{
			{Title: "Unit Circle", Date: day(18)},
			{Title: "Trig Exam", Date: day(22)},
		}},
	}
}
