// Package schedule merges a course definition, a student's schedule and
// external grade records into one annotated view, computes weighted marks
// and measures how closely the student is keeping to the schedule.
package schedule

import (
	"github.com/p-n-ai/pai-schedule/internal/assessment"
	"github.com/p-n-ai/pai-schedule/internal/course"
)

// ItemState tags whether an item has a resolved assessment.
type ItemState string

const (
	Pending   ItemState = "pending"
	Completed ItemState = "completed"
)

// Item is a course item annotated with its schedule position, resolved
// weight and, once completed, its assessment data.
type Item struct {
	Title       string               `json:"title"`
	Type        course.Category      `json:"type"`
	LTI         *course.ExternalLink `json:"lti,omitempty"`
	GlobalIndex int                  `json:"globalIndex"`
	UnitIndex   int                  `json:"unitIndex"`
	ItemIndex   int                  `json:"itemIndex"`
	UnitName    string               `json:"unitName"`
	Date        course.Date          `json:"date"`
	Weight      float64              `json:"weight"`
	State       ItemState            `json:"state"`
	Assessment  *assessment.Data     `json:"assessmentData,omitempty"`
}

// IsCompleted reports whether the item carries a resolved assessment.
func (i Item) IsCompleted() bool {
	return i.State == Completed && i.Assessment != nil
}

// Score is the completed fraction in [0,1] (scorePercent/100), 0 when pending.
func (i Item) Score() float64 {
	if !i.IsCompleted() {
		return 0
	}
	return i.Assessment.ScorePercent / 100
}

// WithAssessment returns a completed copy of i. A nil d yields a pending copy.
func (i Item) WithAssessment(d *assessment.Data) Item {
	if d == nil {
		i.State = Pending
		i.Assessment = nil
		return i
	}
	i.State = Completed
	i.Assessment = d
	return i
}

// Unit is a course unit whose items have been normalized.
type Unit struct {
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
	Items    []Item `json:"items"`
}

// Result is the normalized view of one student's course.
type Result struct {
	Units             []Unit         `json:"units"`
	ScheduleAdherence Adherence      `json:"scheduleAdherence"`
	TotalItems        int            `json:"totalItems"`
	Weights           course.Weights `json:"weights"`
	Marks             Marks          `json:"marks"`
}

// Items flattens the result in course order.
func (r *Result) Items() []Item {
	return flatten(r.Units)
}

// ItemUpdateFunc receives a single item as soon as its assessment resolves.
type ItemUpdateFunc func(unitIndex, itemIndex int, item Item)

func flatten(units []Unit) []Item {
	n := 0
	for _, u := range units {
		n += len(u.Items)
	}
	items := make([]Item, 0, n)
	for _, u := range units {
		items = append(items, u.Items...)
	}
	return items
}
