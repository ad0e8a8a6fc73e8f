// Package course defines the course definition and student schedule
// documents consumed by the schedule normalizer.
package course

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Category is the kind of a course item. Marks are aggregated per category.
type Category string

const (
	Lesson     Category = "lesson"
	Assignment Category = "assignment"
	Exam       Category = "exam"
)

// Categories lists every category in reporting order.
var Categories = []Category{Lesson, Assignment, Exam}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case Lesson, Assignment, Exam:
		return true
	}
	return false
}

// ScheduleInformationUnit is the name of the metadata pseudo-unit some
// schedules carry. It is never part of the course content.
const ScheduleInformationUnit = "Schedule Information"

// Weights maps a category to its share of the overall mark. Values are
// fractions and are not required to sum to 1.
type Weights map[Category]float64

// Of returns the weight for c, or 0 when c has no entry.
func (w Weights) Of(c Category) float64 {
	return w[c]
}

// ExternalLink connects an item to an external assessment engine.
type ExternalLink struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	DeepLinkID string `json:"deep_link_id" yaml:"deep_link_id"`
}

// Item is one gradeable piece of course content.
type Item struct {
	Title  string        `json:"title" yaml:"title"`
	Type   Category      `json:"type" yaml:"type"`
	Weight *float64      `json:"weight,omitempty" yaml:"weight,omitempty"`
	LTI    *ExternalLink `json:"lti,omitempty" yaml:"lti,omitempty"`
}

// DeepLink returns the deep link id when the item has an enabled external
// assessment.
func (i Item) DeepLink() (string, bool) {
	if i.LTI == nil || !i.LTI.Enabled || i.LTI.DeepLinkID == "" {
		return "", false
	}
	return i.LTI.DeepLinkID, true
}

// Unit is a named, ordered group of items.
type Unit struct {
	Name     string `json:"name" yaml:"name"`
	Sequence int    `json:"sequence" yaml:"sequence"`
	Items    []Item `json:"items" yaml:"items"`
}

// Course is the authoritative course definition.
type Course struct {
	ID      string  `json:"id" yaml:"id"`
	Title   string  `json:"title" yaml:"title"`
	Status  string  `json:"status,omitempty" yaml:"status,omitempty"`
	Weights Weights `json:"weights,omitempty" yaml:"weights,omitempty"`
	Units   []Unit  `json:"units" yaml:"units"`
}

// ItemCount returns the number of items across all units.
func (c *Course) ItemCount() int {
	n := 0
	for _, u := range c.Units {
		n += len(u.Items)
	}
	return n
}

// WithStatus returns a shallow copy of c carrying status. An empty status
// keeps the course's own label.
func (c *Course) WithStatus(status string) *Course {
	if c == nil || status == "" {
		return c
	}
	cp := *c
	cp.Status = status
	return &cp
}

// ScheduleItem is an item placed on the student's calendar.
type ScheduleItem struct {
	Title string   `json:"title"`
	Type  Category `json:"type,omitempty"`
	Date  Date     `json:"date"`
}

// ScheduleUnit mirrors a course unit inside a student schedule.
type ScheduleUnit struct {
	Name     string         `json:"name"`
	Sequence int            `json:"sequence"`
	Items    []ScheduleItem `json:"items"`
}

// Schedule is a student's calendar for one course.
type Schedule struct {
	Units []ScheduleUnit `json:"units"`
}

// StudentCourse is the student's record for one course.
type StudentCourse struct {
	Status   string    `json:"status,omitempty"`
	Schedule *Schedule `json:"schedule,omitempty"`
}

// ScheduleUnits returns the schedule units, or nil when there is no schedule.
func (s *StudentCourse) ScheduleUnits() []ScheduleUnit {
	if s == nil || s.Schedule == nil {
		return nil
	}
	return s.Schedule.Units
}

// ContentUnits drops the Schedule Information pseudo-unit.
func ContentUnits(units []ScheduleUnit) []ScheduleUnit {
	out := make([]ScheduleUnit, 0, len(units))
	for _, u := range units {
		if u.Name == ScheduleInformationUnit {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Date is a calendar date that may be undefined.
type Date struct {
	time.Time
}

// dateLayouts are tried in order when decoding.
var dateLayouts = []string{time.DateOnly, time.RFC3339, time.RFC3339Nano}

// NewDate returns a defined Date.
func NewDate(t time.Time) Date {
	return Date{Time: t}
}

// Defined reports whether the date carries a value.
func (d Date) Defined() bool {
	return !d.IsZero()
}

// UnmarshalJSON accepts YYYY-MM-DD or RFC 3339 strings. Null, empty and
// unparseable values leave the date undefined.
func (d *Date) UnmarshalJSON(b []byte) error {
	*d = Date{}
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return nil
}

// MarshalJSON writes RFC 3339, or null when undefined.
func (d Date) MarshalJSON() ([]byte, error) {
	if !d.Defined() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", d.Format(time.RFC3339))), nil
}
