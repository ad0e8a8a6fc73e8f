package schedule

import (
	"fmt"

	"github.com/p-n-ai/pai-schedule/internal/course"
)

// Reason names why a schedule does not match its course.
type Reason string

const (
	ReasonMissingInput      Reason = "missing_input"
	ReasonUnitCountMismatch Reason = "unit_count_mismatch"
	ReasonUnitNotFound      Reason = "unit_not_found"
	ReasonItemCountMismatch Reason = "item_count_mismatch"
	ReasonItemTitleMismatch Reason = "item_title_mismatch"
)

// ValidationDetails locates the first mismatch.
type ValidationDetails struct {
	Message   string `json:"message"`
	UnitName  string `json:"unitName,omitempty"`
	UnitIndex int    `json:"unitIndex"`
	ItemIndex int    `json:"itemIndex"`
	Expected  any    `json:"expected,omitempty"`
	Actual    any    `json:"actual,omitempty"`
}

// Validation is the outcome of ValidateStructure.
type Validation struct {
	IsValid bool               `json:"isValid"`
	Reason  Reason             `json:"reason,omitempty"`
	Details *ValidationDetails `json:"details,omitempty"`
}

// ValidateStructure checks that a student schedule mirrors the course: the
// same number of units, a course unit named like every schedule unit, and
// the same item titles in the same order. The Schedule Information unit is
// ignored. Only the first mismatch is reported.
func ValidateStructure(scheduleUnits []course.ScheduleUnit, courseUnits []course.Unit) Validation {
	if scheduleUnits == nil || courseUnits == nil {
		return invalid(ReasonMissingInput, &ValidationDetails{
			Message:   "schedule units and course units are both required",
			UnitIndex: -1,
			ItemIndex: -1,
		})
	}

	content := course.ContentUnits(scheduleUnits)
	if len(content) != len(courseUnits) {
		return invalid(ReasonUnitCountMismatch, &ValidationDetails{
			Message:   fmt.Sprintf("schedule has %d units, course has %d", len(content), len(courseUnits)),
			UnitIndex: -1,
			ItemIndex: -1,
			Expected:  len(courseUnits),
			Actual:    len(content),
		})
	}

	for ui, su := range content {
		cu, ok := findCourseUnit(courseUnits, su.Name)
		if !ok {
			return invalid(ReasonUnitNotFound, &ValidationDetails{
				Message:   fmt.Sprintf("no course unit named %q", su.Name),
				UnitName:  su.Name,
				UnitIndex: ui,
				ItemIndex: -1,
				Actual:    su.Name,
			})
		}

		if len(su.Items) != len(cu.Items) {
			return invalid(ReasonItemCountMismatch, &ValidationDetails{
				Message:   fmt.Sprintf("unit %q has %d scheduled items, course has %d", su.Name, len(su.Items), len(cu.Items)),
				UnitName:  su.Name,
				UnitIndex: ui,
				ItemIndex: -1,
				Expected:  len(cu.Items),
				Actual:    len(su.Items),
			})
		}

		for ii, ci := range cu.Items {
			if !sameTitle(su.Items[ii].Title, ci.Title) {
				return invalid(ReasonItemTitleMismatch, &ValidationDetails{
					Message:   fmt.Sprintf("unit %q item %d title differs", su.Name, ii),
					UnitName:  su.Name,
					UnitIndex: ui,
					ItemIndex: ii,
					Expected:  ci.Title,
					Actual:    su.Items[ii].Title,
				})
			}
		}
	}

	return Validation{IsValid: true}
}

func invalid(reason Reason, d *ValidationDetails) Validation {
	return Validation{Reason: reason, Details: d}
}

func findCourseUnit(units []course.Unit, name string) (course.Unit, bool) {
	for _, u := range units {
		if sameTitle(u.Name, name) {
			return u, true
		}
	}
	return course.Unit{}, false
}

func findScheduleUnit(units []course.ScheduleUnit, sequence int) (course.ScheduleUnit, bool) {
	for _, u := range units {
		if u.Sequence == sequence {
			return u, true
		}
	}
	return course.ScheduleUnit{}, false
}
