package schedule

import "time"

// Adherence compares where a student should be with where they are.
type Adherence struct {
	CurrentScheduledIndex   int        `json:"currentScheduledIndex"`
	CurrentCompletedIndex   int        `json:"currentCompletedIndex"`
	LessonsOffset           int        `json:"lessonsOffset"`
	HasInconsistentProgress bool       `json:"hasInconsistentProgress"`
	LastCompletedDate       *time.Time `json:"lastCompletedDate"`
	IsOnSchedule            bool       `json:"isOnSchedule"`
	IsAhead                 bool       `json:"isAhead"`
	IsBehind                bool       `json:"isBehind"`
	CurrentScheduledItem    *Item      `json:"currentScheduledItem"`
	CurrentCompletedItem    *Item      `json:"currentCompletedItem"`
	Status                  string     `json:"status"`
	AlertLevel              AlertLevel `json:"alertLevel"`
}

// ComputeAdherence analyses a flattened, ordered item list at time now.
//
// The scheduled index is the item just before the first one dated strictly
// after now (never below 0), or the last item when nothing is still ahead.
// Items without a date are never ahead. The completed index is the highest
// completed item, or -1.
func ComputeAdherence(items []Item, now time.Time) Adherence {
	a := Adherence{
		CurrentScheduledIndex: scheduledIndex(items, now),
		CurrentCompletedIndex: -1,
	}

	sawPending := false
	for i, it := range items {
		if !it.IsCompleted() {
			sawPending = true
			continue
		}
		if sawPending {
			a.HasInconsistentProgress = true
		}
		a.CurrentCompletedIndex = i
	}

	a.LessonsOffset = a.CurrentCompletedIndex - a.CurrentScheduledIndex
	a.IsOnSchedule = a.LessonsOffset == 0
	a.IsAhead = a.LessonsOffset > 0
	a.IsBehind = a.LessonsOffset < 0

	if i := a.CurrentScheduledIndex; i >= 0 && i < len(items) {
		it := items[i]
		a.CurrentScheduledItem = &it
	}
	if i := a.CurrentCompletedIndex; i >= 0 {
		it := items[i]
		a.CurrentCompletedItem = &it
		if at, ok := it.Assessment.LastChangedAt(); ok {
			a.LastCompletedDate = &at
		}
	}
	return a
}

func scheduledIndex(items []Item, now time.Time) int {
	for i, it := range items {
		if it.Date.Defined() && it.Date.After(now) {
			return max(i-1, 0)
		}
	}
	return max(len(items)-1, 0)
}

// withStatus attaches the course status label and its alert level.
func (a Adherence) withStatus(status string, table *StatusTable) Adherence {
	a.Status = status
	a.AlertLevel = table.AlertLevel(status)
	return a
}
