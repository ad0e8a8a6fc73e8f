package schedule

import (
	"math"

	"github.com/p-n-ai/pai-schedule/internal/course"
)

// MarkPair holds the two views of a mark: withZeros counts pending items
// as zero, omitMissing averages completed items only. Both are percents.
type MarkPair struct {
	WithZeros   float64 `json:"withZeros"`
	OmitMissing float64 `json:"omitMissing"`
}

// CategoryMarks aggregates one category's items.
type CategoryMarks struct {
	MarkPair
	Items          []Item  `json:"items"`
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	WeightPossible float64 `json:"weightPossible"`
	WeightAchieved float64 `json:"weightAchieved"`
}

// Marks is the per-category and overall breakdown of a course.
type Marks struct {
	ByCategory map[course.Category]*CategoryMarks `json:"byCategory"`
	Overall    MarkPair                           `json:"overall"`
}

// Category returns the marks for c, or an empty entry.
func (m Marks) Category(c course.Category) CategoryMarks {
	if cm, ok := m.ByCategory[c]; ok && cm != nil {
		return *cm
	}
	return CategoryMarks{Items: []Item{}}
}

// ComputeMarks groups items by category and computes weighted marks.
// Items of an unknown type are left out. In the overall mark a category
// only counts when its course weight is positive.
func ComputeMarks(units []Unit, weights course.Weights) Marks {
	m := Marks{ByCategory: make(map[course.Category]*CategoryMarks, len(course.Categories))}
	for _, c := range course.Categories {
		m.ByCategory[c] = &CategoryMarks{Items: []Item{}}
	}

	for _, u := range units {
		for _, it := range u.Items {
			cm, ok := m.ByCategory[it.Type]
			if !ok {
				continue
			}
			cm.Items = append(cm.Items, it)
		}
	}

	var overallPossible, overallAchieved, overallCompleted float64
	for _, c := range course.Categories {
		cm := m.ByCategory[c]

		var completedWeight float64
		for _, it := range cm.Items {
			cm.Total++
			cm.WeightPossible += it.Weight
			if !it.IsCompleted() {
				continue
			}
			cm.Completed++
			cm.WeightAchieved += it.Score() * it.Weight
			completedWeight += it.Weight
		}

		cm.WithZeros = percentOf(cm.WeightAchieved, cm.WeightPossible)
		if completedWeight != 0 {
			for _, it := range cm.Items {
				if it.IsCompleted() {
					cm.OmitMissing += it.Score() * it.Weight / completedWeight * 100
				}
			}
		}

		cw := weights.Of(c)
		if cw <= 0 {
			continue
		}
		overallPossible += cm.WeightPossible * cw
		overallAchieved += cm.WeightAchieved * cw
		overallCompleted += completedWeight * cw
	}

	m.Overall.WithZeros = percentOf(overallAchieved, overallPossible)
	m.Overall.OmitMissing = percentOf(overallAchieved, overallCompleted)

	m.sanitize()
	return m
}

// sanitize replaces any non-finite number with 0.
func (m *Marks) sanitize() {
	for _, cm := range m.ByCategory {
		cm.WithZeros = finite(cm.WithZeros)
		cm.OmitMissing = finite(cm.OmitMissing)
		cm.WeightPossible = finite(cm.WeightPossible)
		cm.WeightAchieved = finite(cm.WeightAchieved)
	}
	m.Overall.WithZeros = finite(m.Overall.WithZeros)
	m.Overall.OmitMissing = finite(m.Overall.OmitMissing)
}

func percentOf(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
