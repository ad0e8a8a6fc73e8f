package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-schedule/internal/assessment"
	"github.com/p-n-ai/pai-schedule/internal/course"
)

const defaultConcurrency = 8

// Resolver turns a deep link into assessment data for one student.
// *assessment.Source implements it.
type Resolver interface {
	Resolve(ctx context.Context, deepLinkID, externalStudentID string) (*assessment.DeepLinkInfo, *assessment.Data)
}

// NormalizerConfig holds configuration for creating a Normalizer.
type NormalizerConfig struct {
	Resolver    Resolver
	Statuses    *StatusTable     // defaults to DefaultStatusTable()
	Concurrency int              // parallel assessment lookups (default 8)
	Now         func() time.Time // defaults to time.Now
}

// Normalizer builds a Result from a course and a student schedule.
type Normalizer struct {
	resolver    Resolver
	statuses    *StatusTable
	concurrency int
	now         func() time.Time
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	statuses := cfg.Statuses
	if statuses == nil {
		statuses = DefaultStatusTable()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Normalizer{
		resolver:    cfg.Resolver,
		statuses:    statuses,
		concurrency: concurrency,
		now:         now,
	}
}

// Normalize merges the course, the schedule dates and any completed
// assessments. onItemUpdate, when set, receives each item whose assessment
// resolves, before Normalize returns; calls are never concurrent.
//
// It returns nil when an input is missing, when the schedule has only the
// Schedule Information unit, or when ctx is cancelled midway.
func (n *Normalizer) Normalize(ctx context.Context, scheduleUnits []course.ScheduleUnit, c *course.Course, externalStudentID string, onItemUpdate ItemUpdateFunc) *Result {
	if len(scheduleUnits) == 0 || c == nil || c.Units == nil || externalStudentID == "" {
		slog.Warn("missing data for schedule normalization",
			"schedule_units", len(scheduleUnits),
			"has_course", c != nil,
			"has_student_id", externalStudentID != "",
		)
		return nil
	}

	content := course.ContentUnits(scheduleUnits)
	if len(content) == 0 {
		slog.Warn("schedule has no content units", "course_id", c.ID)
		return nil
	}

	units := buildUnits(c, content)
	if err := n.resolveAssessments(ctx, units, externalStudentID, onItemUpdate); err != nil {
		slog.Debug("schedule normalization cancelled", "course_id", c.ID, "error", err)
		return nil
	}

	items := flatten(units)
	adherence := ComputeAdherence(items, n.now()).withStatus(c.Status, n.statuses)

	return &Result{
		Units:             units,
		ScheduleAdherence: adherence,
		TotalItems:        len(items),
		Weights:           c.Weights,
		Marks:             ComputeMarks(units, c.Weights),
	}
}

// resolveAssessments completes every linked item that has a grade. Lookups
// run in parallel up to the configured limit. Each goroutine owns one slice
// element, so writes do not overlap.
func (n *Normalizer) resolveAssessments(ctx context.Context, units []Unit, externalStudentID string, onItemUpdate ItemUpdateFunc) error {
	if n.resolver == nil {
		return ctx.Err()
	}

	var emitMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)

	for ui := range units {
		for ii := range units[ui].Items {
			deepLinkID, ok := linkOf(units[ui].Items[ii])
			if !ok {
				continue
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				_, data := n.resolver.Resolve(gctx, deepLinkID, externalStudentID)
				if data == nil {
					return nil
				}
				item := units[ui].Items[ii].WithAssessment(data)
				units[ui].Items[ii] = item
				if onItemUpdate != nil {
					emitMu.Lock()
					onItemUpdate(ui, ii, item)
					emitMu.Unlock()
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// buildUnits lays out every course item as pending, numbered in course
// order, with its schedule date and resolved weight. content must already
// exclude the Schedule Information unit; it may be empty, in which case
// no item carries a date.
func buildUnits(c *course.Course, content []course.ScheduleUnit) []Unit {
	units := make([]Unit, len(c.Units))
	global := 0
	for ui, cu := range c.Units {
		su, hasUnit := findScheduleUnit(content, cu.Sequence)

		items := make([]Item, len(cu.Items))
		for ii, ci := range cu.Items {
			item := Item{
				Title:       ci.Title,
				Type:        ci.Type,
				LTI:         ci.LTI,
				GlobalIndex: global,
				UnitIndex:   ui,
				ItemIndex:   ii,
				UnitName:    cu.Name,
				Weight:      itemWeight(ci, c.Weights),
				State:       Pending,
			}
			if hasUnit {
				item.Date = scheduledDate(su, ci.Title)
			}
			items[ii] = item
			global++
		}

		units[ui] = Unit{Name: cu.Name, Sequence: cu.Sequence, Items: items}
	}
	return units
}

// itemWeight is the item's own weight, else its category weight, else 1.
func itemWeight(ci course.Item, weights course.Weights) float64 {
	if ci.Weight != nil {
		return *ci.Weight
	}
	if w, ok := weights[ci.Type]; ok {
		return w
	}
	return 1
}

func scheduledDate(su course.ScheduleUnit, title string) course.Date {
	for _, si := range su.Items {
		if sameTitle(si.Title, title) {
			return si.Date
		}
	}
	return course.Date{}
}

func linkOf(it Item) (string, bool) {
	if it.LTI == nil || !it.LTI.Enabled || it.LTI.DeepLinkID == "" {
		return "", false
	}
	return it.LTI.DeepLinkID, true
}
