package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-schedule/internal/assessment"
	"github.com/p-n-ai/pai-schedule/internal/course"
	"github.com/p-n-ai/pai-schedule/internal/docstore"
)

// TopLevelFunc receives every successful full recomputation.
type TopLevelFunc func(result *Result, c *course.Course, sc *course.StudentCourse)

// ControllerConfig holds configuration for creating a Controller.
type ControllerConfig struct {
	Store          docstore.Store
	Normalizer     *Normalizer
	CheckStructure bool // log schedule/course drift before each recompute
}

// Controller keeps normalized schedules current as documents change.
type Controller struct {
	store          docstore.Store
	source         *assessment.Source
	normalizer     *Normalizer
	checkStructure bool
}

// NewController creates a Controller. A nil Normalizer gets one that
// resolves assessments from the same store.
func NewController(cfg ControllerConfig) *Controller {
	source := assessment.NewSource(cfg.Store)
	normalizer := cfg.Normalizer
	if normalizer == nil {
		normalizer = NewNormalizer(NormalizerConfig{Resolver: source})
	}
	return &Controller{
		store:          cfg.Store,
		source:         source,
		normalizer:     normalizer,
		checkStructure: cfg.CheckStructure,
	}
}

// Session is one live subscription to a student's course.
type Session struct {
	ctl               *Controller
	ctx               context.Context
	cancel            context.CancelFunc
	studentKey        string
	courseID          string
	externalStudentID string
	onItemUpdate      ItemUpdateFunc
	onTopLevel        TopLevelFunc

	// inFlight drops triggers that arrive while a recompute is running.
	inFlight atomic.Bool
	closed   atomic.Bool
	once     sync.Once
	gen      atomic.Uint64

	emitMu  sync.Mutex
	emitted uint64 // newest generation passed to onTopLevel

	mu            sync.Mutex
	course        *course.Course
	student       *course.StudentCourse
	result        *Result
	watchingItems bool
	unsubs        []docstore.Unsubscribe
}

// GetScheduleData subscribes to the course and the student's course record
// and recomputes the normalized schedule whenever either changes. Full
// recomputes run on their own goroutine, so onTopLevel may fire after this
// returns. Grade changes for linked items are pushed through onItemUpdate
// only and never wait on a recompute.
//
// The session ends on Cleanup or when ctx is done.
func (c *Controller) GetScheduleData(ctx context.Context, studentKey, courseID, externalStudentID string, onItemUpdate ItemUpdateFunc, onTopLevel TopLevelFunc) (*Session, error) {
	if studentKey == "" || courseID == "" {
		return nil, errors.New("student key and course id are required")
	}
	if externalStudentID == "" {
		slog.Warn("schedule session without external student id", "student", studentKey, "course_id", courseID)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ctl:               c,
		ctx:               sctx,
		cancel:            cancel,
		studentKey:        studentKey,
		courseID:          courseID,
		externalStudentID: externalStudentID,
		onItemUpdate:      onItemUpdate,
		onTopLevel:        onTopLevel,
	}

	unsub, err := c.store.Subscribe(sctx, docstore.CoursePath(courseID), s.courseChanged)
	if err != nil {
		s.Cleanup()
		return nil, err
	}
	s.track(unsub)

	unsub, err = c.store.Subscribe(sctx, docstore.StudentCoursePath(studentKey, courseID), s.studentChanged)
	if err != nil {
		s.Cleanup()
		return nil, err
	}
	s.track(unsub)

	context.AfterFunc(sctx, s.Cleanup)

	slog.Info("schedule session started", "student", studentKey, "course_id", courseID)
	return s, nil
}

// Cleanup removes every subscription. It is safe to call more than once.
func (s *Session) Cleanup() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()

		s.mu.Lock()
		unsubs := s.unsubs
		s.unsubs = nil
		s.mu.Unlock()

		for _, unsub := range unsubs {
			unsub()
		}
		slog.Info("schedule session closed", "student", s.studentKey, "course_id", s.courseID)
	})
}

// CourseData returns the latest course document, or nil.
func (s *Session) CourseData() *course.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.course
}

// StudentCourseData returns the latest student course record, or nil.
func (s *Session) StudentCourseData() *course.StudentCourse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.student
}

// NormalizedSchedule returns the last full result, or nil.
func (s *Session) NormalizedSchedule() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// track keeps unsub for Cleanup, or runs it at once when already closed.
func (s *Session) track(unsub docstore.Unsubscribe) {
	s.mu.Lock()
	if !s.closed.Load() {
		s.unsubs = append(s.unsubs, unsub)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	unsub()
}

func (s *Session) courseChanged(body []byte) {
	var c *course.Course
	if body != nil {
		decoded, err := course.DecodeCourse(body)
		if err != nil {
			slog.Warn("ignoring invalid course document", "course_id", s.courseID, "error", err)
		} else {
			c = decoded
		}
	}

	s.mu.Lock()
	s.course = c
	startWatch := c != nil && len(c.Units) > 0 && !s.watchingItems && s.externalStudentID != ""
	if startWatch {
		s.watchingItems = true
	}
	s.mu.Unlock()

	if startWatch {
		s.watchItems(c)
	}
	s.recompute("course")
}

func (s *Session) studentChanged(body []byte) {
	var sc *course.StudentCourse
	if body != nil {
		decoded, err := course.DecodeStudentCourse(body)
		if err != nil {
			slog.Warn("ignoring invalid student course document", "student", s.studentKey, "course_id", s.courseID, "error", err)
		} else {
			sc = decoded
		}
	}

	s.mu.Lock()
	s.student = sc
	s.mu.Unlock()

	s.recompute("student")
}

// recompute starts a full normalization off the store's delivery
// goroutine. A trigger that arrives while one is already running is
// dropped, not queued.
func (s *Session) recompute(trigger string) {
	if s.closed.Load() {
		return
	}

	s.mu.Lock()
	c, sc := s.course, s.student
	s.mu.Unlock()
	if c == nil || sc == nil {
		return
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		slog.Debug("recompute in flight, dropping trigger", "trigger", trigger, "course_id", s.courseID)
		return
	}
	gen := s.gen.Add(1)
	go func() {
		res := s.normalize(c, sc)
		s.inFlight.Store(false)
		if res != nil {
			s.emitTopLevel(gen, res, c, sc)
		}
	}()
}

// normalize runs one full pass and caches the result.
func (s *Session) normalize(c *course.Course, sc *course.StudentCourse) *Result {
	units := sc.ScheduleUnits()
	if s.ctl.checkStructure {
		if v := ValidateStructure(units, c.Units); !v.IsValid {
			attrs := []any{"student", s.studentKey, "course_id", s.courseID, "reason", v.Reason}
			if v.Details != nil {
				attrs = append(attrs, "details", v.Details.Message)
			}
			slog.Warn("schedule does not match course structure", attrs...)
		}
	}

	res := s.ctl.normalizer.Normalize(s.ctx, units, c.WithStatus(sc.Status), s.externalStudentID, s.emitItem)
	if res == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil
	}
	s.result = res
	return res
}

// watchItems subscribes to the grade record of every linked item. The deep
// link lookups run in parallel.
func (s *Session) watchItems(c *course.Course) {
	var g errgroup.Group
	g.SetLimit(s.ctl.normalizer.concurrency)

	for ui, cu := range c.Units {
		for ii, ci := range cu.Items {
			deepLinkID, ok := ci.DeepLink()
			if !ok {
				continue
			}
			g.Go(func() error {
				info, err := s.ctl.source.FetchDeepLinkInfo(s.ctx, deepLinkID)
				if err != nil {
					slog.Warn("failed to fetch deep link for grade watch", "deep_link_id", deepLinkID, "error", err)
					return nil
				}
				if info == nil {
					return nil
				}
				unsub, err := s.ctl.source.WatchGrade(s.ctx, info.AssessmentID, s.externalStudentID, func(rec *assessment.GradeRecord) {
					s.gradeChanged(ui, ii, info, rec)
				})
				if err != nil {
					slog.Warn("failed to watch grade", "assessment_id", info.AssessmentID, "error", err)
					return nil
				}
				s.track(unsub)
				return nil
			})
		}
	}
	_ = g.Wait()
}

// gradeChanged patches one item. The cached result is left as is until
// the next full recompute.
func (s *Session) gradeChanged(ui, ii int, info *assessment.DeepLinkInfo, rec *assessment.GradeRecord) {
	data := assessment.Build(rec, info)
	if data == nil {
		return
	}
	base, ok := s.baseItem(ui, ii)
	if !ok {
		return
	}
	s.emitItem(ui, ii, base.WithAssessment(data))
}

// baseItem returns the item at (ui, ii) as last normalized, falling back
// to the bare course layout before the first recompute.
func (s *Session) baseItem(ui, ii int) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result != nil && ui < len(s.result.Units) && ii < len(s.result.Units[ui].Items) {
		return s.result.Units[ui].Items[ii], true
	}
	if s.course == nil {
		return Item{}, false
	}
	units := buildUnits(s.course, course.ContentUnits(s.student.ScheduleUnits()))
	if ui >= len(units) || ii >= len(units[ui].Items) {
		return Item{}, false
	}
	return units[ui].Items[ii], true
}

func (s *Session) emitItem(ui, ii int, item Item) {
	if s.onItemUpdate == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed.Load() {
		return
	}
	s.onItemUpdate(ui, ii, item)
}

// emitTopLevel skips results older than one already delivered.
func (s *Session) emitTopLevel(gen uint64, res *Result, c *course.Course, sc *course.StudentCourse) {
	if s.onTopLevel == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed.Load() || gen <= s.emitted {
		return
	}
	s.emitted = gen
	s.onTopLevel(res, c, sc)
}
