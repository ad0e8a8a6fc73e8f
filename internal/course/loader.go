package course

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-schedule/internal/docstore"
)

// Loader loads course definitions authored as YAML files.
type Loader struct {
	rootDir string
	courses map[string]Course
	mu      sync.RWMutex
}

// NewLoader creates a new course loader and loads every definition under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		courses: make(map[string]Course),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading courses: %w", err)
	}

	slog.Info("course definitions loaded", "courses", len(l.courses))
	return l, nil
}

// GetCourse returns a course by ID.
func (l *Loader) GetCourse(id string) (Course, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.courses[id]
	return c, ok
}

// AllCourses returns all loaded courses ordered by ID.
func (l *Loader) AllCourses() []Course {
	l.mu.RLock()
	defer l.mu.RUnlock()
	courses := make([]Course, 0, len(l.courses))
	for _, c := range l.courses {
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses
}

// Seed writes every loaded course to the store. Courses that fail schema
// validation are skipped with a warning.
func (l *Loader) Seed(ctx context.Context, store docstore.Store) (int, error) {
	seeded := 0
	for _, c := range l.AllCourses() {
		body, err := json.Marshal(c)
		if err != nil {
			return seeded, fmt.Errorf("encode course %s: %w", c.ID, err)
		}
		if err := ValidateDocument(body); err != nil {
			slog.Warn("skipping invalid course definition", "course_id", c.ID, "error", err)
			continue
		}
		if err := store.Put(ctx, docstore.CoursePath(c.ID), body); err != nil {
			return seeded, fmt.Errorf("seed course %s: %w", c.ID, err)
		}
		seeded++
	}
	return seeded, nil
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadCourse(path)
		}
		return nil
	})
}

func (l *Loader) loadCourse(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var c Course
	if err := yaml.Unmarshal(data, &c); err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return nil
	}

	if c.ID == "" {
		return nil // Not a course file
	}
	if it, ok := unknownItem(c); ok {
		slog.Warn("skipping course with unknown item type", "path", path, "course_id", c.ID, "item", it.Title, "type", it.Type)
		return nil
	}
	slog.Debug("course loaded", "course_id", c.ID, "units", len(c.Units), "items", c.ItemCount())

	l.mu.Lock()
	l.courses[c.ID] = c
	l.mu.Unlock()

	return nil
}

func unknownItem(c Course) (Item, bool) {
	for _, u := range c.Units {
		for _, it := range u.Items {
			if !it.Type.Valid() {
				return it, true
			}
		}
	}
	return Item{}, false
}
