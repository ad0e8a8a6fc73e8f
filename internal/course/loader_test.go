package course_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-schedule/internal/course"
	"github.com/p-n-ai/pai-schedule/internal/docstore"
)

func TestLoader_LoadCourses(t *testing.T) {
	dir := setupTestCourses(t)

	loader, err := course.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	courses := loader.AllCourses()
	if len(courses) != 1 {
		t.Fatalf("AllCourses() = %d courses, want 1", len(courses))
	}
}

func TestLoader_GetCourse(t *testing.T) {
	dir := setupTestCourses(t)

	loader, err := course.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	c, found := loader.GetCourse("math-30-1")
	if !found {
		t.Fatal("GetCourse(math-30-1) not found")
	}
	if len(c.Units) != 2 {
		t.Errorf("Units = %d, want 2", len(c.Units))
	}
	if n := c.ItemCount(); n != 3 {
		t.Errorf("ItemCount() = %d, want 3", n)
	}
	if c.Weights.Of(course.Exam) != 0.6 {
		t.Errorf("exam weight = %v, want 0.6", c.Weights.Of(course.Exam))
	}
	id, ok := c.Units[1].Items[0].DeepLink()
	if !ok || id != "dl-unit2-exam" {
		t.Errorf("DeepLink() = %q, %v; want dl-unit2-exam, true", id, ok)
	}
	if c.Units[0].Items[0].Weight == nil || *c.Units[0].Items[0].Weight != 0.5 {
		t.Error("item weight should decode from YAML")
	}
}

func TestLoader_GetCourse_NotFound(t *testing.T) {
	dir := setupTestCourses(t)

	loader, err := course.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if _, found := loader.GetCourse("NONEXISTENT"); found {
		t.Error("GetCourse(NONEXISTENT) should not be found")
	}
}

func TestLoader_SkipsFilesWithoutID(t *testing.T) {
	dir := setupTestCourses(t)
	os.WriteFile(filepath.Join(dir, "notes.yaml"), []byte("title: just notes\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("id: [unterminated\n"), 0o644)

	loader, err := course.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if n := len(loader.AllCourses()); n != 1 {
		t.Errorf("AllCourses() = %d, want 1", n)
	}
}

func TestLoader_SkipsUnknownItemTypes(t *testing.T) {
	dir := setupTestCourses(t)
	os.WriteFile(filepath.Join(dir, "essay.yaml"), []byte(`
id: eng-10
title: English 10
units:
  - name: Writing
    sequence: 1
    items:
      - title: Persuasive Essay
        type: essay
`), 0o644)

	loader, err := course.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if _, found := loader.GetCourse("eng-10"); found {
		t.Error("course with an unknown item type should be skipped")
	}
	if n := len(loader.AllCourses()); n != 1 {
		t.Errorf("AllCourses() = %d, want 1", n)
	}
}

func TestLoader_EmptyDir(t *testing.T) {
	loader, err := course.NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if n := len(loader.AllCourses()); n != 0 {
		t.Errorf("AllCourses() = %d, want 0 for empty dir", n)
	}
}

func TestLoader_Seed(t *testing.T) {
	dir := setupTestCourses(t)
	os.WriteFile(filepath.Join(dir, "bad-type.yaml"), []byte(`
id: bad-type
title: Broken
units:
  - name: Unit 1
    sequence: 1
    items:
      - title: Quiz
        type: quiz
`), 0o644)

	loader, err := course.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	ctx := context.Background()
	store := docstore.NewMemoryStore()
	n, err := loader.Seed(ctx, store)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Seed() = %d, want 1 (invalid course skipped)", n)
	}

	body, err := store.Get(ctx, docstore.CoursePath("math-30-1"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	c, err := course.DecodeCourse(body)
	if err != nil {
		t.Fatalf("DecodeCourse() error = %v", err)
	}
	if c.Title != "Mathematics 30-1" {
		t.Errorf("Title = %q, want Mathematics 30-1", c.Title)
	}
	if _, err := store.Get(ctx, docstore.CoursePath("bad-type")); err == nil {
		t.Error("invalid course should not be seeded")
	}
}

func setupTestCourses(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	os.WriteFile(filepath.Join(dir, "math-30-1.yaml"), []byte(`
id: math-30-1
title: Mathematics 30-1
status: Active
weights:
  lesson: 0.2
  assignment: 0.2
  exam: 0.6
units:
  - name: Unit 1 - Functions
    sequence: 1
    items:
      - title: Transformations
        type: lesson
        weight: 0.5
      - title: Functions Assignment
        type: assignment
  - name: Unit 2 - Trigonometry
    sequence: 2
    items:
      - title: Unit 2 Exam
        type: exam
        lti:
          enabled: true
          deep_link_id: dl-unit2-exam
`), 0o644)

	return dir
}
