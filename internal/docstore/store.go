// Package docstore provides a hierarchical JSON document store with push-based
// change subscriptions. Documents are addressed by slash-separated paths.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no document exists at a path.
var ErrNotFound = errors.New("document not found")

// Unsubscribe stops a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// ChangeFunc receives the current document body. A nil body means the
// document was deleted.
type ChangeFunc func(body []byte)

// Store is the document store contract consumed by the schedule service.
//
// Subscribe delivers the current value immediately when the document exists,
// then every change whose content differs from the last delivered content.
// Deliveries happen on store-owned goroutines.
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, body []byte) error
	Delete(ctx context.Context, path string) error
	Subscribe(ctx context.Context, path string, fn ChangeFunc) (Unsubscribe, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// CoursePath addresses a course definition.
func CoursePath(courseID string) string {
	return "courses/" + courseID
}

// StudentCoursePath addresses a student's record for one course.
func StudentCoursePath(studentKey, courseID string) string {
	return "students/" + studentKey + "/courses/" + courseID
}

// DeepLinkPath addresses external assessment deep-link metadata.
func DeepLinkPath(deepLinkID string) string {
	return "lti/deep_links/" + deepLinkID
}

// GradePath addresses a student's grade record for an external assessment.
func GradePath(assessmentID, externalStudentID string) string {
	return "lti/grades/" + assessmentID + "_" + externalStudentID
}

// StudentKey turns an email address into a path-safe student key.
func StudentKey(email string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(email)), ".", ",")
}

// GetJSON reads the document at path into v. It reports false, with a nil
// error, when the document does not exist.
func GetJSON(ctx context.Context, s Store, path string, v any) (bool, error) {
	body, err := s.Get(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// PutJSON marshals v and stores it at path.
func PutJSON(ctx context.Context, s Store, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return s.Put(ctx, path, body)
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	if strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return fmt.Errorf("malformed path: %q", path)
	}
	return nil
}

func validateBody(path string, body []byte) error {
	if !json.Valid(body) {
		return fmt.Errorf("document at %s is not valid JSON", path)
	}
	return nil
}
