package course

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const courseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "id": {"type": "string"},
    "title": {"type": "string"},
    "status": {"type": "string"},
    "weights": {
      "type": "object",
      "additionalProperties": {"type": "number"}
    },
    "units": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["name", "items"],
        "properties": {
          "name": {"type": "string"},
          "sequence": {"type": "integer"},
          "items": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["title", "type"],
              "properties": {
                "title": {"type": "string"},
                "type": {"enum": ["lesson", "assignment", "exam"]},
                "weight": {"type": "number", "minimum": 0},
                "lti": {
                  "type": "object",
                  "properties": {
                    "enabled": {"type": "boolean"},
                    "deep_link_id": {"type": "string"}
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var courseSchemaLoader = gojsonschema.NewStringLoader(courseSchema)

// ValidateDocument checks a raw course document against the course schema.
func ValidateDocument(body []byte) error {
	result, err := gojsonschema.Validate(courseSchemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("validate course document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid course document: %s", strings.Join(msgs, "; "))
}

// DecodeCourse validates and decodes a course document.
func DecodeCourse(body []byte) (*Course, error) {
	if err := ValidateDocument(body); err != nil {
		return nil, err
	}
	var c Course
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, fmt.Errorf("decode course: %w", err)
	}
	return &c, nil
}

// DecodeStudentCourse decodes a student course record.
func DecodeStudentCourse(body []byte) (*StudentCourse, error) {
	var s StudentCourse
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decode student course: %w", err)
	}
	return &s, nil
}
