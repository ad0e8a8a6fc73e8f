package schedule

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AlertLevel is how urgently a course status needs attention.
type AlertLevel string

const (
	AlertNone     AlertLevel = "none"
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

func (l AlertLevel) valid() bool {
	switch l {
	case AlertNone, AlertInfo, AlertWarning, AlertCritical:
		return true
	}
	return false
}

// StatusTable maps course status labels to alert levels.
type StatusTable struct {
	levels   map[string]AlertLevel
	fallback AlertLevel
}

var defaultStatusLevels = map[string]AlertLevel{
	"Rocking it!":             AlertNone,
	"On Track":                AlertNone,
	"Active":                  AlertNone,
	"Completed":               AlertNone,
	"Starting on (Date)":      AlertInfo,
	"Hold":                    AlertInfo,
	"Behind":                  AlertWarning,
	"Way Behind":              AlertCritical,
	"Not Active":              AlertCritical,
	"Unenrolled":              AlertCritical,
	"Locked Out - No Payment": AlertCritical,
}

// DefaultStatusTable returns the built-in table. Unknown labels map to info.
func DefaultStatusTable() *StatusTable {
	return NewStatusTable(defaultStatusLevels, AlertInfo)
}

// NewStatusTable builds a table from label -> level pairs.
func NewStatusTable(levels map[string]AlertLevel, fallback AlertLevel) *StatusTable {
	t := &StatusTable{
		levels:   make(map[string]AlertLevel, len(levels)),
		fallback: fallback,
	}
	for label, level := range levels {
		t.levels[statusKey(label)] = level
	}
	return t
}

// AlertLevel returns the level for status, or the table's fallback level.
func (t *StatusTable) AlertLevel(status string) AlertLevel {
	if t == nil {
		return AlertInfo
	}
	if level, ok := t.levels[statusKey(status)]; ok {
		return level
	}
	return t.fallback
}

type statusFile struct {
	Default  AlertLevel            `yaml:"default"`
	Statuses map[string]AlertLevel `yaml:"statuses"`
}

// LoadStatusTable reads a YAML table of the form:
//
//	default: info
//	statuses:
//	  On Track: none
//	  Behind: warning
func LoadStatusTable(path string) (*StatusTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status table: %w", err)
	}

	var f statusFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse status table: %w", err)
	}

	if f.Default == "" {
		f.Default = AlertInfo
	}
	if !f.Default.valid() {
		return nil, fmt.Errorf("unknown default alert level %q", f.Default)
	}
	for label, level := range f.Statuses {
		if !level.valid() {
			return nil, fmt.Errorf("unknown alert level %q for status %q", level, label)
		}
	}

	return NewStatusTable(f.Statuses, f.Default), nil
}

func statusKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
