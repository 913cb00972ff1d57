package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQuotaExceeded is returned when the daily quota is already used up.
	ErrQuotaExceeded = errors.New("daily quota exceeded")
	// ErrNotFound is returned when an archive has no entry to act on.
	ErrNotFound = errors.New("not found")
	// ErrStorageFull is returned when archived lessons and homework exceed the storage budget.
	ErrStorageFull = errors.New("storage full")
	// ErrInvalidModule is returned for module lesson indexes outside 1..5.
	ErrInvalidModule = errors.New("invalid module lesson")
)

// FieldError describes a single invalid setup field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError lists every invalid field of a setup request.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return "invalid setup: " + strings.Join(parts, "; ")
}

// UnknownSkillError reports a skill name outside the six recognized skills.
type UnknownSkillError struct {
	Skill string
}

func (e *UnknownSkillError) Error() string {
	return fmt.Sprintf("skill %q not found in course", e.Skill)
}
