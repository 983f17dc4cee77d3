// Package action holds the named instruction bundles ("actions") that control how a prompt is
// answered, and the registry that loads them from a configuration source.
package action

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownAction is returned when an action id is not registered.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidAction is returned when an action definition misses a required field.
	ErrInvalidAction = errors.New("invalid action")
)

// Format tags the shape of answer an action asks the model for.
type Format string

const (
	FormatConversational  Format = "conversational"
	FormatBulletPoints    Format = "bullet_points"
	FormatMedicalAnalysis Format = "medical_analysis"
	FormatOther           Format = "other"
)

// ParseFormat maps a configured format string onto the enum. Unknown non-empty values map to
// FormatOther; an empty string is not a format.
func ParseFormat(s string) (Format, bool) {
	switch f := Format(strings.TrimSpace(s)); f {
	case FormatConversational, FormatBulletPoints, FormatMedicalAnalysis, FormatOther:
		return f, true
	case "":
		return "", false
	default:
		return FormatOther, true
	}
}

// Action is an immutable instruction bundle. Registries hand out copies.
type Action struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Instruction string `json:"instruction" yaml:"instruction"`
	Format      Format `json:"format" yaml:"format"`
	MaxLength   string `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Validate checks the fields every action must carry.
func (a Action) Validate() error {
	switch {
	case strings.TrimSpace(a.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidAction)
	case strings.TrimSpace(a.Instruction) == "":
		return fmt.Errorf("%w: %q: instruction is required", ErrInvalidAction, a.ID)
	case a.Format == "":
		return fmt.Errorf("%w: %q: format is required", ErrInvalidAction, a.ID)
	}
	return nil
}
