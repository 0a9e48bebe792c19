package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrValidationUnavailable means the memory check itself failed, not the player.
var ErrValidationUnavailable = errors.New("memory check unavailable")

type Validator struct {
	checker MemoryChecker
}

func NewValidator(checker MemoryChecker) *Validator {
	return &Validator{checker: checker}
}

// Validate reports whether recalled matches actual. The first turn has
// nothing to recall and always passes; a count mismatch fails without
// asking the checker.
func (v *Validator) Validate(ctx context.Context, recalled, actual []string) (bool, error) {
	if len(actual) == 0 {
		return true, nil
	}
	if len(recalled) != len(actual) {
		return false, nil
	}
	ok, err := v.checker.ValidateMemory(ctx, recalled, actual)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrValidationUnavailable, err)
	}
	return ok, nil
}

// ParseRecalled splits free text into one item per non-blank line.
func ParseRecalled(text string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
