package policy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/tkingovr/procfilter/api"
)

// ReservedExitCode is the status the runner reports when a child could not
// be started. It may not appear in either set.
const ReservedExitCode = 127

var (
	ErrEmptyKeep     = errors.New("exitcodes_keep set empty")
	ErrSetsIntersect = errors.New("exitcode sets intersect")
	ErrExitCode      = errors.New("invalid exit code")
)

// Default exit code sets.
var (
	DefaultKeep = []int{0}
	DefaultDrop = []int{99, 100}
)

// ExitCodeSets partitions exit statuses into keep, drop and (implicitly)
// error. It is immutable once built.
type ExitCodeSets struct {
	keep []int
	drop []int
}

// NewExitCodeSets validates and builds the partition. Keep must be non-empty,
// the sets must be disjoint, and every code must be within 0..255.
func NewExitCodeSets(keep, drop []int) (*ExitCodeSets, error) {
	for _, set := range [][]int{keep, drop} {
		for _, code := range set {
			if code < 0 || code > 255 {
				return nil, fmt.Errorf("%w: %d out of range 0-255", ErrExitCode, code)
			}
			if code == ReservedExitCode {
				return nil, fmt.Errorf("%w: %d is reserved for command setup failures", ErrExitCode, code)
			}
		}
	}
	if len(keep) == 0 {
		return nil, ErrEmptyKeep
	}
	for _, code := range keep {
		if slices.Contains(drop, code) {
			return nil, fmt.Errorf("%w: %d", ErrSetsIntersect, code)
		}
	}

	s := &ExitCodeSets{
		keep: dedup(keep),
		drop: dedup(drop),
	}
	return s, nil
}

// MustExitCodeSets is NewExitCodeSets for fixed, known-good sets.
func MustExitCodeSets(keep, drop []int) *ExitCodeSets {
	s, err := NewExitCodeSets(keep, drop)
	if err != nil {
		panic(err)
	}
	return s
}

// Keep returns a copy of the keep set in ascending order.
func (s *ExitCodeSets) Keep() []int { return slices.Clone(s.keep) }

// Drop returns a copy of the drop set in ascending order.
func (s *ExitCodeSets) Drop() []int { return slices.Clone(s.drop) }

// Evaluate classifies the exit code. Drop is checked first, then keep;
// everything else is an error.
func (s *ExitCodeSets) Evaluate(_ context.Context, input *EvalInput) (*EvalResult, error) {
	switch {
	case slices.Contains(s.drop, input.ExitCode):
		return &EvalResult{
			Verdict: api.VerdictDrop,
			Rule:    "exitcodes_drop",
			Message: fmt.Sprintf("exit code %d is in the drop set", input.ExitCode),
		}, nil
	case slices.Contains(s.keep, input.ExitCode):
		return &EvalResult{
			Verdict: api.VerdictKeep,
			Rule:    "exitcodes_keep",
		}, nil
	}
	return &EvalResult{
		Verdict: api.VerdictError,
		Rule:    "_default",
		Message: fmt.Sprintf("exit code %d is neither kept nor dropped", input.ExitCode),
	}, nil
}

func dedup(codes []int) []int {
	out := slices.Clone(codes)
	slices.Sort(out)
	return slices.Compact(out)
}
