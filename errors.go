package dnc

import (
	"errors"
)

// Error kinds reported by the curve algebra and the analyses. Callers test
// for them with errors.Is; every returned error wraps exactly one of these.
var (
	// ErrUndefinedArithmetic is returned when an operation combines +inf and
	// -inf, or otherwise produces an undefined extended real.
	ErrUndefinedArithmetic = errors.New("undefined arithmetic")

	// ErrInvalidCurveShape is returned when a curve breaks its invariants:
	// not starting at x=0, x-starts not increasing, decreasing values, or a
	// negative value where the curve role forbids one.
	ErrInvalidCurveShape = errors.New("invalid curve shape")

	// ErrEmptyCandidateSet is returned when an output bound is requested with
	// no arrival curves or no service curves.
	ErrEmptyCandidateSet = errors.New("empty candidate set")

	// ErrNonFeedForwardTopology is returned when the server dependency graph
	// induced by the flow paths has a cycle.
	ErrNonFeedForwardTopology = errors.New("non feed-forward topology")

	// ErrUnsupportedVariant is returned when a closed-form algorithm variant
	// is requested for curves that do not have the shapes it needs.
	ErrUnsupportedVariant = errors.New("unsupported algorithm variant")
)

// Topology errors.
var (
	ErrUnknownServer  = errors.New("unknown server")
	ErrUnknownFlow    = errors.New("unknown flow")
	ErrDuplicateAlias = errors.New("duplicate alias")
	ErrNoLink         = errors.New("no link between servers")
	ErrEmptyPath      = errors.New("empty path")
	ErrNoRoute        = errors.New("no route between servers")
)

// ReportErrs folds a list of errors into one, dropping nils.
// It returns nil if nothing is left.
func ReportErrs(errs []error) error {
	kept := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return errors.Join(kept...)
}
