package resolve

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a resolution failure.
type Kind string

const (
	NotFound        Kind = "not_found"
	MultipleMatches Kind = "multiple_matches"
)

// AmbiguityError reports a hint that resolved to zero or several files. The
// caller surfaces it to the user; the resolver never guesses.
type AmbiguityError struct {
	Requested  string
	Kind       Kind
	Candidates []string
	Reason     string
}

func (e *AmbiguityError) Error() string {
	switch {
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Requested, e.Reason)
	case e.Kind == MultipleMatches:
		return fmt.Sprintf("%s is ambiguous: %d candidates (%s)", e.Requested, len(e.Candidates), strings.Join(e.Candidates, ", "))
	default:
		return fmt.Sprintf("%s not found in repository", e.Requested)
	}
}

// Failures collects the ambiguity errors from one All call.
type Failures []*AmbiguityError

func (f Failures) Error() string {
	msgs := make([]string, len(f))
	for i, err := range f {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (f Failures) Unwrap() []error {
	errs := make([]error, len(f))
	for i, err := range f {
		errs[i] = err
	}
	return errs
}

// AsFailures extracts the per-file failures from err, if any.
func AsFailures(err error) (Failures, bool) {
	var failures Failures
	if errors.As(err, &failures) {
		return failures, true
	}
	var single *AmbiguityError
	if errors.As(err, &single) {
		return Failures{single}, true
	}
	return nil, false
}
