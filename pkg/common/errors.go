package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfiguration is returned before any network call when the
	// caller supplied unusable parameters (chunk size, backend list, ...).
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrUpstreamFailure marks a failed generate/answer/embed call of a single backend.
	ErrUpstreamFailure = errors.New("upstream failure")
	// ErrPartialDegradation marks a result that contains placeholders.
	ErrPartialDegradation = errors.New("partial degradation")
	// ErrStoreUnavailable is returned when the graph store cannot be queried.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSourceNotFound is returned when a document source does not resolve.
	ErrSourceNotFound = errors.New("source not found")
	// ErrSourceForbidden is returned when a source lies outside what the
	// caller may read: a disallowed scheme, a path outside the local root or
	// a non-public host.
	ErrSourceForbidden = errors.New("source forbidden")
)

// InvalidConfiguration formats an error that matches ErrInvalidConfiguration.
func InvalidConfiguration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// UpstreamError describes a failed call to a model backend.
type UpstreamError struct {
	Backend BackendID
	Op      string
	Err     error
}

// NewUpstreamError wraps err as an UpstreamError unless it already is one.
func NewUpstreamError(backend BackendID, op string, err error) *UpstreamError {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}
	return &UpstreamError{Backend: backend, Op: op, Err: err}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend %s: %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamFailure, e.Err}
}

// PartialDegradation is a non-fatal warning attached to results in which one
// or more units were replaced by placeholders.
type PartialDegradation struct {
	Failures []error
}

// Add records another unit failure. It is safe to call on a nil receiver
// only through Degrade.
func (p *PartialDegradation) Add(err error) {
	p.Failures = append(p.Failures, err)
}

// Degrade returns p with err appended, allocating p if needed.
func Degrade(p *PartialDegradation, err error) *PartialDegradation {
	if p == nil {
		p = &PartialDegradation{}
	}
	p.Add(err)
	return p
}

// Merge combines two degradations. Either side may be nil.
func Merge(a, b *PartialDegradation) *PartialDegradation {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := &PartialDegradation{Failures: make([]error, 0, len(a.Failures)+len(b.Failures))}
	out.Failures = append(out.Failures, a.Failures...)
	out.Failures = append(out.Failures, b.Failures...)
	return out
}

func (p *PartialDegradation) Error() string {
	msgs := make([]string, 0, len(p.Failures))
	for _, f := range p.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("partial degradation (%d failures): %s", len(p.Failures), strings.Join(msgs, "; "))
}

func (p *PartialDegradation) Is(target error) bool {
	return target == ErrPartialDegradation
}

func (p *PartialDegradation) Unwrap() []error {
	return p.Failures
}
