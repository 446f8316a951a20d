package mempool

import "fmt"

// AdmissionErrorKind enumerates the four chain-limit failure kinds
// calculate_ancestors and add can fail with.
type AdmissionErrorKind int

const (
	TooManyAncestors AdmissionErrorKind = iota
	AncestorSizeExceeded
	DescendantSizeExceededFor
	TooManyDescendantsFor
)

func (k AdmissionErrorKind) String() string {
	switch k {
	case TooManyAncestors:
		return "too-many-ancestors"
	case AncestorSizeExceeded:
		return "ancestor-size-exceeded"
	case DescendantSizeExceededFor:
		return "descendant-size-exceeded-for"
	case TooManyDescendantsFor:
		return "too-many-descendants-for"
	default:
		return "unknown-admission-error"
	}
}

// AdmissionError is a recoverable chain-limit failure: no engine state
// changes when it is returned. Hash is the offending ancestor's hash
// for the per-hash kinds, and empty for the pool-wide kinds.
type AdmissionError struct {
	Kind AdmissionErrorKind
	Hash string
}

func (e *AdmissionError) Error() string {
	if e.Hash == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", e.Kind.String(), e.Hash)
}

// Is lets callers use errors.Is(err, mempool.ErrTooManyAncestors) etc.
// against an *AdmissionError without needing to know the hash.
func (e *AdmissionError) Is(target error) bool {
	other, ok := target.(*AdmissionError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel instances for errors.Is comparisons; the Hash field on the
// sentinel is never populated and is ignored by Is.
var (
	ErrTooManyAncestors       = &AdmissionError{Kind: TooManyAncestors}
	ErrAncestorSizeExceeded   = &AdmissionError{Kind: AncestorSizeExceeded}
	ErrDescendantSizeExceeded = &AdmissionError{Kind: DescendantSizeExceededFor}
	ErrTooManyDescendants     = &AdmissionError{Kind: TooManyDescendantsFor}
)
