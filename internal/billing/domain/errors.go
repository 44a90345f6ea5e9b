package domain

import (
	"errors"
	"fmt"
)

// Kind distinguishes the error categories of §7.
type Kind int

const (
	KindInputValidation Kind = iota
	KindInconsistency
	KindMissingData
	KindZoneUnknown
	KindCancelled
	KindNumericOverflow
)

func (k Kind) String() string {
	switch k {
	case KindInputValidation:
		return "input_validation"
	case KindInconsistency:
		return "inconsistency"
	case KindMissingData:
		return "missing_data"
	case KindZoneUnknown:
		return "zone_unknown"
	case KindCancelled:
		return "cancelled"
	case KindNumericOverflow:
		return "numeric_overflow"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind, so callers can branch with errors.Is
// against either the kind sentinel or a concrete *BillingError.
var (
	ErrInputValidation  = errors.New("billing: input validation failed")
	ErrInconsistency    = errors.New("billing: inconsistent input")
	ErrMissingData      = errors.New("billing: missing data")
	ErrZoneUnknown      = errors.New("billing: unknown timezone")
	ErrCancelled        = errors.New("billing: computation cancelled")
	ErrNumericOverflow  = errors.New("billing: numeric overflow")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindInputValidation:
		return ErrInputValidation
	case KindInconsistency:
		return ErrInconsistency
	case KindMissingData:
		return ErrMissingData
	case KindZoneUnknown:
		return ErrZoneUnknown
	case KindCancelled:
		return ErrCancelled
	case KindNumericOverflow:
		return ErrNumericOverflow
	default:
		return errors.New("billing: error")
	}
}

// BillingError carries a Kind plus a human-readable message. It satisfies
// errors.Is against its Kind's sentinel so callers can branch on category
// without string matching.
type BillingError struct {
	Kind    Kind
	Message string
}

func (e *BillingError) Error() string {
	return e.Message
}

// Is reports whether target is the sentinel associated with e.Kind.
func (e *BillingError) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

func newKindErr(kind Kind, format string, args ...any) *BillingError {
	return &BillingError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func newValidationErr(format string, args ...any) *BillingError {
	return newKindErr(KindInputValidation, format, args...)
}

func newInconsistencyErr(format string, args ...any) *BillingError {
	return newKindErr(KindInconsistency, format, args...)
}

func newMissingDataErr(format string, args ...any) *BillingError {
	return newKindErr(KindMissingData, format, args...)
}

func newZoneUnknownErr(format string, args ...any) *BillingError {
	return newKindErr(KindZoneUnknown, format, args...)
}

// newCancelledErr's result is returned verbatim (not wrapped) so it remains
// comparable with errors.Is(err, ErrCancelled) without further unwrapping.
func newCancelledErr() *BillingError {
	return newKindErr(KindCancelled, "computation cancelled")
}
