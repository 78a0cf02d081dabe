package booking

import (
	"errors"
	"fmt"

	"github.com/randevubu/randevubu.server-sub006/internal/rules"
)

// Kind classifies booking failures for callers. PolicyViolation and the
// availability kinds are user-correctable; SlotTaken is retryable with a
// different slot; Transient means infrastructure trouble, retry later.
type Kind int

const (
	KindPolicyViolation Kind = iota + 1
	KindSlotTaken
	KindNotFound
	KindBusinessClosed
	KindServiceUnavailable
	KindStaffUnavailable
	KindCustomerBanned
	KindIncompleteProfile
	KindAccessDenied
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindPolicyViolation:
		return "policy_violation"
	case KindSlotTaken:
		return "slot_taken"
	case KindNotFound:
		return "not_found"
	case KindBusinessClosed:
		return "business_closed"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindStaffUnavailable:
		return "staff_unavailable"
	case KindCustomerBanned:
		return "customer_banned"
	case KindIncompleteProfile:
		return "incomplete_profile"
	case KindAccessDenied:
		return "access_denied"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is the typed rejection returned by the booking operations.
type Error struct {
	Kind       Kind
	Message    string
	Violations []rules.Violation
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func policyError(violations []rules.Violation) *Error {
	msg := "booking violates reservation rules"
	if len(violations) > 0 {
		msg = violations[0].Message
	}
	return &Error{Kind: KindPolicyViolation, Message: msg, Violations: violations}
}

// KindOf extracts the booking error kind, or 0 for untyped errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
