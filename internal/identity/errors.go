package identity

import (
	"fmt"
)

// Kind classifies why an identity could not be resolved
type Kind int

const (
	// KindExternalAPI means the provider answered with an error payload or could not be reached
	KindExternalAPI Kind = iota + 1
	// KindNotLinked means the account exists but never completed the platform handshake
	KindNotLinked
	// KindUnknownExternalID means the provider does not know the account ID
	KindUnknownExternalID
	// KindInconsistent means the link changed between two lookups
	KindInconsistent
	// KindPermissionDenied means the platform refused a mutation
	KindPermissionDenied
	// KindNoCredential means the guild has no usable master key
	KindNoCredential
)

func (k Kind) String() string {
	switch k {
	case KindExternalAPI:
		return "external_api_error"
	case KindNotLinked:
		return "not_linked"
	case KindUnknownExternalID:
		return "unknown_external_id"
	case KindInconsistent:
		return "inconsistent"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNoCredential:
		return "no_credential"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified resolution failure
type Error struct {
	Kind Kind

	// Code is the provider error code for KindExternalAPI and KindUnknownExternalID
	Code    int
	Message string
	Err     error
}

// Sentinels for errors.Is
var (
	ErrExternalAPI       = &Error{Kind: KindExternalAPI}
	ErrNotLinked         = &Error{Kind: KindNotLinked}
	ErrUnknownExternalID = &Error{Kind: KindUnknownExternalID}
	ErrInconsistent      = &Error{Kind: KindInconsistent}
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied}
	ErrNoCredential      = &Error{Kind: KindNoCredential}
)

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
