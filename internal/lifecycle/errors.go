package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleTransition means the gig is no longer in the state the actor saw.
	// The caller should re-read current state before retrying.
	ErrStaleTransition = errors.New("gig is no longer available")
	// ErrRemoteWriteFailed wraps transport and store errors. Retryable.
	ErrRemoteWriteFailed = errors.New("remote write failed")
	// ErrForbidden means the actor may not perform this action on this gig.
	ErrForbidden = errors.New("action not permitted for this participant")
	// ErrInvalidDraft means a new gig is missing a required field.
	ErrInvalidDraft = errors.New("invalid gig draft")
	// ErrNotAuthenticated means the actor has no identity yet.
	ErrNotAuthenticated = errors.New("participant is not authenticated")
	// ErrUnknownAction is returned by Decide for unrecognized actions.
	ErrUnknownAction = errors.New("unknown action")
)

// TransitionError reports a refused or failed action on a gig.
type TransitionError struct {
	Kind   error
	Action Action
	GigID  string
	Err    error
}

func (e *TransitionError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s %s: %s", e.Action, e.GigID, e.Kind.Error())
	if e.GigID == "" {
		msg = fmt.Sprintf("%s: %s", e.Action, e.Kind.Error())
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *TransitionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func refuse(kind error, action Action, gigID, format string, args ...any) error {
	var cause error
	if format != "" {
		cause = fmt.Errorf(format, args...)
	}
	return &TransitionError{Kind: kind, Action: action, GigID: gigID, Err: cause}
}
