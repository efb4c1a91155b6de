package game

import (
	"errors"
	"fmt"

	"github.com/moonrise/moonrise/internal/domain/phase"
)

// StateError reports an action submitted in the wrong phase or an illegal phase jump.
type StateError = phase.StateError

// AuthorizationError reports an actor lacking the role or identity an action requires.
type AuthorizationError struct {
	PlayerID string
	Action   string
	Reason   string
}

func (e *AuthorizationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s may not %s: %s", e.PlayerID, e.Action, e.Reason)
	}
	return fmt.Sprintf("%s may not %s", e.PlayerID, e.Action)
}

// ValidationError reports a disallowed target or argument.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid action: " + e.Reason
}

// ResourceError reports an unknown session or participant.
type ResourceError struct {
	Kind string
	ID   string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// RequirePhase returns a StateError unless s is in one of the allowed phases.
func RequirePhase(s *Session, action string, allowed ...phase.Phase) error {
	for _, p := range allowed {
		if s.Phase == p {
			return nil
		}
	}
	return &StateError{From: s.Phase, Action: action}
}

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Forbidden builds an AuthorizationError.
func Forbidden(playerID, action, reason string) error {
	return &AuthorizationError{PlayerID: playerID, Action: action, Reason: reason}
}

// NotFound builds a ResourceError.
func NotFound(kind, id string) error {
	return &ResourceError{Kind: kind, ID: id}
}

// Error codes shared by every transport.
const (
	CodeInvalidState  = "INVALID_STATE"
	CodeForbidden     = "FORBIDDEN"
	CodeInvalidAction = "INVALID_ACTION"
	CodeNotFound      = "NOT_FOUND"
	CodeInternal      = "INTERNAL_ERROR"
)

// Code classifies err into one of the error codes.
func Code(err error) string {
	var (
		stateErr *StateError
		authErr  *AuthorizationError
		valErr   *ValidationError
		resErr   *ResourceError
	)
	switch {
	case errors.As(err, &stateErr):
		return CodeInvalidState
	case errors.As(err, &authErr):
		return CodeForbidden
	case errors.As(err, &valErr):
		return CodeInvalidAction
	case errors.As(err, &resErr):
		return CodeNotFound
	}
	return CodeInternal
}
