// Package services defines the business logic for connections, the access
// gate, conversations, messages, consent and meetings. This file centralizes
// the service-level error values so that they can be returned consistently by
// service methods and checked by callers with errors.Is / errors.As.
//
// Translation into user-facing messages and HTTP status codes happens in the
// handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/creerlio/connect-gate/internal/repo"
)

// AccessDeniedMessage is the user-facing explanation shown whenever the
// access gate refuses communication.
const AccessDeniedMessage = "Connection not accepted. Please accept the connection request first."

// Authentication and authorization errors.
var (
	// ErrAuthenticationRequired means there is no identity for the caller, or
	// the account has no role profile.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrAccessDenied means the pair has no current accepted connection.
	ErrAccessDenied = errors.New(AccessDeniedMessage)

	// ErrNotParticipant is returned when the caller owns neither side of the
	// pair or record being acted on.
	ErrNotParticipant = errors.New("caller is not a party to this connection")

	// ErrNotCounterparty is returned when the initiator of a request tries to
	// answer it, or a party acts on something reserved to the other side.
	ErrNotCounterparty = errors.New("only the counterparty may perform this action")
)

// Validation errors. All of them are raised before any store call.
var (
	ErrEmptyBody         = errors.New("message body is empty")
	ErrBodyTooLong       = errors.New("message body too long")
	ErrMeetingInPast     = errors.New("meeting time must be in the future")
	ErrInvalidSenderType = errors.New("sender type must be talent or business")
	ErrSelfConnection    = errors.New("counterpart must be a profile of the other role")
	ErrInvalidDecision   = errors.New("invalid decision")
	ErrInvalidStatus     = errors.New("unknown status filter")
)

// State errors.
var (
	ErrConnectionNotFound   = errors.New("connection request not found")
	ErrConnectionExists     = errors.New("an active connection request already exists for this pair")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConsentNotFound      = errors.New("consent request not found")
	ErrMeetingNotFound      = errors.New("meeting not found")
	ErrProfileNotFound      = errors.New("profile not found")
)

// TransientStoreError wraps a failed lookup or write against the store. It is
// surfaced once; nothing in this package retries.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: could not load or save: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// IsValidation reports whether err is one of the validation errors.
func IsValidation(err error) bool {
	for _, v := range []error{ErrEmptyBody, ErrBodyTooLong, ErrMeetingInPast, ErrInvalidSenderType, ErrSelfConnection, ErrInvalidDecision, ErrInvalidStatus} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// storeErr wraps err as a TransientStoreError for op.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientStoreError{Op: op, Err: err}
}

// notFoundOr maps repo.ErrNotFound to sentinel and wraps anything else as a
// store error.
func notFoundOr(op string, err, sentinel error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return sentinel
	}
	return storeErr(op, err)
}
