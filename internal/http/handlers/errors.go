// Package handlers defines the HTTP error codes of the API and the single
// translation from service errors to responses.
//
// Codes are lowercase snake_case. Generic ones mirror the HTTP status;
// access_denied and store_unavailable are specific to this service and are
// the ones clients are expected to branch on.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/creerlio/connect-gate/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeAccessDenied     = "access_denied"
	ErrCodeStoreUnavailable = "store_unavailable"
)

// storeUnavailableMessage is shown for any TransientStoreError.
const storeUnavailableMessage = "could not load or save, please retry"

// writeServiceError maps a service error onto the response envelope.
func writeServiceError(c *gin.Context, err error) {
	var storeErr *services.TransientStoreError
	switch {
	case errors.Is(err, services.ErrAuthenticationRequired):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case errors.Is(err, services.ErrAccessDenied):
		fail(c, http.StatusForbidden, ErrCodeAccessDenied, services.AccessDeniedMessage)
	case errors.Is(err, services.ErrNotParticipant), errors.Is(err, services.ErrNotCounterparty):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case services.IsValidation(err):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrConnectionNotFound),
		errors.Is(err, services.ErrConversationNotFound),
		errors.Is(err, services.ErrConsentNotFound),
		errors.Is(err, services.ErrMeetingNotFound),
		errors.Is(err, services.ErrProfileNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrConnectionExists), errors.Is(err, services.ErrInvalidTransition):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.As(err, &storeErr):
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("op", storeErr.Op).Msg("store failure")
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, storeUnavailableMessage)
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
