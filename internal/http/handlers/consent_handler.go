// Consent HTTP handlers.
//
//   - POST /pairs/{talent_id}/{business_id}/consent   (business asks for export/print consent)
//   - GET  /pairs/{talent_id}/{business_id}/consent   (effective consent state)
//   - POST /consent/{id}/respond                      (talent approves or denies)
//   - POST /consent/{id}/revoke                       (talent withdraws an approval)
//   - GET  /consent/{id}/events                       (audit trail)
//
// Consent never grants messaging; it is only requested over an accepted
// connection.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/services"
)

// maxConsentTTLHours caps client-chosen approval durations (one year).
const maxConsentTTLHours = 24 * 365

//
// DTOs
//

// CreateConsentRequest is the JSON payload for requesting consent.
type CreateConsentRequest struct {
	Reason string `json:"reason" binding:"max=2000" example:"We'd like to include your portfolio in our hiring review pack."`
}

// RespondConsentRequest is the JSON payload for answering a consent request.
type RespondConsentRequest struct {
	Approve *bool `json:"approve" binding:"required" example:"true"`
	// TTLHours overrides the default approval duration. 0 uses the default.
	TTLHours int `json:"ttl_hours" binding:"min=0" example:"168"`
}

// ConsentResponse wraps a single consent request.
type ConsentResponse struct {
	Consent *domain.ConsentRequest `json:"consent"`
}

// ConsentStatusResponse reports the pair's effective consent.
type ConsentStatusResponse struct {
	// Status is empty when no request was ever made.
	Status    domain.ConsentStatus   `json:"status" example:"approved"`
	Request   *domain.ConsentRequest `json:"request,omitempty"`
	ExpiresAt *time.Time             `json:"expires_at,omitempty"`
}

// ConsentEventsResponse lists the audit trail of a consent request.
type ConsentEventsResponse struct {
	Events []domain.ConsentEvent `json:"events"`
}

//
// Handlers
//

// CreateConsent godoc
// @ID          createConsent
// @Summary     Request consent to export or print a talent's content
// @Description Only the business side of the pair may ask, and only over an accepted connection.
// @Description A system message announcing the request is posted into the conversation.
// @Tags        Consent
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       talent_id    path  string  true  "Talent profile ID"    format(uuid)
// @Param       business_id  path  string  true  "Business profile ID"  format(uuid)
// @Param       body         body  handlers.CreateConsentRequest  false "Optional reason"
// @Success     201  {object}  handlers.ConsentResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the business side, or connection not accepted"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /pairs/{talent_id}/{business_id}/consent [post]
func (h *Handlers) CreateConsent(c *gin.Context) {
	talentID, businessID, valid := pairParams(c)
	if !valid {
		return
	}

	var req CreateConsentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid consent payload")
			return
		}
	}

	me, okCaller := h.caller(c)
	if !okCaller {
		return
	}
	if !me.Owns(talentID, businessID) {
		writeServiceError(c, services.ErrNotParticipant)
		return
	}
	if me.Role != domain.RoleBusiness {
		writeServiceError(c, services.ErrNotCounterparty)
		return
	}

	cr, err := h.consent.Request(c.Request.Context(), me, talentID, req.Reason)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusCreated, ConsentResponse{Consent: cr})
}

// GetConsentStatus godoc
// @ID          getConsentStatus
// @Summary     Get the effective consent state of a pair
// @Description An approval past its expiry is reported as expired.
// @Tags        Consent
// @Produce     json
// @Security    BearerAuth
// @Param       talent_id    path  string  true  "Talent profile ID"    format(uuid)
// @Param       business_id  path  string  true  "Business profile ID"  format(uuid)
// @Success     200  {object}  handlers.ConsentStatusResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Caller is not part of the pair"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /pairs/{talent_id}/{business_id}/consent [get]
func (h *Handlers) GetConsentStatus(c *gin.Context) {
	talentID, businessID, valid := pairParams(c)
	if !valid {
		return
	}
	me, okCaller := h.caller(c)
	if !okCaller {
		return
	}
	if !me.Owns(talentID, businessID) {
		writeServiceError(c, services.ErrNotParticipant)
		return
	}

	st, err := h.consent.Status(c.Request.Context(), talentID, businessID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, ConsentStatusResponse(st))
}

// RespondConsent godoc
// @ID          respondConsent
// @Summary     Approve or deny a consent request
// @Description Only the talent the request targets may answer, and only while it is pending.
// @Tags        Consent
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Consent request ID"  format(uuid)
// @Param       body  body  handlers.RespondConsentRequest  true  "Decision"
// @Success     200  {object}  handlers.ConsentResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the talent"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not pending"
// @Router      /consent/{id}/respond [post]
func (h *Handlers) RespondConsent(c *gin.Context) {
	var req RespondConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Approve == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "approve required")
		return
	}
	if req.TTLHours > maxConsentTTLHours {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ttl_hours too large")
		return
	}
	approve, ttl := *req.Approve, time.Duration(req.TTLHours)*time.Hour
	h.consentAction(c, func(ctx context.Context, me services.Identity, id string) (*domain.ConsentRequest, error) {
		return h.consent.Respond(ctx, me, id, approve, ttl)
	})
}

// RevokeConsent godoc
// @ID          revokeConsent
// @Summary     Revoke an approved consent
// @Tags        Consent
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Consent request ID"  format(uuid)
// @Success     200  {object}  handlers.ConsentResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not the talent"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not approved"
// @Router      /consent/{id}/revoke [post]
func (h *Handlers) RevokeConsent(c *gin.Context) {
	h.consentAction(c, h.consent.Revoke)
}

// ListConsentEvents godoc
// @ID          listConsentEvents
// @Summary     List the audit trail of a consent request
// @Tags        Consent
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Consent request ID"  format(uuid)
// @Success     200  {object}  handlers.ConsentEventsResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a party"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /consent/{id}/events [get]
func (h *Handlers) ListConsentEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "consent id must be a UUID")
		return
	}
	me, okCaller := h.caller(c)
	if !okCaller {
		return
	}
	evs, err := h.consent.Events(c.Request.Context(), me, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if evs == nil {
		evs = []domain.ConsentEvent{}
	}
	ok(c, http.StatusOK, ConsentEventsResponse{Events: evs})
}

func (h *Handlers) consentAction(c *gin.Context, fn func(context.Context, services.Identity, string) (*domain.ConsentRequest, error)) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "consent id must be a UUID")
		return
	}
	me, okCaller := h.caller(c)
	if !okCaller {
		return
	}
	cr, err := fn(c.Request.Context(), me, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, ConsentResponse{Consent: cr})
}
