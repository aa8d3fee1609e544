// Message HTTP handlers.
//
// This file exposes REST endpoints for the conversation of a pair:
//   - POST /pairs/{talent_id}/{business_id}/messages   (send a message)
//   - GET  /pairs/{talent_id}/{business_id}/messages   (list, paginated, ETag support)
//
// Both endpoints answer 403 access_denied unless the pair currently holds an
// accepted connection. The gate runs before anything else is revealed,
// including the conditional-GET shortcut: a discontinued pair gets 403, never
// 304.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous send exists
// for (user, pair, key), the handler returns that recorded message and sets
// `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/http/middleware"
	"github.com/creerlio/connect-gate/internal/services"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a message.
//
// Body is normalized (line endings, surrounding whitespace) before the length
// check. Sender type and sender id are taken from the authenticated caller.
type PostMessageRequest struct {
	Body string `json:"body" binding:"required,min=1" example:"Hi! Are you available for a call next week?"`
}

// PostMessageResponse is the JSON envelope for a newly created message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	ConversationID string           `json:"conversation_id,omitempty"`
	Messages       []domain.Message `json:"messages"`
	Pagination     Pagination       `json:"pagination"`
}

//
// Helpers
//

// pairParams validates the :talent_id/:business_id path parameters.
func pairParams(c *gin.Context) (talentID, businessID string, valid bool) {
	talentID, businessID = c.Param("talent_id"), c.Param("business_id")
	if _, err := uuid.Parse(talentID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "talent_id must be a UUID")
		return "", "", false
	}
	if _, err := uuid.Parse(businessID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "business_id must be a UUID")
		return "", "", false
	}
	return talentID, businessID, true
}

// requirePair resolves the caller, checks they own a side of the pair and
// that the gate allows communication. On any failure the response has been
// written.
func (h *Handlers) requirePair(c *gin.Context, talentID, businessID string) (services.Identity, bool) {
	me, okCaller := h.caller(c)
	if !okCaller {
		return me, false
	}
	if !me.Owns(talentID, businessID) {
		writeServiceError(c, services.ErrNotParticipant)
		return me, false
	}
	res, err := h.gate.Check(c.Request.Context(), talentID, businessID)
	if err != nil {
		writeServiceError(c, err)
		return me, false
	}
	if !res.Allowed {
		writeServiceError(c, services.ErrAccessDenied)
		return me, false
	}
	return me, true
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message to a connected pair
// @Description Appends a message to the pair's conversation, creating the conversation on first use.
// @Description Requires an accepted connection. Supports idempotency via the Idempotency-Key header.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       talent_id        path    string  true  "Talent profile ID"    format(uuid)
// @Param       business_id      path    string  true  "Business profile ID"  format(uuid)
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
// @Success     201  {object}  handlers.PostMessageResponse  "Created (or replayed)"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse        "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse        "Connection not accepted"
// @Failure     503  {object}  handlers.ErrorResponse        "Store unavailable"
// @Router      /pairs/{talent_id}/{business_id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	talentID, businessID, valid := pairParams(c)
	if !valid {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}

	// Fail fast at the edge; the service repeats both checks.
	body := services.NormalizeBody(req.Body)
	if body == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}
	maxRunes := h.msgSvc.MaxRunes()
	if utf8.RuneCountInString(body) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("body too long: max %d characters", maxRunes))
		return
	}

	me, allowed := h.requirePair(c, talentID, businessID)
	if !allowed {
		return
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)
	scope := middleware.GetIdempotencyScope(c)
	if scope == "" {
		scope = talentID + ":" + businessID
	}
	if idemKey != "" {
		if prev, found := h.msgSvc.Replay(ctx, me.UserID, scope, idemKey); found {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusCreated, PostMessageResponse{Message: prev})
			return
		}
	}

	m, err := h.msgSvc.Send(ctx, me, talentID, businessID, body)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	// Best effort: a failed record only loses replay for this key.
	if idemKey != "" {
		if err := h.msgSvc.Remember(ctx, me.UserID, scope, idemKey, m.ID, http.StatusCreated, h.idemTTL); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("message_id", m.ID).Msg("idempotency record failed")
		}
	}

	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages of a pair
// @Description Returns a paginated list of messages ordered oldest first. Requires an accepted connection.
// @Description A pair that has never exchanged a message returns an empty list.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       talent_id      path    string  true  "Talent profile ID"    format(uuid)
// @Param       business_id    path    string  true  "Business profile ID"  format(uuid)
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Param       If-None-Match  header  string  false "ETag from a previous response"
// @Success     200  {object} handlers.ListMessagesResponse
// @Success     304  "Not modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     403  {object} handlers.ErrorResponse "Connection not accepted"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable"
// @Router      /pairs/{talent_id}/{business_id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	talentID, businessID, valid := pairParams(c)
	if !valid {
		return
	}

	me, allowed := h.requirePair(c, talentID, businessID)
	if !allowed {
		return
	}

	// ETag pre-check (best effort).
	if count, maxTS, err := h.msgSvc.Stats(ctx, talentID, businessID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"messages:%s:%s:%d:%d"`, talentID, businessID, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	page, pageSize := clampPagination(c)

	res, err := h.msgSvc.List(ctx, me, talentID, businessID, page, pageSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	items := res.Items
	if items == nil {
		items = []domain.Message{}
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		ConversationID: res.ConversationID,
		Messages:       items,
		Pagination:     newPagination(page, pageSize, res.Total),
	})
}
