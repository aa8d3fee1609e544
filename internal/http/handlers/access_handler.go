// Access gate HTTP handler.
//
//   - GET /access?talent_id=&business_id=   (may this pair communicate?)
//
// A denial is a normal 200 answer with allowed=false and the user-facing
// reason; only store failures produce an error response.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/creerlio/connect-gate/internal/services"
)

// AccessResponse is the JSON body of GET /access.
type AccessResponse struct {
	Allowed      bool   `json:"allowed" example:"false"`
	Reason       string `json:"reason,omitempty" example:"Connection not accepted. Please accept the connection request first."`
	ConnectionID string `json:"connection_id,omitempty" example:"6f1c2a9e-3c4b-4d8e-9f10-2a3b4c5d6e7f"`
}

// CheckAccess godoc
// @ID          checkAccess
// @Summary     Check whether a talent and a business may communicate
// @Description Reports whether the pair has an accepted connection request.
// @Description The caller must be one side of the pair.
// @Tags        Access
// @Produce     json
// @Security    BearerAuth
// @Param       talent_id    query  string  true  "Talent profile ID"    format(uuid)
// @Param       business_id  query  string  true  "Business profile ID"  format(uuid)
// @Success     200  {object}  handlers.AccessResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Caller is not part of the pair"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /access [get]
func (h *Handlers) CheckAccess(c *gin.Context) {
	talentID := strings.TrimSpace(c.Query("talent_id"))
	businessID := strings.TrimSpace(c.Query("business_id"))
	if talentID == "" || businessID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "talent_id and business_id are required")
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

	res, err := h.gate.Check(c.Request.Context(), talentID, businessID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, AccessResponse(res))
}
