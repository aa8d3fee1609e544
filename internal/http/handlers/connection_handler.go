// Connection HTTP handlers.
//
//   - POST /connections                   (request a connection)
//   - GET  /connections                   (list the caller's requests)
//   - POST /connections/{id}/respond      (accept or decline)
//   - POST /connections/{id}/discontinue  (end an accepted connection)
//   - POST /connections/{id}/reconnect    (re-request after discontinuing)
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/services"
)

//
// DTOs
//

// CreateConnectionRequest is the JSON payload for POST /connections.
type CreateConnectionRequest struct {
	// CounterpartID is the profile of the other role (a business for a
	// talent caller, a talent for a business caller).
	CounterpartID string `json:"counterpart_id" binding:"required" example:"6f1c2a9e-3c4b-4d8e-9f10-2a3b4c5d6e7f"`
}

// RespondConnectionRequest is the JSON payload for answering a request.
type RespondConnectionRequest struct {
	Accept *bool `json:"accept" binding:"required" example:"true"`
}

// ConnectionResponse wraps a single connection request.
type ConnectionResponse struct {
	Connection *domain.ConnectionRequest `json:"connection"`
}

// ListConnectionsResponse wraps a page of connection requests.
type ListConnectionsResponse struct {
	Connections []domain.ConnectionRequest `json:"connections"`
	Pagination  Pagination                 `json:"pagination"`
}

//
// Handlers
//

// CreateConnection godoc
// @ID          createConnection
// @Summary     Request a connection
// @Description Opens a pending connection request from the caller's profile to a profile of the other role.
// @Tags        Connections
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.CreateConnectionRequest  true  "Counterpart"
// @Success     201  {object}  handlers.ConnectionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Counterpart not found"
// @Failure     409  {object}  handlers.ErrorResponse  "An active request already exists"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /connections [post]
func (h *Handlers) CreateConnection(c *gin.Context) {
	var req CreateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "counterpart_id required")
		return
	}
	counterpart := strings.TrimSpace(req.CounterpartID)
	if _, err := uuid.Parse(counterpart); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "counterpart_id must be a UUID")
		return
	}

	me, okCaller := h.caller(c)
	if !okCaller {
		return
	}
	conn, err := h.connSvc.Request(c.Request.Context(), me, counterpart)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusCreated, ConnectionResponse{Connection: conn})
}

// ListConnections godoc
// @ID          listConnections
// @Summary     List the caller's connection requests
// @Tags        Connections
// @Produce     json
// @Security    BearerAuth
// @Param       status     query  string  false "Filter by status"  Enums(pending, accepted, declined, discontinued)
// @Param       page       query  int     false "Page number"       minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"    minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListConnectionsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown status"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /connections [get]
func (h *Handlers) ListConnections(c *gin.Context) {
	me, okCaller := h.caller(c)
	if !okCaller {
		return
	}
	page, pageSize := clampPagination(c)
	status := domain.ConnectionStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))

	res, err := h.connSvc.List(c.Request.Context(), me, status, page, pageSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	items := res.Items
	if items == nil {
		items = []domain.ConnectionRequest{}
	}
	ok(c, http.StatusOK, ListConnectionsResponse{
		Connections: items,
		Pagination:  newPagination(page, pageSize, res.Total),
	})
}

// RespondConnection godoc
// @ID          respondConnection
// @Summary     Accept or decline a connection request
// @Description Only the counterparty of the initiator may answer, and only while the request is pending.
// @Tags        Connections
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Connection request ID"  format(uuid)
// @Param       body  body  handlers.RespondConnectionRequest  true  "Decision"
// @Success     200  {object}  handlers.ConnectionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the counterparty"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not pending"
// @Router      /connections/{id}/respond [post]
func (h *Handlers) RespondConnection(c *gin.Context) {
	var req RespondConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Accept == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "accept required")
		return
	}
	accept := *req.Accept
	h.connectionAction(c, func(ctx context.Context, me services.Identity, id string) (*domain.ConnectionRequest, error) {
		return h.connSvc.Respond(ctx, me, id, accept)
	})
}

// DiscontinueConnection godoc
// @ID          discontinueConnection
// @Summary     Discontinue an accepted connection
// @Description Either party may discontinue. Messaging is blocked immediately afterwards.
// @Tags        Connections
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Connection request ID"  format(uuid)
// @Success     200  {object}  handlers.ConnectionResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a party"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not accepted"
// @Router      /connections/{id}/discontinue [post]
func (h *Handlers) DiscontinueConnection(c *gin.Context) {
	h.connectionAction(c, h.connSvc.Discontinue)
}

// ReconnectConnection godoc
// @ID          reconnectConnection
// @Summary     Request a new connection after a discontinued one
// @Tags        Connections
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Discontinued connection request ID"  format(uuid)
// @Success     201  {object}  handlers.ConnectionResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a party"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not discontinued, or an active request exists"
// @Router      /connections/{id}/reconnect [post]
func (h *Handlers) ReconnectConnection(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "connection id must be a UUID")
		return
	}
	me, okCaller := h.caller(c)
	if !okCaller {
		return
	}
	conn, err := h.connSvc.Reconnect(c.Request.Context(), me, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusCreated, ConnectionResponse{Connection: conn})
}

// connectionAction validates :id, resolves the caller and runs fn.
func (h *Handlers) connectionAction(c *gin.Context, fn func(context.Context, services.Identity, string) (*domain.ConnectionRequest, error)) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "connection id must be a UUID")
		return
	}
	me, okCaller := h.caller(c)
	if !okCaller {
		return
	}
	conn, err := fn(c.Request.Context(), me, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, ConnectionResponse{Connection: conn})
}
