// Meeting and calendar HTTP handlers.
//
//   - POST /meetings                 (schedule on an accepted connection)
//   - POST /meetings/{id}/accept     (counterparty accepts)
//   - POST /meetings/{id}/decline    (counterparty declines)
//   - POST /meetings/{id}/cancel     (either party cancels)
//   - GET  /calendar                 (meetings and connection milestones)
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/services"
)

//
// DTOs
//

// ScheduleMeetingRequest is the JSON payload for POST /meetings.
type ScheduleMeetingRequest struct {
	ConnectionRequestID string `json:"connection_request_id" binding:"required" example:"6f1c2a9e-3c4b-4d8e-9f10-2a3b4c5d6e7f"`
	// StartAt is RFC 3339 and must be in the future.
	StartAt string `json:"start_at" binding:"required" example:"2026-11-02T09:30:00Z"`
}

// MeetingResponse wraps a single meeting.
type MeetingResponse struct {
	Meeting *domain.MeetingSession `json:"meeting"`
}

// CalendarResponse lists calendar entries sorted by date.
type CalendarResponse struct {
	Events []services.CalendarEvent `json:"events"`
}

//
// Handlers
//

// ScheduleMeeting godoc
// @ID          scheduleMeeting
// @Summary     Schedule a meeting
// @Description Creates a pending meeting on an accepted connection the caller is part of.
// @Tags        Meetings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.ScheduleMeetingRequest  true  "Meeting"
// @Success     201  {object}  handlers.MeetingResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or time in the past"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a party, or connection not accepted"
// @Failure     404  {object}  handlers.ErrorResponse  "Connection not found"
// @Router      /meetings [post]
func (h *Handlers) ScheduleMeeting(c *gin.Context) {
	var req ScheduleMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "connection_request_id and start_at required")
		return
	}
	if _, err := uuid.Parse(req.ConnectionRequestID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "connection_request_id must be a UUID")
		return
	}
	startAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartAt))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "start_at must be RFC 3339")
		return
	}

	me, okCaller := h.caller(c)
	if !okCaller {
		return
	}
	m, err := h.meetings.Schedule(c.Request.Context(), me, req.ConnectionRequestID, startAt)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusCreated, MeetingResponse{Meeting: m})
}

// AcceptMeeting godoc
// @ID          acceptMeeting
// @Summary     Accept a pending meeting
// @Tags        Meetings
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Meeting ID"  format(uuid)
// @Success     200  {object}  handlers.MeetingResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not the counterparty"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not pending"
// @Router      /meetings/{id}/accept [post]
func (h *Handlers) AcceptMeeting(c *gin.Context) { h.meetingAction(c, h.meetings.Accept) }

// DeclineMeeting godoc
// @ID          declineMeeting
// @Summary     Decline a pending meeting
// @Tags        Meetings
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Meeting ID"  format(uuid)
// @Success     200  {object}  handlers.MeetingResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not the counterparty"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not pending"
// @Router      /meetings/{id}/decline [post]
func (h *Handlers) DeclineMeeting(c *gin.Context) { h.meetingAction(c, h.meetings.Decline) }

// CancelMeeting godoc
// @ID          cancelMeeting
// @Summary     Cancel a meeting
// @Tags        Meetings
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Meeting ID"  format(uuid)
// @Success     200  {object}  handlers.MeetingResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a party"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already cancelled"
// @Router      /meetings/{id}/cancel [post]
func (h *Handlers) CancelMeeting(c *gin.Context) { h.meetingAction(c, h.meetings.Cancel) }

func (h *Handlers) meetingAction(c *gin.Context, fn func(context.Context, services.Identity, string) (*domain.MeetingSession, error)) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "meeting id must be a UUID")
		return
	}
	me, okCaller := h.caller(c)
	if !okCaller {
		return
	}
	m, err := fn(c.Request.Context(), me, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, MeetingResponse{Meeting: m})
}

// GetCalendar godoc
// @ID          getCalendar
// @Summary     List the caller's calendar
// @Description Pending and active meetings plus accepted connections, sorted by date. Bounds are inclusive and optional.
// @Tags        Calendar
// @Produce     json
// @Security    BearerAuth
// @Param       from  query  string  false "Start (RFC 3339)"
// @Param       to    query  string  false "End (RFC 3339)"
// @Success     200  {object}  handlers.CalendarResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /calendar [get]
func (h *Handlers) GetCalendar(c *gin.Context) {
	from, err := parseOptionalTime(c.Query("from"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from must be RFC 3339")
		return
	}
	to, err := parseOptionalTime(c.Query("to"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "to must be RFC 3339")
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "to must not be before from")
		return
	}

	me, okCaller := h.caller(c)
	if !okCaller {
		return
	}
	evs, err := h.calendar.Events(c.Request.Context(), me, from, to)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if evs == nil {
		evs = []services.CalendarEvent{}
	}
	ok(c, http.StatusOK, CalendarResponse{Events: evs})
}

func parseOptionalTime(s string) (time.Time, error) {
	if s = strings.TrimSpace(s); s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
