// Package handlers wires the HTTP endpoints to the application services.
//
// Handlers are transport-thin: they resolve the caller, validate input,
// delegate to a service and translate the result (or error) into a response.
// Every service is consumed through a small interface declared here so tests
// can substitute stubs.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/http/middleware"
	"github.com/creerlio/connect-gate/internal/services"
	"github.com/creerlio/connect-gate/internal/utils"
)

//
// Service contracts (context-aware)
//

// IdentityResolver turns the authenticated account into a role profile.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID string, role domain.Role) (services.Identity, error)
}

// AccessChecker answers whether a pair may communicate.
type AccessChecker interface {
	Check(ctx context.Context, talentID, businessID string) (services.AccessResult, error)
}

// ConnectionService manages connection requests.
type ConnectionService interface {
	Request(ctx context.Context, caller services.Identity, counterpartID string) (*domain.ConnectionRequest, error)
	Respond(ctx context.Context, caller services.Identity, requestID string, accept bool) (*domain.ConnectionRequest, error)
	Discontinue(ctx context.Context, caller services.Identity, requestID string) (*domain.ConnectionRequest, error)
	Reconnect(ctx context.Context, caller services.Identity, requestID string) (*domain.ConnectionRequest, error)
	List(ctx context.Context, caller services.Identity, status domain.ConnectionStatus, page, pageSize int) (services.ConnectionPage, error)
}

// MessageService sends and lists messages of a pair's conversation.
//
// Implementations must run the access gate on Send and List themselves; the
// handler's own gate check only guards the conditional-GET shortcut.
type MessageService interface {
	Send(ctx context.Context, caller services.Identity, talentID, businessID, body string) (*domain.Message, error)
	List(ctx context.Context, caller services.Identity, talentID, businessID string, page, pageSize int) (services.MessagePage, error)
	Stats(ctx context.Context, talentID, businessID string) (count int64, latest *time.Time, err error)
	Replay(ctx context.Context, userID, scopeID, key string) (*domain.Message, bool)
	Remember(ctx context.Context, userID, scopeID, key, messageID string, status int, ttl time.Duration) error
	MaxRunes() int
}

// ConsentService runs the export/print consent workflow.
type ConsentService interface {
	Request(ctx context.Context, caller services.Identity, talentID, reason string) (*domain.ConsentRequest, error)
	Respond(ctx context.Context, caller services.Identity, requestID string, approve bool, ttl time.Duration) (*domain.ConsentRequest, error)
	Revoke(ctx context.Context, caller services.Identity, requestID string) (*domain.ConsentRequest, error)
	Status(ctx context.Context, talentID, businessID string) (services.ConsentState, error)
	Events(ctx context.Context, caller services.Identity, requestID string) ([]domain.ConsentEvent, error)
}

// MeetingService schedules meetings between connected parties.
type MeetingService interface {
	Schedule(ctx context.Context, caller services.Identity, connectionRequestID string, startAt time.Time) (*domain.MeetingSession, error)
	Accept(ctx context.Context, caller services.Identity, meetingID string) (*domain.MeetingSession, error)
	Decline(ctx context.Context, caller services.Identity, meetingID string) (*domain.MeetingSession, error)
	Cancel(ctx context.Context, caller services.Identity, meetingID string) (*domain.MeetingSession, error)
}

// CalendarService merges meetings and connection milestones.
type CalendarService interface {
	Events(ctx context.Context, caller services.Identity, from, to time.Time) ([]services.CalendarEvent, error)
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers.
type Services struct {
	Identity    IdentityResolver
	Gate        AccessChecker
	Connections ConnectionService
	Messages    MessageService
	Consent     ConsentService
	Meetings    MeetingService
	Calendar    CalendarService
}

// Handlers groups HTTP endpoints for connections, messages, consent,
// meetings and the calendar.
type Handlers struct {
	identity IdentityResolver
	gate     AccessChecker
	connSvc  ConnectionService
	msgSvc   MessageService
	consent  ConsentService
	meetings MeetingService
	calendar CalendarService

	// idemTTL is how long a message send is remembered under its
	// Idempotency-Key.
	idemTTL time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(s Services, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{
		identity: s.Identity,
		gate:     s.Gate,
		connSvc:  s.Connections,
		msgSvc:   s.Messages,
		consent:  s.Consent,
		meetings: s.Meetings,
		calendar: s.Calendar,
		idemTTL:  idemTTL,
	}
}

// caller resolves the authenticated identity. On failure the error response
// has already been written and ok is false.
func (h *Handlers) caller(c *gin.Context) (services.Identity, bool) {
	id, err := h.identity.Resolve(c.Request.Context(), middleware.UserID(c), domain.Role(middleware.Role(c)))
	if err != nil {
		writeServiceError(c, err)
		return services.Identity{}, false
	}
	return id, true
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	p := utils.ParsePage(c.Query("page"), c.Query("page_size"))
	return p.Number, p.Size
}
