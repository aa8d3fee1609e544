// Package services – ConnectionService
//
// ConnectionService owns the ConnectionRequest lifecycle:
//
//	pending  -> accepted | declined      (counterparty only)
//	accepted -> discontinued             (either party, terminal)
//
// A discontinued pair reconnects by opening a new pending request; the old
// row is never revived. At most one active (pending or accepted) request per
// pair is allowed; the check runs here rather than in the schema.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/repo"
	"github.com/creerlio/connect-gate/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConnectionService implements the connection-request use cases.
type ConnectionService struct {
	DB       *gorm.DB
	Notifier Notifier
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *ConnectionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Request opens a pending request from caller to counterpartID, a profile id
// of the opposite role.
func (s *ConnectionService) Request(ctx context.Context, caller Identity, counterpartID string) (*domain.ConnectionRequest, error) {
	tr := otel.Tracer("services/ConnectionService")
	ctx, span := tr.Start(ctx, "Request",
		trace.WithAttributes(
			attribute.String("caller.role", string(caller.Role)),
			attribute.String("counterpart.id", counterpartID),
		),
	)
	defer span.End()

	if caller.ProfileID == "" || !caller.Role.Valid() {
		return nil, ErrAuthenticationRequired
	}
	counterpartID = strings.TrimSpace(counterpartID)
	if counterpartID == "" || counterpartID == caller.ProfileID {
		return nil, ErrSelfConnection
	}

	talentID, businessID := caller.ProfileID, counterpartID
	if caller.Role == domain.RoleBusiness {
		talentID, businessID = counterpartID, caller.ProfileID
		if _, err := repo.GetTalentProfile(ctx, s.DB, talentID); err != nil {
			return nil, notFoundOr("load counterpart", err, ErrProfileNotFound)
		}
	} else if _, err := repo.GetBusinessProfile(ctx, s.DB, businessID); err != nil {
		return nil, notFoundOr("load counterpart", err, ErrProfileNotFound)
	}

	return s.open(ctx, talentID, businessID, caller.Role)
}

// open creates a pending request unless the pair already has an active one.
func (s *ConnectionService) open(ctx context.Context, talentID, businessID string, initiatedBy domain.Role) (*domain.ConnectionRequest, error) {
	if _, err := repo.FindActiveConnection(ctx, s.DB, talentID, businessID); err == nil {
		return nil, ErrConnectionExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, storeErr("find active connection", err)
	}

	c, err := repo.CreateConnectionRequest(ctx, s.DB, talentID, businessID, initiatedBy)
	if err != nil {
		return nil, storeErr("create connection", err)
	}
	notify(ctx, s.Notifier, TopicConnectionChanged, c)
	return c, nil
}

// Respond accepts or declines a pending request. Only the counterparty of
// the initiator may answer.
func (s *ConnectionService) Respond(ctx context.Context, caller Identity, requestID string, accept bool) (*domain.ConnectionRequest, error) {
	tr := otel.Tracer("services/ConnectionService")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("connection.id", requestID),
			attribute.Bool("accept", accept),
		),
	)
	defer span.End()

	c, err := s.load(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	if caller.Role != c.Counterparty() {
		return nil, ErrNotCounterparty
	}
	if c.Status != domain.ConnectionPending {
		return nil, ErrInvalidTransition
	}

	to := domain.ConnectionDeclined
	if accept {
		to = domain.ConnectionAccepted
	}
	at := s.now()
	if err := repo.TransitionConnection(ctx, s.DB, c.ID, domain.ConnectionPending, to, &at, nil); err != nil {
		return nil, transitionErr("respond to connection", err)
	}
	c.Status, c.RespondedAt = to, &at
	notify(ctx, s.Notifier, TopicConnectionChanged, c)
	return c, nil
}

// Discontinue ends an accepted connection. Either party may do it; the row
// becomes terminal and the access gate denies from then on.
func (s *ConnectionService) Discontinue(ctx context.Context, caller Identity, requestID string) (*domain.ConnectionRequest, error) {
	tr := otel.Tracer("services/ConnectionService")
	ctx, span := tr.Start(ctx, "Discontinue",
		trace.WithAttributes(attribute.String("connection.id", requestID)),
	)
	defer span.End()

	c, err := s.load(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ConnectionAccepted {
		return nil, ErrInvalidTransition
	}
	by := caller.Role
	if err := repo.TransitionConnection(ctx, s.DB, c.ID, domain.ConnectionAccepted, domain.ConnectionDiscontinued, nil, &by); err != nil {
		return nil, transitionErr("discontinue connection", err)
	}
	c.Status, c.DiscontinuedBy = domain.ConnectionDiscontinued, &by
	notify(ctx, s.Notifier, TopicConnectionChanged, c)
	return c, nil
}

// Reconnect opens a new pending request for the pair of a discontinued
// request, initiated by caller.
func (s *ConnectionService) Reconnect(ctx context.Context, caller Identity, requestID string) (*domain.ConnectionRequest, error) {
	c, err := s.load(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ConnectionDiscontinued {
		return nil, ErrInvalidTransition
	}
	return s.open(ctx, c.TalentID, c.BusinessID, caller.Role)
}

// ConnectionPage is one page of a caller's connection requests.
type ConnectionPage struct {
	Items []domain.ConnectionRequest
	Total int64
}

// List returns the caller's requests, newest first, optionally filtered by
// status.
func (s *ConnectionService) List(ctx context.Context, caller Identity, status domain.ConnectionStatus, page, pageSize int) (ConnectionPage, error) {
	if caller.ProfileID == "" || !caller.Role.Valid() {
		return ConnectionPage{}, ErrAuthenticationRequired
	}
	switch status {
	case "", domain.ConnectionPending, domain.ConnectionAccepted, domain.ConnectionDeclined, domain.ConnectionDiscontinued:
	default:
		return ConnectionPage{}, ErrInvalidStatus
	}
	pg := utils.NewPage(page, pageSize)

	total, err := repo.CountConnections(ctx, s.DB, caller.Role, caller.ProfileID, status)
	if err != nil {
		return ConnectionPage{}, storeErr("count connections", err)
	}
	if total == 0 {
		return ConnectionPage{Items: []domain.ConnectionRequest{}}, nil
	}
	items, err := repo.ListConnectionsPage(ctx, s.DB, caller.Role, caller.ProfileID, status, pg.Offset(), pg.Size)
	if err != nil {
		return ConnectionPage{}, storeErr("list connections", err)
	}
	return ConnectionPage{Items: items, Total: total}, nil
}

// LatestAccepted returns the pair's accepted request with the most recent
// responded_at, or ErrConnectionNotFound.
func (s *ConnectionService) LatestAccepted(ctx context.Context, talentID, businessID string) (*domain.ConnectionRequest, error) {
	c, err := repo.LatestAcceptedConnection(ctx, s.DB, talentID, businessID)
	if err != nil {
		return nil, notFoundOr("load accepted connection", err, ErrConnectionNotFound)
	}
	return c, nil
}

// load fetches a request the caller is a party to.
func (s *ConnectionService) load(ctx context.Context, caller Identity, requestID string) (*domain.ConnectionRequest, error) {
	if caller.ProfileID == "" || !caller.Role.Valid() {
		return nil, ErrAuthenticationRequired
	}
	c, err := repo.GetConnectionRequest(ctx, s.DB, requestID)
	if err != nil {
		return nil, notFoundOr("load connection", err, ErrConnectionNotFound)
	}
	if !caller.Owns(c.TalentID, c.BusinessID) {
		return nil, ErrNotParticipant
	}
	return c, nil
}

// transitionErr maps a lost conditional update to ErrInvalidTransition.
func transitionErr(op string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrInvalidTransition
	}
	return storeErr(op, err)
}
