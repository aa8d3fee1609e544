// Package services – ConsentService
//
// ConsentService runs the export/print permission workflow between a business
// and a talent:
//
//	pending -> approved | denied   (talent)
//	approved -> denied             (talent revokes)
//
// Every creation and transition appends a ConsentEvent in the same
// transaction as the status write. An approval may carry an expiry; it is
// compared against the clock on every read, so an approval past its expiry
// reads as expired without any background job.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConsentScopePortfolio is the only scope requested today.
const ConsentScopePortfolio = "portfolio"

// ConsentService implements the consent use cases.
type ConsentService struct {
	DB            *gorm.DB
	Gate          *AccessGate
	Conversations *ConversationService
	Notifier      Notifier

	// DefaultTTL applies to approvals that do not name their own duration.
	// Zero means approvals do not expire.
	DefaultTTL time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *ConsentService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Request asks talentID for permission on behalf of a business caller. The
// pair must pass the access gate.
func (s *ConsentService) Request(ctx context.Context, caller Identity, talentID, reason string) (*domain.ConsentRequest, error) {
	if caller.Role != domain.RoleBusiness || caller.ProfileID == "" {
		return nil, ErrNotCounterparty
	}
	return s.RequestRaw(ctx, talentID, caller.ProfileID, caller.UserID, reason)
}

// RequestRaw creates a pending consent request for the pair, records the
// request_created event and posts a system message into the pair's
// conversation. The message is best-effort; the request stands without it.
func (s *ConsentService) RequestRaw(ctx context.Context, talentID, businessID, requestedByUserID, reason string) (*domain.ConsentRequest, error) {
	tr := otel.Tracer("services/ConsentService")
	ctx, span := tr.Start(ctx, "Request",
		trace.WithAttributes(
			attribute.String("talent.id", talentID),
			attribute.String("business.id", businessID),
		),
	)
	defer span.End()

	if strings.TrimSpace(requestedByUserID) == "" {
		return nil, ErrAuthenticationRequired
	}
	if _, err := s.Gate.Require(ctx, talentID, businessID); err != nil {
		return nil, err
	}

	var why *string
	if r := strings.TrimSpace(reason); r != "" {
		why = &r
	}

	var req *domain.ConsentRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := repo.CreateConsentRequest(ctx, tx, talentID, businessID, requestedByUserID, ConsentScopePortfolio, why)
		if err != nil {
			return err
		}
		if _, err := repo.CreateConsentEvent(ctx, tx, r, domain.RoleBusiness, requestedByUserID, repo.ConsentEventRequested,
			map[string]any{"scope": r.Scope}); err != nil {
			return err
		}
		req = r
		return nil
	})
	if err != nil {
		return nil, storeErr("create consent request", err)
	}
	span.SetAttributes(attribute.String("consent.id", req.ID))

	s.postSystemMessage(ctx, req)
	notify(ctx, s.Notifier, TopicConsentRequested, req)
	return req, nil
}

// ConsentMessageBody renders the system message announcing req.
func ConsentMessageBody(req *domain.ConsentRequest) string {
	var b strings.Builder
	b.WriteString("Consent request: please approve permission to print or export your portfolio content.")
	if req.Reason != nil && *req.Reason != "" {
		fmt.Fprintf(&b, "\n\nReason: %s", *req.Reason)
	}
	fmt.Fprintf(&b, "\n\nRequest ID: %s", req.ID)
	b.WriteString("\n\nYou can approve or deny this from your talent dashboard.")
	return b.String()
}

func (s *ConsentService) postSystemMessage(ctx context.Context, req *domain.ConsentRequest) {
	if s.Conversations == nil {
		return
	}
	log := zerolog.Ctx(ctx)
	conv, err := s.Conversations.GetOrCreate(ctx, req.TalentID, req.BusinessID)
	if err != nil {
		log.Warn().Err(err).Str("consent_id", req.ID).Msg("consent system message: conversation unavailable")
		return
	}
	if _, err := repo.CreateMessage(ctx, s.DB, conv.ID, domain.RoleBusiness, req.RequestedByUserID, ConsentMessageBody(req)); err != nil {
		log.Warn().Err(err).Str("consent_id", req.ID).Msg("consent system message not written")
	}
}

// Respond approves or denies a pending request. Only the targeted talent may
// answer. An approval expires after ttl, or DefaultTTL when ttl <= 0.
func (s *ConsentService) Respond(ctx context.Context, caller Identity, requestID string, approve bool, ttl time.Duration) (*domain.ConsentRequest, error) {
	tr := otel.Tracer("services/ConsentService")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("consent.id", requestID),
			attribute.Bool("approve", approve),
		),
	)
	defer span.End()

	req, err := s.loadForTalent(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.ConsentPending {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	to, event := domain.ConsentDenied, repo.ConsentEventDenied
	var expires *time.Time
	if approve {
		to, event = domain.ConsentApproved, repo.ConsentEventApproved
		if ttl <= 0 {
			ttl = s.DefaultTTL
		}
		if ttl > 0 {
			e := now.Add(ttl)
			expires = &e
		}
	}

	meta := map[string]any{"scope": req.Scope}
	if expires != nil {
		meta["expires_at"] = expires.Format(time.RFC3339)
	}
	if err := s.transition(ctx, caller, req, domain.ConsentPending, to, now, expires, event, meta); err != nil {
		return nil, err
	}
	notify(ctx, s.Notifier, TopicConsentResponded, req)
	return req, nil
}

// Revoke withdraws an approval. The row goes back to denied; the audit trail
// keeps the earlier approval.
func (s *ConsentService) Revoke(ctx context.Context, caller Identity, requestID string) (*domain.ConsentRequest, error) {
	req, err := s.loadForTalent(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.ConsentApproved {
		return nil, ErrInvalidTransition
	}
	if err := s.transition(ctx, caller, req, domain.ConsentApproved, domain.ConsentDenied, s.now(), nil, repo.ConsentEventRevoked, nil); err != nil {
		return nil, err
	}
	notify(ctx, s.Notifier, TopicConsentResponded, req)
	return req, nil
}

func (s *ConsentService) transition(ctx context.Context, caller Identity, req *domain.ConsentRequest, from, to domain.ConsentStatus, at time.Time, expires *time.Time, event string, meta map[string]any) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.TransitionConsent(ctx, tx, req.ID, from, to, at, expires); err != nil {
			return err
		}
		_, err := repo.CreateConsentEvent(ctx, tx, req, caller.Role, caller.UserID, event, meta)
		return err
	})
	if err != nil {
		return transitionErr("update consent request", err)
	}
	req.Status, req.RespondedAt, req.ExpiresAt = to, &at, expires
	return nil
}

func (s *ConsentService) loadForTalent(ctx context.Context, caller Identity, requestID string) (*domain.ConsentRequest, error) {
	if caller.ProfileID == "" || !caller.Role.Valid() {
		return nil, ErrAuthenticationRequired
	}
	req, err := repo.GetConsentRequest(ctx, s.DB, requestID)
	if err != nil {
		return nil, notFoundOr("load consent request", err, ErrConsentNotFound)
	}
	if !caller.Owns(req.TalentID, req.BusinessID) {
		return nil, ErrNotParticipant
	}
	if caller.Role != domain.RoleTalent {
		return nil, ErrNotCounterparty
	}
	return req, nil
}

// ConsentState is the effective consent of a pair at a point in time.
type ConsentState struct {
	Status    domain.ConsentStatus   `json:"status"`
	Request   *domain.ConsentRequest `json:"request,omitempty"`
	ExpiresAt *time.Time             `json:"expires_at,omitempty"`
}

// Approved reports whether the state grants permission.
func (st ConsentState) Approved() bool { return st.Status == domain.ConsentApproved }

// Status returns the effective state of the pair's latest consent request.
// An approval whose expiry has passed reports domain.ConsentExpired. A pair
// with no request reports an empty Status.
func (s *ConsentService) Status(ctx context.Context, talentID, businessID string) (ConsentState, error) {
	req, err := repo.LatestConsentRequest(ctx, s.DB, talentID, businessID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ConsentState{}, nil
		}
		return ConsentState{}, storeErr("load consent status", err)
	}
	return ConsentState{
		Status:    req.EffectiveStatus(s.now()),
		Request:   req,
		ExpiresAt: req.ExpiresAt,
	}, nil
}

// IsApproved reports whether the pair currently holds an unexpired approval.
func (s *ConsentService) IsApproved(ctx context.Context, talentID, businessID string) (bool, error) {
	st, err := s.Status(ctx, talentID, businessID)
	if err != nil {
		return false, err
	}
	return st.Approved(), nil
}

// Events returns the audit trail of a request the caller is a party to.
func (s *ConsentService) Events(ctx context.Context, caller Identity, requestID string) ([]domain.ConsentEvent, error) {
	req, err := repo.GetConsentRequest(ctx, s.DB, requestID)
	if err != nil {
		return nil, notFoundOr("load consent request", err, ErrConsentNotFound)
	}
	if !caller.Owns(req.TalentID, req.BusinessID) {
		return nil, ErrNotParticipant
	}
	evs, err := repo.ListConsentEvents(ctx, s.DB, requestID)
	if err != nil {
		return nil, storeErr("list consent events", err)
	}
	return evs, nil
}
