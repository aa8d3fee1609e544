package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/repo"
)

func newConsentService(t *testing.T, now time.Time) (*ConsentService, pair) {
	t.Helper()
	db := newSvcDB(t)
	p := seedPair(t, db, "ut", "ub")
	return &ConsentService{
		DB:            db,
		Gate:          &AccessGate{DB: db},
		Conversations: NewConversationService(db, nil),
		Notifier:      &recordingNotifier{},
		DefaultTTL:    24 * time.Hour,
		Now:           fixedClock(now),
	}, p
}

func TestConsentRequest_RequiresAcceptedConnection(t *testing.T) {
	s, p := newConsentService(t, time.Now().UTC())
	seedConnection(t, s.DB, p, domain.ConnectionPending)

	_, err := s.Request(context.Background(), p.Business, p.Talent.ProfileID, "print")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if n := countRows(t, s.DB, &domain.ConsentRequest{}); n != 0 {
		t.Fatalf("no consent row expected, got %d", n)
	}
}

func TestConsentRequest_OnlyBusinessMayAsk(t *testing.T) {
	s, p := newConsentService(t, time.Now().UTC())
	if _, err := s.Request(context.Background(), p.Talent, p.Talent.ProfileID, ""); !errors.Is(err, ErrNotCounterparty) {
		t.Fatalf("expected ErrNotCounterparty, got %v", err)
	}
}

func TestConsentRequest_WritesRowEventAndSystemMessage(t *testing.T) {
	s, p := newConsentService(t, time.Now().UTC())
	seedConnection(t, s.DB, p, domain.ConnectionAccepted)
	ctx := context.Background()

	req, err := s.Request(ctx, p.Business, p.Talent.ProfileID, "  For the hiring panel  ")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Status != domain.ConsentPending || req.Scope != ConsentScopePortfolio || req.Reason == nil || *req.Reason != "For the hiring panel" {
		t.Fatalf("unexpected request: %+v", req)
	}

	evs, err := s.Events(ctx, p.Talent, req.ID)
	if err != nil || len(evs) != 1 || evs[0].EventType != repo.ConsentEventRequested || evs[0].ActorType != domain.RoleBusiness {
		t.Fatalf("events: %+v %v", evs, err)
	}

	var msgs []domain.Message
	if err := s.DB.Find(&msgs).Error; err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0].Body, req.ID) || !strings.Contains(msgs[0].Body, "Reason: For the hiring panel") {
		t.Fatalf("system message missing or malformed: %+v", msgs)
	}
}

func TestConsentRespond_ApproveExpireAndRevoke(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	s, p := newConsentService(t, now)
	seedConnection(t, s.DB, p, domain.ConnectionAccepted)
	ctx := context.Background()

	req, err := s.Request(ctx, p.Business, p.Talent.ProfileID, "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := s.Respond(ctx, p.Business, req.ID, true, 0); !errors.Is(err, ErrNotCounterparty) {
		t.Fatalf("business must not approve, got %v", err)
	}

	approved, err := s.Respond(ctx, p.Talent, req.ID, true, 2*time.Hour)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.ExpiresAt == nil || !approved.ExpiresAt.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("expiry not set from ttl: %+v", approved.ExpiresAt)
	}
	if ok, err := s.IsApproved(ctx, p.Talent.ProfileID, p.Business.ProfileID); err != nil || !ok {
		t.Fatalf("expected approved before expiry: %v %v", ok, err)
	}

	// Move the clock past the expiry: status stays "approved" in the row but
	// must read as not approved.
	s.Now = fixedClock(now.Add(3 * time.Hour))
	st, err := s.Status(ctx, p.Talent.ProfileID, p.Business.ProfileID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != domain.ConsentExpired || st.Approved() || st.Request.Status != domain.ConsentApproved {
		t.Fatalf("expected expired view of approved row, got %+v", st)
	}

	revoked, err := s.Revoke(ctx, p.Talent, req.ID)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Status != domain.ConsentDenied || revoked.ExpiresAt != nil {
		t.Fatalf("unexpected revoked row: %+v", revoked)
	}
	if _, err := s.Revoke(ctx, p.Talent, req.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	evs, err := s.Events(ctx, p.Business, req.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var kinds []string
	for _, e := range evs {
		kinds = append(kinds, e.EventType)
	}
	want := repo.ConsentEventRequested + "," + repo.ConsentEventApproved + "," + repo.ConsentEventRevoked
	if strings.Join(kinds, ",") != want {
		t.Fatalf("audit trail: got %v want %s", kinds, want)
	}
}

func TestConsentRespond_DefaultTTLAndDeny(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	s, p := newConsentService(t, now)
	seedConnection(t, s.DB, p, domain.ConnectionAccepted)
	ctx := context.Background()

	r1, _ := s.Request(ctx, p.Business, p.Talent.ProfileID, "")
	a, err := s.Respond(ctx, p.Talent, r1.ID, true, 0)
	if err != nil || a.ExpiresAt == nil || !a.ExpiresAt.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("default ttl not applied: %+v %v", a, err)
	}

	s.Now = fixedClock(now.Add(time.Minute))
	r2, _ := s.Request(ctx, p.Business, p.Talent.ProfileID, "")
	d, err := s.Respond(ctx, p.Talent, r2.ID, false, 0)
	if err != nil || d.Status != domain.ConsentDenied || d.ExpiresAt != nil {
		t.Fatalf("deny: %+v %v", d, err)
	}
	if ok, _ := s.IsApproved(ctx, p.Talent.ProfileID, p.Business.ProfileID); ok {
		t.Fatalf("latest request is denied")
	}
}

func TestConsentStatus_NoRequest(t *testing.T) {
	s, p := newConsentService(t, time.Now().UTC())
	st, err := s.Status(context.Background(), p.Talent.ProfileID, p.Business.ProfileID)
	if err != nil || st.Status != "" || st.Request != nil {
		t.Fatalf("expected empty state, got %+v %v", st, err)
	}
}

func TestConsentEvents_NotFoundAndNonParticipant(t *testing.T) {
	s, p := newConsentService(t, time.Now().UTC())
	if _, err := s.Events(context.Background(), p.Talent, "missing"); !errors.Is(err, ErrConsentNotFound) {
		t.Fatalf("expected ErrConsentNotFound, got %v", err)
	}
}
