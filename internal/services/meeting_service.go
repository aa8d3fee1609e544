// Package services – MeetingService
//
// A meeting is a single scheduled marker on an accepted connection:
//
//	pending -> active     (counterpart accepts)
//	pending -> cancelled  (counterpart declines)
//	pending|active -> cancelled (initiator cancels)
//
// There are no reminders, recurrence or conflict checks.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MeetingService implements meeting scheduling.
type MeetingService struct {
	DB       *gorm.DB
	Notifier Notifier
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *MeetingService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Schedule proposes a meeting at startAt on an accepted connection the caller
// is a party to. startAt must be strictly after the current time; that is
// checked before anything is read or written.
func (s *MeetingService) Schedule(ctx context.Context, caller Identity, connectionRequestID string, startAt time.Time) (*domain.MeetingSession, error) {
	tr := otel.Tracer("services/MeetingService")
	ctx, span := tr.Start(ctx, "Schedule",
		trace.WithAttributes(
			attribute.String("connection.id", connectionRequestID),
			attribute.String("meeting.start_at", startAt.UTC().Format(time.RFC3339)),
		),
	)
	defer span.End()

	if caller.ProfileID == "" || !caller.Role.Valid() {
		return nil, ErrAuthenticationRequired
	}
	if !startAt.After(s.now()) {
		return nil, ErrMeetingInPast
	}

	conn, err := repo.GetConnectionRequest(ctx, s.DB, connectionRequestID)
	if err != nil {
		return nil, notFoundOr("load connection", err, ErrConnectionNotFound)
	}
	if !caller.Owns(conn.TalentID, conn.BusinessID) {
		return nil, ErrNotParticipant
	}
	if conn.Status != domain.ConnectionAccepted {
		return nil, ErrAccessDenied
	}

	m, err := repo.CreateMeeting(ctx, s.DB, conn, caller.Role, caller.UserID, startAt)
	if err != nil {
		return nil, storeErr("create meeting", err)
	}
	notify(ctx, s.Notifier, TopicMeetingChanged, m)
	return m, nil
}

// Accept moves a pending meeting to active. Only the counterpart of the
// initiator may accept.
func (s *MeetingService) Accept(ctx context.Context, caller Identity, meetingID string) (*domain.MeetingSession, error) {
	return s.respond(ctx, caller, meetingID, domain.MeetingActive)
}

// Decline cancels a pending meeting on behalf of the counterpart.
func (s *MeetingService) Decline(ctx context.Context, caller Identity, meetingID string) (*domain.MeetingSession, error) {
	return s.respond(ctx, caller, meetingID, domain.MeetingCancelled)
}

func (s *MeetingService) respond(ctx context.Context, caller Identity, meetingID string, to domain.MeetingStatus) (*domain.MeetingSession, error) {
	m, err := s.load(ctx, caller, meetingID)
	if err != nil {
		return nil, err
	}
	if caller.Role == m.InitiatedBy {
		return nil, ErrNotCounterparty
	}
	if m.Status != domain.MeetingPending {
		return nil, ErrInvalidTransition
	}
	if err := repo.TransitionMeeting(ctx, s.DB, m.ID, []domain.MeetingStatus{domain.MeetingPending}, to); err != nil {
		return nil, transitionErr("update meeting", err)
	}
	m.Status = to
	notify(ctx, s.Notifier, TopicMeetingChanged, m)
	return m, nil
}

// Cancel withdraws a pending or active meeting. Only the initiator may cancel.
func (s *MeetingService) Cancel(ctx context.Context, caller Identity, meetingID string) (*domain.MeetingSession, error) {
	m, err := s.load(ctx, caller, meetingID)
	if err != nil {
		return nil, err
	}
	if caller.Role != m.InitiatedBy {
		return nil, ErrNotCounterparty
	}
	if m.Status == domain.MeetingCancelled {
		return nil, ErrInvalidTransition
	}
	from := []domain.MeetingStatus{domain.MeetingPending, domain.MeetingActive}
	if err := repo.TransitionMeeting(ctx, s.DB, m.ID, from, domain.MeetingCancelled); err != nil {
		return nil, transitionErr("cancel meeting", err)
	}
	m.Status = domain.MeetingCancelled
	notify(ctx, s.Notifier, TopicMeetingChanged, m)
	return m, nil
}

func (s *MeetingService) load(ctx context.Context, caller Identity, meetingID string) (*domain.MeetingSession, error) {
	if caller.ProfileID == "" || !caller.Role.Valid() {
		return nil, ErrAuthenticationRequired
	}
	m, err := repo.GetMeeting(ctx, s.DB, meetingID)
	if err != nil {
		return nil, notFoundOr("load meeting", err, ErrMeetingNotFound)
	}
	if !caller.Owns(m.TalentID, m.BusinessID) {
		return nil, ErrNotParticipant
	}
	return m, nil
}
