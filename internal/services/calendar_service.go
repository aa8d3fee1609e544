package services

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/repo"
)

// Calendar event kinds.
const (
	EventInterview  = "interview"  // pending meeting
	EventMeeting    = "meeting"    // active meeting
	EventConnection = "connection" // accepted connection, dated at responded_at
)

// CalendarEvent is one entry of the merged calendar.
type CalendarEvent struct {
	Kind         string    `json:"kind"`
	At           time.Time `json:"at"`
	TalentID     string    `json:"talent_id"`
	BusinessID   string    `json:"business_id"`
	ConnectionID string    `json:"connection_id"`
	MeetingID    string    `json:"meeting_id,omitempty"`
}

// CalendarService merges meetings and connection milestones for one caller.
type CalendarService struct {
	DB *gorm.DB
}

// Events returns the caller's pending and active meetings plus accepted
// connections, sorted by date. Zero from/to leave that side open; both bounds
// are inclusive.
func (s *CalendarService) Events(ctx context.Context, caller Identity, from, to time.Time) ([]CalendarEvent, error) {
	if caller.ProfileID == "" || !caller.Role.Valid() {
		return nil, ErrAuthenticationRequired
	}

	meetings, err := repo.ListMeetings(ctx, s.DB, caller.Role, caller.ProfileID)
	if err != nil {
		return nil, storeErr("list meetings", err)
	}
	conns, err := repo.ListAcceptedConnections(ctx, s.DB, caller.Role, caller.ProfileID)
	if err != nil {
		return nil, storeErr("list connections", err)
	}

	in := func(t time.Time) bool {
		return (from.IsZero() || !t.Before(from)) && (to.IsZero() || !t.After(to))
	}

	out := make([]CalendarEvent, 0, len(meetings)+len(conns))
	for _, m := range meetings {
		if !in(m.StartedAt) {
			continue
		}
		kind := EventInterview
		if m.Status == domain.MeetingActive {
			kind = EventMeeting
		}
		out = append(out, CalendarEvent{
			Kind:         kind,
			At:           m.StartedAt,
			TalentID:     m.TalentID,
			BusinessID:   m.BusinessID,
			ConnectionID: m.ConnectionRequestID,
			MeetingID:    m.ID,
		})
	}
	for _, c := range conns {
		if c.RespondedAt == nil || !in(*c.RespondedAt) {
			continue
		}
		out = append(out, CalendarEvent{
			Kind:         EventConnection,
			At:           *c.RespondedAt,
			TalentID:     c.TalentID,
			BusinessID:   c.BusinessID,
			ConnectionID: c.ID,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}
