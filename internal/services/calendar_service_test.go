package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creerlio/connect-gate/internal/domain"
)

func TestCalendar_MergesMeetingsAndConnections(t *testing.T) {
	db := newSvcDB(t)
	p := seedPair(t, db, "ut", "ub")
	c := seedConnection(t, db, p, domain.ConnectionAccepted)
	meetings := &MeetingService{DB: db}
	ctx := context.Background()

	soon := time.Now().Add(24 * time.Hour)
	later := soon.Add(24 * time.Hour)
	m1, err := meetings.Schedule(ctx, p.Business, c.ID, later)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	m2, err := meetings.Schedule(ctx, p.Business, c.ID, soon)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := meetings.Accept(ctx, p.Talent, m2.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	m3, _ := meetings.Schedule(ctx, p.Business, c.ID, later.Add(time.Hour))
	if _, err := meetings.Cancel(ctx, p.Business, m3.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	cal := &CalendarService{DB: db}
	evs, err := cal.Events(ctx, p.Talent, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("expected 3 events (connection, meeting, interview), got %+v", evs)
	}
	if evs[0].Kind != EventConnection || evs[1].Kind != EventMeeting || evs[2].Kind != EventInterview {
		t.Fatalf("unexpected order/kinds: %+v", evs)
	}
	if evs[2].MeetingID != m1.ID || evs[0].ConnectionID != c.ID {
		t.Fatalf("unexpected ids: %+v", evs)
	}

	window, err := cal.Events(ctx, p.Business, soon.Add(-time.Minute), soon.Add(time.Minute))
	if err != nil || len(window) != 1 || window[0].MeetingID != m2.ID {
		t.Fatalf("windowed events: %+v %v", window, err)
	}

	if _, err := cal.Events(ctx, Identity{}, time.Time{}, time.Time{}); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}
}
