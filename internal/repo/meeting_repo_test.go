package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creerlio/connect-gate/internal/domain"
)

func TestMeeting_CreateTransitionAndList(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	conn := &domain.ConnectionRequest{ID: "c1", TalentID: "t1", BusinessID: "b1", Status: domain.ConnectionAccepted, InitiatedBy: domain.RoleBusiness, RequestedAt: now, RespondedAt: &now}
	if err := db.Create(conn).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	start := now.Add(48 * time.Hour)
	m, err := CreateMeeting(ctx, db, conn, domain.RoleBusiness, "u-b", start)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.Status != domain.MeetingPending || m.TalentID != "t1" || m.BusinessID != "b1" {
		t.Fatalf("unexpected meeting: %+v", m)
	}

	list, err := ListMeetings(ctx, db, domain.RoleTalent, "t1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %+v %v", list, err)
	}

	if err := TransitionMeeting(ctx, db, m.ID, []domain.MeetingStatus{domain.MeetingPending}, domain.MeetingActive); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := TransitionMeeting(ctx, db, m.ID, []domain.MeetingStatus{domain.MeetingPending}, domain.MeetingCancelled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected stale transition to fail, got %v", err)
	}
	if err := TransitionMeeting(ctx, db, m.ID, []domain.MeetingStatus{domain.MeetingPending, domain.MeetingActive}, domain.MeetingCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, err := GetMeeting(ctx, db, m.ID)
	if err != nil || got.Status != domain.MeetingCancelled {
		t.Fatalf("get: %+v %v", got, err)
	}
	list, _ = ListMeetings(ctx, db, domain.RoleBusiness, "b1")
	if len(list) != 0 {
		t.Fatalf("cancelled meetings must not be listed, got %d", len(list))
	}
}
