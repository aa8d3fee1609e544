package repo

import (
	"context"
	"errors"
	"testing"
)

func TestProfiles_CreateAndLookup(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	tp, err := CreateTalentProfile(ctx, db, "user-1", "t@example.com", "Tess", "Designer")
	if err != nil {
		t.Fatalf("talent: %v", err)
	}
	bp, err := CreateBusinessProfile(ctx, db, "user-2", "b@example.com", "Acme")
	if err != nil {
		t.Fatalf("business: %v", err)
	}
	if tp.ID == "user-1" || bp.ID == "user-2" {
		t.Fatalf("profile ids must differ from account ids")
	}
	if _, err := CreateTalentProfile(ctx, db, "user-1", "", "Dup", ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second talent profile, got %v", err)
	}

	if got, err := GetTalentProfileByUser(ctx, db, "user-1"); err != nil || got.ID != tp.ID {
		t.Fatalf("by user: %+v %v", got, err)
	}
	if got, err := GetBusinessProfileByUser(ctx, db, "user-2"); err != nil || got.ID != bp.ID {
		t.Fatalf("by user: %+v %v", got, err)
	}
	if _, err := GetBusinessProfileByUser(ctx, db, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got, err := GetTalentProfile(ctx, db, tp.ID); err != nil || got.Name != "Tess" {
		t.Fatalf("by id: %+v %v", got, err)
	}
	if got, err := GetBusinessProfile(ctx, db, bp.ID); err != nil || got.BusinessName != "Acme" {
		t.Fatalf("by id: %+v %v", got, err)
	}
}
