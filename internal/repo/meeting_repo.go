// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// MeetingSession model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/domain"
)

// CreateMeeting inserts a pending meeting session tied to an accepted
// connection request.
func CreateMeeting(ctx context.Context, db *gorm.DB, conn *domain.ConnectionRequest, initiatedBy domain.Role, initiatedByUserID string, startAt time.Time) (*domain.MeetingSession, error) {
	now := time.Now().UTC()
	m := &domain.MeetingSession{
		ID:                  uuid.NewString(),
		ConnectionRequestID: conn.ID,
		TalentID:            conn.TalentID,
		BusinessID:          conn.BusinessID,
		Status:              domain.MeetingPending,
		InitiatedBy:         initiatedBy,
		InitiatedByUserID:   initiatedByUserID,
		StartedAt:           startAt.UTC(),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMeeting fetches a meeting session by id.
func GetMeeting(ctx context.Context, db *gorm.DB, id string) (*domain.MeetingSession, error) {
	var m domain.MeetingSession
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// TransitionMeeting conditionally moves a meeting out of one of the `from`
// states. ErrNotFound means the row is missing or in none of them.
func TransitionMeeting(ctx context.Context, db *gorm.DB, id string, from []domain.MeetingStatus, to domain.MeetingStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.MeetingSession{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMeetings returns the non-cancelled meetings involving a profile,
// ordered by start time.
func ListMeetings(ctx context.Context, db *gorm.DB, role domain.Role, profileID string) ([]domain.MeetingSession, error) {
	var out []domain.MeetingSession
	err := db.WithContext(ctx).
		Where(partyColumn(role)+" = ?", profileID).
		Where("status IN ?", []domain.MeetingStatus{domain.MeetingPending, domain.MeetingActive}).
		Order("started_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
