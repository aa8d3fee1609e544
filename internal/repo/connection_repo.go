// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ConnectionRequest model.
//
// Status changes are conditional updates ("... WHERE id = ? AND status = ?")
// so that two sessions racing on the same row cannot both win: the loser sees
// zero affected rows and gets ErrNotFound, which the service layer reports as
// an invalid transition.
//
// Functions:
//
//   - CreateConnectionRequest(ctx, db, talentID, businessID, initiatedBy)
//   - GetConnectionRequest(ctx, db, id)
//   - FindActiveConnection(ctx, db, talentID, businessID)
//   - LatestAcceptedConnection(ctx, db, talentID, businessID)
//   - TransitionConnection(ctx, db, id, from, to, at, by)
//   - CountConnections / ListConnectionsPage(ctx, db, role, profileID, status, ...)
//   - ListAcceptedConnections(ctx, db, role, profileID)
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/domain"
)

// CreateConnectionRequest inserts a new pending request for the pair.
func CreateConnectionRequest(ctx context.Context, db *gorm.DB, talentID, businessID string, initiatedBy domain.Role) (*domain.ConnectionRequest, error) {
	c := &domain.ConnectionRequest{
		ID:          uuid.NewString(),
		TalentID:    talentID,
		BusinessID:  businessID,
		Status:      domain.ConnectionPending,
		InitiatedBy: initiatedBy,
		RequestedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, translate(err)
	}
	return c, nil
}

// GetConnectionRequest fetches a request by id, or ErrNotFound.
func GetConnectionRequest(ctx context.Context, db *gorm.DB, id string) (*domain.ConnectionRequest, error) {
	var c domain.ConnectionRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindActiveConnection returns the most recent pending or accepted request
// for the pair, or ErrNotFound when the pair has none.
func FindActiveConnection(ctx context.Context, db *gorm.DB, talentID, businessID string) (*domain.ConnectionRequest, error) {
	var c domain.ConnectionRequest
	err := db.WithContext(ctx).
		Where("talent_id = ? AND business_id = ? AND status IN ?", talentID, businessID,
			[]domain.ConnectionStatus{domain.ConnectionPending, domain.ConnectionAccepted}).
		Order("requested_at DESC, id DESC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// LatestAcceptedConnection is the access-gate query: the accepted request for
// the pair with the most recent responded_at. It returns ErrNotFound when no
// accepted request exists.
func LatestAcceptedConnection(ctx context.Context, db *gorm.DB, talentID, businessID string) (*domain.ConnectionRequest, error) {
	var rows []domain.ConnectionRequest
	err := db.WithContext(ctx).
		Where("talent_id = ? AND business_id = ? AND status = ?", talentID, businessID, domain.ConnectionAccepted).
		Order("responded_at DESC, id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// TransitionConnection moves request id from status `from` to `to`, stamping
// responded_at (when at is non-nil) and discontinued_by (when by is non-nil).
// It returns ErrNotFound when the row does not exist or is no longer in
// `from`.
func TransitionConnection(ctx context.Context, db *gorm.DB, id string, from, to domain.ConnectionStatus, at *time.Time, by *domain.Role) error {
	updates := map[string]any{"status": to}
	if at != nil {
		updates["responded_at"] = *at
	}
	if by != nil {
		updates["discontinued_by"] = *by
	}
	res := db.WithContext(ctx).
		Model(&domain.ConnectionRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// partyColumn returns the column holding the profile id for role.
func partyColumn(role domain.Role) string {
	if role == domain.RoleBusiness {
		return "business_id"
	}
	return "talent_id"
}

func connectionsQuery(ctx context.Context, db *gorm.DB, role domain.Role, profileID string, status domain.ConnectionStatus) *gorm.DB {
	q := db.WithContext(ctx).
		Model(&domain.ConnectionRequest{}).
		Where(partyColumn(role)+" = ?", profileID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return q
}

// CountConnections returns how many requests involve the profile, optionally
// filtered by status.
func CountConnections(ctx context.Context, db *gorm.DB, role domain.Role, profileID string, status domain.ConnectionStatus) (int64, error) {
	var total int64
	err := connectionsQuery(ctx, db, role, profileID, status).Count(&total).Error
	return total, err
}

// ListConnectionsPage returns a page of requests involving the profile,
// newest first.
func ListConnectionsPage(ctx context.Context, db *gorm.DB, role domain.Role, profileID string, status domain.ConnectionStatus, offset, limit int) ([]domain.ConnectionRequest, error) {
	var out []domain.ConnectionRequest
	err := connectionsQuery(ctx, db, role, profileID, status).
		Order("requested_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListAcceptedConnections returns every accepted request involving the
// profile, ordered by responded_at.
func ListAcceptedConnections(ctx context.Context, db *gorm.DB, role domain.Role, profileID string) ([]domain.ConnectionRequest, error) {
	var out []domain.ConnectionRequest
	err := connectionsQuery(ctx, db, role, profileID, domain.ConnectionAccepted).
		Order("responded_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
