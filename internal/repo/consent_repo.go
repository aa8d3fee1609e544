// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for consent
// requests and their audit events.
//
// A request row and its events are written by the caller inside one
// transaction (pass the tx as db); these helpers never open one themselves.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/domain"
)

// Consent event types recorded in consent_events.event_type.
const (
	ConsentEventRequested = "request_created"
	ConsentEventApproved  = "request_approved"
	ConsentEventDenied    = "request_denied"
	ConsentEventRevoked   = "approval_revoked"
)

// CreateConsentRequest inserts a pending request. An empty scope defaults to
// "portfolio"; a nil or blank reason is stored as NULL.
func CreateConsentRequest(ctx context.Context, db *gorm.DB, talentID, businessID, requestedBy, scope string, reason *string) (*domain.ConsentRequest, error) {
	if scope == "" {
		scope = "portfolio"
	}
	if reason != nil && *reason == "" {
		reason = nil
	}
	r := &domain.ConsentRequest{
		ID:                uuid.NewString(),
		TalentID:          talentID,
		BusinessID:        businessID,
		RequestedByUserID: requestedBy,
		Reason:            reason,
		Scope:             scope,
		Status:            domain.ConsentPending,
		RequestedAt:       time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// CreateConsentEvent appends an audit entry for req. meta is marshalled to
// JSON; nil becomes "{}".
func CreateConsentEvent(ctx context.Context, db *gorm.DB, req *domain.ConsentRequest, actor domain.Role, actorUserID, eventType string, meta map[string]any) (*domain.ConsentEvent, error) {
	raw := []byte("{}")
	if len(meta) > 0 {
		b, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	ev := &domain.ConsentEvent{
		ID:          uuid.NewString(),
		RequestID:   req.ID,
		TalentID:    req.TalentID,
		BusinessID:  req.BusinessID,
		ActorType:   actor,
		ActorUserID: actorUserID,
		EventType:   eventType,
		Meta:        string(raw),
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// GetConsentRequest fetches a consent request by id.
func GetConsentRequest(ctx context.Context, db *gorm.DB, id string) (*domain.ConsentRequest, error) {
	var r domain.ConsentRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestConsentRequest returns the most recently requested consent for the
// pair, or ErrNotFound.
func LatestConsentRequest(ctx context.Context, db *gorm.DB, talentID, businessID string) (*domain.ConsentRequest, error) {
	var rows []domain.ConsentRequest
	err := db.WithContext(ctx).
		Where("talent_id = ? AND business_id = ?", talentID, businessID).
		Order("requested_at DESC, id DESC").
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

// TransitionConsent conditionally moves a request from `from` to `to`,
// stamping responded_at and expires_at. expiresAt may be nil to clear it.
// ErrNotFound means the row is missing or no longer in `from`.
func TransitionConsent(ctx context.Context, db *gorm.DB, id string, from, to domain.ConsentStatus, at time.Time, expiresAt *time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.ConsentRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":       to,
			"responded_at": at,
			"expires_at":   expiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConsentEvents returns the audit trail of a request, oldest first.
func ListConsentEvents(ctx context.Context, db *gorm.DB, requestID string) ([]domain.ConsentEvent, error) {
	var out []domain.ConsentEvent
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
