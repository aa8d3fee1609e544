// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for talent and
// business role profiles.
//
// An account (user id) owns at most one profile of each kind; the unique
// index on user_id enforces that per table. Lookups by account id are how the
// service layer turns an authenticated session into an explicit identity.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/domain"
)

// CreateTalentProfile inserts a talent profile for userID.
func CreateTalentProfile(ctx context.Context, db *gorm.DB, userID, email, name, title string) (*domain.TalentProfile, error) {
	now := time.Now().UTC()
	p := &domain.TalentProfile{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		Name:      name,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// CreateBusinessProfile inserts a business profile for userID.
func CreateBusinessProfile(ctx context.Context, db *gorm.DB, userID, email, businessName string) (*domain.BusinessProfile, error) {
	now := time.Now().UTC()
	p := &domain.BusinessProfile{
		ID:           uuid.NewString(),
		UserID:       userID,
		Email:        email,
		BusinessName: businessName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// GetTalentProfileByUser returns the talent profile owned by userID, or
// ErrNotFound.
func GetTalentProfileByUser(ctx context.Context, db *gorm.DB, userID string) (*domain.TalentProfile, error) {
	var p domain.TalentProfile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetBusinessProfileByUser returns the business profile owned by userID, or
// ErrNotFound.
func GetBusinessProfileByUser(ctx context.Context, db *gorm.DB, userID string) (*domain.BusinessProfile, error) {
	var p domain.BusinessProfile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetTalentProfile fetches a talent profile by its profile id.
func GetTalentProfile(ctx context.Context, db *gorm.DB, id string) (*domain.TalentProfile, error) {
	var p domain.TalentProfile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetBusinessProfile fetches a business profile by its profile id.
func GetBusinessProfile(ctx context.Context, db *gorm.DB, id string) (*domain.BusinessProfile, error) {
	var p domain.BusinessProfile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
