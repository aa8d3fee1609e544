// Package services – ProfileService
//
// ProfileService turns an authenticated account id into an explicit Identity
// (account id, role, role-profile id). Every other service takes that Identity
// as a parameter; none of them reads the session on its own.
package services

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/repo"
)

// Identity is the authenticated caller as seen by the service layer.
type Identity struct {
	UserID    string      `json:"user_id"`
	Role      domain.Role `json:"role"`
	ProfileID string      `json:"profile_id"`
	Name      string      `json:"name,omitempty"`
}

// Owns reports whether the caller is the talent or business side of the pair.
func (id Identity) Owns(talentID, businessID string) bool {
	switch id.Role {
	case domain.RoleTalent:
		return id.ProfileID != "" && id.ProfileID == talentID
	case domain.RoleBusiness:
		return id.ProfileID != "" && id.ProfileID == businessID
	}
	return false
}

// ProfileService resolves identities and display names.
type ProfileService struct {
	DB *gorm.DB
	// Locale drives title-casing of display names. Defaults to English.
	Locale language.Tag
}

// Resolve loads the role profile owned by userID. When role is empty the
// talent profile is tried first, then the business profile.
func (s *ProfileService) Resolve(ctx context.Context, userID string, role domain.Role) (Identity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Identity{}, ErrAuthenticationRequired
	}
	if role != "" && !role.Valid() {
		return Identity{}, ErrAuthenticationRequired
	}

	if role == "" || role == domain.RoleTalent {
		p, err := repo.GetTalentProfileByUser(ctx, s.DB, userID)
		switch {
		case err == nil:
			return Identity{UserID: userID, Role: domain.RoleTalent, ProfileID: p.ID, Name: s.displayName(p.Name)}, nil
		case !errors.Is(err, repo.ErrNotFound):
			return Identity{}, storeErr("resolve identity", err)
		case role == domain.RoleTalent:
			return Identity{}, ErrAuthenticationRequired
		}
	}

	p, err := repo.GetBusinessProfileByUser(ctx, s.DB, userID)
	if err != nil {
		return Identity{}, notFoundOr("resolve identity", err, ErrAuthenticationRequired)
	}
	return Identity{UserID: userID, Role: domain.RoleBusiness, ProfileID: p.ID, Name: s.displayName(p.BusinessName)}, nil
}

// DisplayName returns the normalized display name of a talent or business
// profile by its profile id.
func (s *ProfileService) DisplayName(ctx context.Context, role domain.Role, profileID string) (string, error) {
	switch role {
	case domain.RoleTalent:
		p, err := repo.GetTalentProfile(ctx, s.DB, profileID)
		if err != nil {
			return "", notFoundOr("load profile", err, ErrProfileNotFound)
		}
		return s.displayName(p.Name), nil
	case domain.RoleBusiness:
		p, err := repo.GetBusinessProfile(ctx, s.DB, profileID)
		if err != nil {
			return "", notFoundOr("load profile", err, ErrProfileNotFound)
		}
		return s.displayName(p.BusinessName), nil
	}
	return "", ErrInvalidSenderType
}

// displayName collapses whitespace and title-cases names stored all in
// lowercase. Mixed-case names are kept as entered.
func (s *ProfileService) displayName(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" || name != strings.ToLower(name) {
		return name
	}
	loc := s.Locale
	if loc == language.Und {
		loc = language.English
	}
	return cases.Title(loc).String(name)
}
