package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// pair holds two seeded profiles and their identities.
type pair struct {
	Talent   Identity
	Business Identity
}

func seedPair(t *testing.T, db *gorm.DB, talentUser, businessUser string) pair {
	t.Helper()
	ctx := context.Background()
	tp, err := repo.CreateTalentProfile(ctx, db, talentUser, talentUser+"@example.com", "talent "+talentUser, "")
	if err != nil {
		t.Fatalf("seed talent: %v", err)
	}
	bp, err := repo.CreateBusinessProfile(ctx, db, businessUser, businessUser+"@example.com", "business "+businessUser)
	if err != nil {
		t.Fatalf("seed business: %v", err)
	}
	return pair{
		Talent:   Identity{UserID: talentUser, Role: domain.RoleTalent, ProfileID: tp.ID},
		Business: Identity{UserID: businessUser, Role: domain.RoleBusiness, ProfileID: bp.ID},
	}
}

// seedConnection inserts a connection row in the given status.
func seedConnection(t *testing.T, db *gorm.DB, p pair, status domain.ConnectionStatus) *domain.ConnectionRequest {
	t.Helper()
	now := time.Now().UTC()
	c := &domain.ConnectionRequest{
		ID:          uuid.NewString(),
		TalentID:    p.Talent.ProfileID,
		BusinessID:  p.Business.ProfileID,
		Status:      status,
		InitiatedBy: domain.RoleBusiness,
		RequestedAt: now.Add(-time.Hour),
	}
	if status != domain.ConnectionPending {
		c.RespondedAt = &now
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed connection: %v", err)
	}
	return c
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

// recordingNotifier captures published topics.
type recordingNotifier struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, topic string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return r.err
}

func (r *recordingNotifier) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }
