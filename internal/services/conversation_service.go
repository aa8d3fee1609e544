// Package services – ConversationService
//
// ConversationService maps a (talent, business) pair to its single
// conversation, creating it on first use. Creation is lookup, then insert,
// then a re-query when the insert lost a uniqueness race against the
// counterpart. No transaction is involved; the unique index on the pair is
// what makes concurrent first contact converge on one row.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConversationRepo defines the repository contract required by
// ConversationService.
type ConversationRepo interface {
	// FindConversation returns the pair's conversation or repo.ErrNotFound.
	FindConversation(ctx context.Context, db *gorm.DB, talentID, businessID string) (*domain.Conversation, error)

	// CreateConversation inserts the pair's conversation, returning
	// repo.ErrDuplicate when it already exists.
	CreateConversation(ctx context.Context, db *gorm.DB, talentID, businessID string) (*domain.Conversation, error)
}

// gormConversations adapts the repo package functions to ConversationRepo.
type gormConversations struct{}

func (gormConversations) FindConversation(ctx context.Context, db *gorm.DB, talentID, businessID string) (*domain.Conversation, error) {
	return repo.FindConversation(ctx, db, talentID, businessID)
}

func (gormConversations) CreateConversation(ctx context.Context, db *gorm.DB, talentID, businessID string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, talentID, businessID)
}

// ConversationService resolves conversations. Callers run the access gate
// first; this service does not.
type ConversationService struct {
	DB *gorm.DB
	// Repo defaults to the GORM-backed repository when nil.
	Repo ConversationRepo
}

// NewConversationService constructs a ConversationService. A nil repository
// selects the GORM-backed one.
func NewConversationService(db *gorm.DB, r ConversationRepo) *ConversationService {
	if r == nil {
		r = gormConversations{}
	}
	return &ConversationService{DB: db, Repo: r}
}

func (s *ConversationService) repo() ConversationRepo {
	if s.Repo == nil {
		return gormConversations{}
	}
	return s.Repo
}

// GetOrCreate returns the conversation for the pair, creating it if needed.
// Both sides calling this concurrently get the same row back.
func (s *ConversationService) GetOrCreate(ctx context.Context, talentID, businessID string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "GetOrCreate",
		trace.WithAttributes(
			attribute.String("talent.id", talentID),
			attribute.String("business.id", businessID),
		),
	)
	defer span.End()

	r := s.repo()

	conv, err := r.FindConversation(ctx, s.DB, talentID, businessID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, storeErr("load conversation", err)
	}

	conv, err = r.CreateConversation(ctx, s.DB, talentID, businessID)
	if err == nil {
		span.SetAttributes(attribute.Bool("conversation.created", true))
		return conv, nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		return nil, storeErr("create conversation", err)
	}

	// Lost the race: the other side inserted first.
	span.SetAttributes(attribute.Bool("conversation.refetched", true))
	conv, err = r.FindConversation(ctx, s.DB, talentID, businessID)
	if err != nil {
		return nil, storeErr("reload conversation", err)
	}
	return conv, nil
}

// Get returns the pair's conversation without creating one.
func (s *ConversationService) Get(ctx context.Context, talentID, businessID string) (*domain.Conversation, error) {
	conv, err := s.repo().FindConversation(ctx, s.DB, talentID, businessID)
	if err != nil {
		return nil, notFoundOr("load conversation", err, ErrConversationNotFound)
	}
	return conv, nil
}
