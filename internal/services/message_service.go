// Package services – MessageService
//
// This file implements MessageService, which appends messages to the single
// conversation of a (talent, business) pair and lists them back. The access
// gate is re-checked immediately before every write and on every read; a
// conversation id obtained earlier is never taken as proof of permission.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include pair identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/repo"
	"github.com/creerlio/connect-gate/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxBodyRunes caps message bodies when MaxBodyRunes is unset.
const DefaultMaxBodyRunes = 4000

// MessageService coordinates message persistence behind the access gate.
type MessageService struct {
	DB            *gorm.DB
	Gate          *AccessGate
	Conversations *ConversationService
	Notifier      Notifier

	// MaxBodyRunes limits body length; <= 0 selects DefaultMaxBodyRunes.
	MaxBodyRunes int
}

// NewMessageService wires a MessageService on db with its own gate and
// conversation resolver.
func NewMessageService(db *gorm.DB, n Notifier, maxBodyRunes int) *MessageService {
	return &MessageService{
		DB:            db,
		Gate:          &AccessGate{DB: db},
		Conversations: NewConversationService(db, nil),
		Notifier:      n,
		MaxBodyRunes:  maxBodyRunes,
	}
}

// MaxRunes returns the effective body limit.
func (s *MessageService) MaxRunes() int {
	if s.MaxBodyRunes > 0 {
		return s.MaxBodyRunes
	}
	return DefaultMaxBodyRunes
}

// NormalizeBody converts CRLF/CR to LF and trims surrounding whitespace.
func NormalizeBody(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// Send appends a message on behalf of caller, who must own one side of the
// pair. Sender type and sender user id come from the caller identity.
func (s *MessageService) Send(ctx context.Context, caller Identity, talentID, businessID, body string) (*domain.Message, error) {
	if caller.UserID == "" || !caller.Role.Valid() {
		return nil, ErrAuthenticationRequired
	}
	if !caller.Owns(talentID, businessID) {
		return nil, ErrNotParticipant
	}
	return s.SendRaw(ctx, talentID, businessID, caller.Role, caller.UserID, body)
}

// SendRaw validates body, re-checks the access gate, resolves the pair's
// conversation and appends exactly one message. When the gate denies, nothing
// is written: neither the conversation nor the message.
func (s *MessageService) SendRaw(ctx context.Context, talentID, businessID string, senderType domain.Role, senderUserID, body string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("talent.id", talentID),
			attribute.String("business.id", businessID),
			attribute.String("sender.type", string(senderType)),
		),
	)
	defer span.End()

	if !senderType.Valid() {
		return nil, ErrInvalidSenderType
	}
	if strings.TrimSpace(senderUserID) == "" {
		return nil, ErrAuthenticationRequired
	}
	body = NormalizeBody(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	if utf8.RuneCountInString(body) > s.MaxRunes() {
		return nil, ErrBodyTooLong
	}

	if _, err := s.Gate.Require(ctx, talentID, businessID); err != nil {
		span.SetAttributes(attribute.Bool("access.allowed", false))
		return nil, err
	}

	conv, err := s.Conversations.GetOrCreate(ctx, talentID, businessID)
	if err != nil {
		return nil, err
	}

	m, err := repo.CreateMessage(ctx, s.DB, conv.ID, senderType, senderUserID, body)
	if err != nil {
		return nil, storeErr("send message", err)
	}
	span.SetAttributes(attribute.String("message.id", m.ID), attribute.String("conversation.id", conv.ID))

	notify(ctx, s.Notifier, TopicMessageSent, map[string]any{
		"message_id":      m.ID,
		"conversation_id": conv.ID,
		"talent_id":       talentID,
		"business_id":     businessID,
		"sender_type":     senderType,
		"sender_user_id":  senderUserID,
	})
	return m, nil
}

// MessagePage is one page of a pair's conversation.
type MessagePage struct {
	ConversationID string
	Items          []domain.Message
	Total          int64
}

// List returns a page of the pair's messages ordered (created_at, id)
// ascending. The gate is checked on every call. A pair that has not
// exchanged any message yet yields an empty page.
func (s *MessageService) List(ctx context.Context, caller Identity, talentID, businessID string, page, pageSize int) (MessagePage, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("talent.id", talentID),
			attribute.String("business.id", businessID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if !caller.Owns(talentID, businessID) {
		return MessagePage{}, ErrNotParticipant
	}
	pg := utils.NewPage(page, pageSize)

	if _, err := s.Gate.Require(ctx, talentID, businessID); err != nil {
		return MessagePage{}, err
	}

	conv, err := s.Conversations.Get(ctx, talentID, businessID)
	if errors.Is(err, ErrConversationNotFound) {
		return MessagePage{Items: []domain.Message{}}, nil
	}
	if err != nil {
		return MessagePage{}, err
	}

	total, err := repo.CountMessages(ctx, s.DB, conv.ID)
	if err != nil {
		return MessagePage{}, storeErr("count messages", err)
	}
	out := MessagePage{ConversationID: conv.ID, Total: total, Items: []domain.Message{}}
	if total == 0 {
		return out, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, conv.ID, pg.Offset(), pg.Size)
	if err != nil {
		return MessagePage{}, storeErr("list messages", err)
	}
	out.Items = items
	return out, nil
}

// Stats reports the message count and latest created_at of a pair's
// conversation, for conditional GETs. It does not run the gate; callers use
// it only alongside List.
func (s *MessageService) Stats(ctx context.Context, talentID, businessID string) (count int64, latest *time.Time, err error) {
	conv, err := s.Conversations.Get(ctx, talentID, businessID)
	if errors.Is(err, ErrConversationNotFound) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return repo.MessagesStats(ctx, s.DB, conv.ID)
}

// Replay returns the message recorded for an earlier send with the same
// idempotency key, if any.
func (s *MessageService) Replay(ctx context.Context, userID, scopeID, key string) (*domain.Message, bool) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, scopeID, key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil, false
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.ResourceID)
	if err != nil {
		return nil, false
	}
	return m, true
}

// Remember records the outcome of a send under an idempotency key. A
// concurrent duplicate is not an error.
func (s *MessageService) Remember(ctx context.Context, userID, scopeID, key, messageID string, status int, ttl time.Duration) error {
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, scopeID, key, messageID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
