// Package domain defines the persistence models for profiles, connection
// requests, conversations, messages, consent requests and meeting sessions.
// These types are mapped with GORM and form the canonical schema shared by
// the repository and service layers.
package domain

import "time"

// Role identifies which side of the marketplace an actor is on.
type Role string

const (
	RoleTalent   Role = "talent"
	RoleBusiness Role = "business"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool { return r == RoleTalent || r == RoleBusiness }

// ConnectionStatus is the lifecycle state of a ConnectionRequest.
type ConnectionStatus string

const (
	ConnectionPending      ConnectionStatus = "pending"
	ConnectionAccepted     ConnectionStatus = "accepted"
	ConnectionDeclined     ConnectionStatus = "declined"
	ConnectionDiscontinued ConnectionStatus = "discontinued"
)

// Active reports whether the status still counts against the
// one-active-request-per-pair rule.
func (s ConnectionStatus) Active() bool {
	return s == ConnectionPending || s == ConnectionAccepted
}

// ConsentStatus is the stored state of a ConsentRequest. The effective state
// additionally depends on ExpiresAt, see ConsentRequest.EffectiveStatus.
type ConsentStatus string

const (
	ConsentPending  ConsentStatus = "pending"
	ConsentApproved ConsentStatus = "approved"
	ConsentDenied   ConsentStatus = "denied"
	// ConsentExpired is never persisted; it is reported for approved rows
	// whose expiry has passed.
	ConsentExpired ConsentStatus = "expired"
)

// MeetingStatus is the lifecycle state of a MeetingSession.
type MeetingStatus string

const (
	MeetingPending   MeetingStatus = "pending"
	MeetingActive    MeetingStatus = "active"
	MeetingCancelled MeetingStatus = "cancelled"
)

// TalentProfile is the talent-side role profile of an account. Its ID is
// distinct from the account (user) ID.
type TalentProfile struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;uniqueIndex:ux_talent_user"`
	Email     string    `json:"email"      gorm:"type:varchar(255)"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null;default:''"`
	Title     string    `json:"title"      gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for TalentProfile.
func (TalentProfile) TableName() string { return "talent_profiles" }

// BusinessProfile is the business-side role profile of an account.
type BusinessProfile struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       string    `json:"user_id"       gorm:"type:varchar(64);not null;uniqueIndex:ux_business_user"`
	Email        string    `json:"email"         gorm:"type:varchar(255)"`
	BusinessName string    `json:"business_name" gorm:"type:varchar(255);not null;default:''"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for BusinessProfile.
func (BusinessProfile) TableName() string { return "business_profiles" }

// ConnectionRequest relates one talent profile to one business profile.
//
// At most one active (pending or accepted) request per pair is expected; the
// service layer refuses to create a second one, and the access gate still
// reads "latest accepted by responded_at" so duplicates created outside the
// service resolve deterministically.
type ConnectionRequest struct {
	ID             string           `json:"id"              gorm:"type:char(36);primaryKey"`
	TalentID       string           `json:"talent_id"       gorm:"type:char(36);not null;index:idx_conn_pair,priority:1"`
	BusinessID     string           `json:"business_id"     gorm:"type:char(36);not null;index:idx_conn_pair,priority:2"`
	Status         ConnectionStatus `json:"status"          gorm:"type:varchar(16);not null;index:idx_conn_pair,priority:3;check:status IN ('pending','accepted','declined','discontinued')"`
	InitiatedBy    Role             `json:"initiated_by"    gorm:"type:varchar(16);not null;check:initiated_by IN ('talent','business')"`
	RequestedAt    time.Time        `json:"requested_at"    gorm:"not null"`
	RespondedAt    *time.Time       `json:"responded_at,omitempty"`
	DiscontinuedBy *Role            `json:"discontinued_by,omitempty" gorm:"type:varchar(16)"`
}

// TableName returns the database table name for ConnectionRequest.
func (ConnectionRequest) TableName() string { return "connection_requests" }

// Counterparty returns the role that must respond to a request initiated by
// InitiatedBy.
func (c ConnectionRequest) Counterparty() Role {
	if c.InitiatedBy == RoleTalent {
		return RoleBusiness
	}
	return RoleTalent
}

// Conversation is the single message thread for a (talent, business) pair.
// The pair is unique; concurrent creators converge on one row.
type Conversation struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	TalentID   string    `json:"talent_id"   gorm:"type:char(36);not null;uniqueIndex:ux_conversation_pair,priority:1"`
	BusinessID string    `json:"business_id" gorm:"type:char(36);not null;uniqueIndex:ux_conversation_pair,priority:2"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is an append-only entry in a conversation. IDs are ULIDs so that
// (created_at, id) is a stable ordering even for equal timestamps.
type Message struct {
	ID             string    `json:"id"              gorm:"type:char(26);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	SenderType     Role      `json:"sender_type"     gorm:"type:varchar(16);not null;check:sender_type IN ('talent','business')"`
	SenderUserID   string    `json:"sender_user_id"  gorm:"type:varchar(64);not null"`
	Body           string    `json:"body"            gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_conversation_msgs,priority:2"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// ConsentRequest is a business's ask to export or print a talent's content.
// It is independent of the conversation and of messaging permission.
type ConsentRequest struct {
	ID                string        `json:"id"                   gorm:"type:char(36);primaryKey"`
	TalentID          string        `json:"talent_id"            gorm:"type:char(36);not null;index:idx_consent_pair,priority:1"`
	BusinessID        string        `json:"business_id"          gorm:"type:char(36);not null;index:idx_consent_pair,priority:2"`
	RequestedByUserID string        `json:"requested_by_user_id" gorm:"type:varchar(64);not null"`
	Reason            *string       `json:"reason,omitempty"     gorm:"type:text"`
	Scope             string        `json:"scope"                gorm:"type:varchar(32);not null;default:'portfolio'"`
	Status            ConsentStatus `json:"status"               gorm:"type:varchar(16);not null;check:status IN ('pending','approved','denied')"`
	RequestedAt       time.Time     `json:"requested_at"         gorm:"not null;index:idx_consent_pair,priority:3"`
	RespondedAt       *time.Time    `json:"responded_at,omitempty"`
	ExpiresAt         *time.Time    `json:"expires_at,omitempty"`
}

// TableName returns the database table name for ConsentRequest.
func (ConsentRequest) TableName() string { return "consent_requests" }

// EffectiveStatus returns the status as of now: an approval whose ExpiresAt
// is at or before now is reported as ConsentExpired.
func (c ConsentRequest) EffectiveStatus(now time.Time) ConsentStatus {
	if c.Status == ConsentApproved && c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return ConsentExpired
	}
	return c.Status
}

// ConsentEvent is one append-only audit entry for a consent request.
type ConsentEvent struct {
	ID          string    `json:"id"            gorm:"type:char(36);primaryKey"`
	RequestID   string    `json:"request_id"    gorm:"type:char(36);not null;index:idx_consent_events,priority:1"`
	TalentID    string    `json:"talent_id"     gorm:"type:char(36);not null"`
	BusinessID  string    `json:"business_id"   gorm:"type:char(36);not null"`
	ActorType   Role      `json:"actor_type"    gorm:"type:varchar(16);not null"`
	ActorUserID string    `json:"actor_user_id" gorm:"type:varchar(64);not null"`
	EventType   string    `json:"event_type"    gorm:"type:varchar(32);not null"`
	Meta        string    `json:"meta"          gorm:"type:text;not null;default:'{}'"`
	CreatedAt   time.Time `json:"created_at"    gorm:"index:idx_consent_events,priority:2"`

	Request ConsentRequest `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConsentEvent.
func (ConsentEvent) TableName() string { return "consent_events" }

// MeetingSession is a single scheduled meeting marker between the two
// parties of an accepted connection.
type MeetingSession struct {
	ID                  string        `json:"id"                     gorm:"type:char(36);primaryKey"`
	ConnectionRequestID string        `json:"connection_request_id"  gorm:"type:char(36);not null;index"`
	TalentID            string        `json:"talent_id"              gorm:"type:char(36);not null;index"`
	BusinessID          string        `json:"business_id"            gorm:"type:char(36);not null;index"`
	Status              MeetingStatus `json:"status"                 gorm:"type:varchar(16);not null;check:status IN ('pending','active','cancelled')"`
	InitiatedBy         Role          `json:"initiated_by"           gorm:"type:varchar(16);not null"`
	InitiatedByUserID   string        `json:"initiated_by_user_id"   gorm:"type:varchar(64);not null"`
	StartedAt           time.Time     `json:"started_at"             gorm:"not null"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`

	ConnectionRequest ConnectionRequest `json:"-" gorm:"foreignKey:ConnectionRequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MeetingSession.
func (MeetingSession) TableName() string { return "meeting_sessions" }
