package domain

import "time"

// Idempotency records the result of a previously processed POST, keyed by
// (user_id, scope_id, idem_key). ScopeID is the resource the request targeted
// (a conversation for message sends); ResourceID is the row it produced.
type Idempotency struct {
	ID         string    `gorm:"type:varchar(36) NOT NULL;primaryKey"`
	UserID     string    `gorm:"type:varchar(64) NOT NULL;uniqueIndex:ux_user_scope_key,priority:1"`
	ScopeID    string    `gorm:"type:varchar(64) NOT NULL;uniqueIndex:ux_user_scope_key,priority:2"`
	Key        string    `gorm:"column:idem_key;type:varchar(200) NOT NULL;uniqueIndex:ux_user_scope_key,priority:3"`
	ResourceID string    `gorm:"type:varchar(64) NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
