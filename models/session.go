package models

import (
	"time"
)

// Session represents an opaque server-side session token.
// Tokens are random and carry no claims; everything about the caller is
// looked up from this row on each request.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"token"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
	Role      string    `gorm:"not null" json:"role"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the Session model
func (Session) TableName() string {
	return "sessions"
}

// Expired reports whether the session is past its expiry time
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}
