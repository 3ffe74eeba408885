package models

import "time"

// Session anchors one refresh-token lineage. The primary key equals the
// jti claim embedded in the refresh token. A session is usable for
// rotation only while RevokedAt, ReplacedBy are unset and ExpiresAt is in
// the future; both markers are monotonic and never cleared once written.
type Session struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	UserID     string     `gorm:"index;size:36;not null" json:"user_id"`
	TokenHash  string     `gorm:"size:64;not null" json:"-"` // sha256 hex of the raw refresh token
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `gorm:"index;not null" json:"expires_at"`
	ReplacedBy *string    `gorm:"uniqueIndex;size:36" json:"replaced_by,omitempty"`
	RevokedAt  *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	ClientIP   string     `gorm:"size:64" json:"client_ip,omitempty"`
	UserAgent  string     `gorm:"size:255" json:"user_agent,omitempty"`
}

func (Session) TableName() string { return "sessions" }

// Usable reports whether the session may still be exchanged for a new
// token pair at the given instant.
func (s *Session) Usable(now time.Time) bool {
	return s.RevokedAt == nil && s.ReplacedBy == nil && s.ExpiresAt.After(now)
}

// Consumed reports whether the session was already rotated or revoked.
// Presenting a refresh token for a consumed session is a replay.
func (s *Session) Consumed() bool {
	return s.RevokedAt != nil || s.ReplacedBy != nil
}
