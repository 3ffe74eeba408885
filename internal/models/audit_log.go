package models

import "time"

// Security event kinds recorded by the audit pipeline.
const (
	AuditReplayDetected = "replay_detected"
	AuditTokenMismatch  = "token_mismatch"
	AuditSessionsPurged = "sessions_purged"
	AuditPasswordReset  = "password_reset"
)

// AuditLog records a security-relevant event with requester metadata.
// Rows are written by the security-event worker, never on the request
// path directly.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Kind      string    `gorm:"size:50;index;not null" json:"kind"`
	UserID    string    `gorm:"size:36;index" json:"user_id,omitempty"`
	SessionID string    `gorm:"size:36;index" json:"session_id,omitempty"`
	ClientIP  string    `gorm:"size:64" json:"client_ip,omitempty"`
	UserAgent string    `gorm:"size:255" json:"user_agent,omitempty"`
	Detail    string    `gorm:"size:500" json:"detail,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
