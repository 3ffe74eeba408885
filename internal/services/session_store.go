package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/studio-s/auth-service/internal/models"
)

var (
	// ErrSessionNotFound is returned when no session exists for a jti.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionConflict is returned when a conditional update matched
	// zero rows because another request consumed the session first.
	ErrSessionConflict = errors.New("session already consumed")
)

// SessionStore persists refresh-session lineage. Implementations must
// make MarkReplaced atomic: for any session exactly one caller may win.
type SessionStore interface {
	Create(tx *gorm.DB, session *models.Session) error
	// FindByID returns the session regardless of expiry or revocation
	// state so callers can distinguish expired from missing.
	FindByID(id string) (*models.Session, error)
	// MarkReplaced links session id to its successor if and only if the
	// session is still unconsumed. Returns ErrSessionConflict when a
	// concurrent rotation or revocation got there first.
	MarkReplaced(tx *gorm.DB, id, successorID string) error
	Revoke(id string, at time.Time) error
	// RevokeAllForUser revokes every live session of the user and
	// returns how many were affected.
	RevokeAllForUser(userID string, at time.Time) (int64, error)
	DeleteExpired(before time.Time) (int64, error)
}

// GormSessionStore implements SessionStore on a relational database.
type GormSessionStore struct {
	db *gorm.DB
}

func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

// DB exposes the underlying handle so callers can open transactions
// spanning the store.
func (s *GormSessionStore) DB() *gorm.DB { return s.db }

func (s *GormSessionStore) Create(tx *gorm.DB, session *models.Session) error {
	if tx == nil {
		tx = s.db
	}
	return tx.Create(session).Error
}

func (s *GormSessionStore) FindByID(id string) (*models.Session, error) {
	var session models.Session
	if err := s.db.Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *GormSessionStore) MarkReplaced(tx *gorm.DB, id, successorID string) error {
	if tx == nil {
		tx = s.db
	}
	res := tx.Model(&models.Session{}).
		Where("id = ? AND replaced_by IS NULL AND revoked_at IS NULL", id).
		Update("replaced_by", successorID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionConflict
	}
	return nil
}

func (s *GormSessionStore) Revoke(id string, at time.Time) error {
	res := s.db.Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionConflict
	}
	return nil
}

func (s *GormSessionStore) RevokeAllForUser(userID string, at time.Time) (int64, error) {
	res := s.db.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", at)
	return res.RowsAffected, res.Error
}

func (s *GormSessionStore) DeleteExpired(before time.Time) (int64, error) {
	res := s.db.Where("expires_at < ?", before).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}
