package services

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/studio-s/auth-service/internal/models"
	"github.com/studio-s/auth-service/internal/security"
	"github.com/studio-s/auth-service/internal/utils"
	"github.com/studio-s/auth-service/pkg/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserDisabled       = errors.New("user is disabled")
	// ErrInvalidToken covers malformed, mis-signed, or expired-signature
	// refresh tokens before any session lookup happens.
	ErrInvalidToken = errors.New("invalid refresh token")
	// ErrTokenMismatch means the jti resolved to a session whose stored
	// hash does not match the presented token.
	ErrTokenMismatch = errors.New("refresh token mismatch")
	// ErrReplayDetected means the presented token's session was already
	// rotated or revoked. All sessions of the user get revoked.
	ErrReplayDetected = errors.New("refresh token reuse detected")
	ErrSessionExpired = errors.New("session expired")
	// ErrRotationUnavailable is returned when the rotation outcome is
	// unknown (e.g. the conditional update timed out). The client may
	// retry with the same token.
	ErrRotationUnavailable = errors.New("rotation temporarily unavailable")
	ErrResetTokenInvalid   = errors.New("reset token is invalid or has expired")
)

const resetTokenTTL = 10 * time.Minute

// RequestMeta carries per-request client attribution recorded on
// sessions and audit events.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// TokenPair is the result of every credential or rotation exchange.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type SignupRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthService owns credential verification and the refresh-session
// lifecycle. All session state changes go through the SessionStore.
type AuthService struct {
	db     *gorm.DB
	store  SessionStore
	tokens *security.TokenProvider
	events EventQueue
}

func NewAuthService(db *gorm.DB, store SessionStore, tokens *security.TokenProvider, events EventQueue) *AuthService {
	return &AuthService{
		db:     db,
		store:  store,
		tokens: tokens,
		events: events,
	}
}

// Signup registers a user and logs them straight in.
func (s *AuthService) Signup(req *SignupRequest, meta RequestMeta) (*models.User, *TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing models.User
	err := s.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}

	role := req.Role
	if role == "" {
		role = "therapist"
	}

	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  hash,
		Name:      req.Name,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
		Active:    true,
	}
	if user.Name == "" && (user.FirstName != "" || user.LastName != "") {
		user.Name = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, nil, err
	}

	pair, err := s.issueTokenPair(&user, meta, nil)
	if err != nil {
		return nil, nil, err
	}
	return &user, pair, nil
}

// Login verifies credentials and opens a fresh session lineage.
func (s *AuthService) Login(req *LoginRequest, meta RequestMeta) (*models.User, *TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !user.Active {
		return nil, nil, ErrUserDisabled
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		return nil, nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	user.LastLogin = &now
	s.db.Model(&user).Update("last_login", now)

	pair, err := s.issueTokenPair(&user, meta, nil)
	if err != nil {
		return nil, nil, err
	}
	return &user, pair, nil
}

// Rotate exchanges a refresh token for a new token pair. The checks run
// in a fixed order so each failure mode is distinguishable: signature,
// session existence, hash match, replay, expiry. Exactly one concurrent
// caller can win the exchange; losers observe a replay.
func (s *AuthService) Rotate(refreshToken string, meta RequestMeta) (*TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	session, err := s.store.FindByID(claims.ID)
	if err != nil {
		return nil, err
	}

	hash := hashToken(refreshToken)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(session.TokenHash)) != 1 {
		s.publishEvent(&SecurityEvent{
			Kind:      models.AuditTokenMismatch,
			UserID:    session.UserID,
			SessionID: session.ID,
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
			Detail:    "presented token does not match the session hash",
		})
		return nil, ErrTokenMismatch
	}

	if session.Consumed() {
		s.handleReplay(session, meta)
		return nil, ErrReplayDetected
	}

	if !session.ExpiresAt.After(time.Now().UTC()) {
		return nil, ErrSessionExpired
	}

	var user models.User
	if err := s.db.Where("id = ?", session.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrUserDisabled
	}

	newRefresh, jti, refreshExpiresAt, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, err
	}

	successor := &models.Session{
		ID:        jti,
		UserID:    user.ID,
		TokenHash: hashToken(newRefresh),
		ExpiresAt: refreshExpiresAt,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
	}

	// Successor insert and predecessor consumption commit together so a
	// crash between them cannot strand a half-rotated lineage.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.store.Create(tx, successor); err != nil {
			return err
		}
		return s.store.MarkReplaced(tx, session.ID, successor.ID)
	})
	if err != nil {
		if errors.Is(err, ErrSessionConflict) {
			// A concurrent rotation consumed the session after our read.
			// For this caller the token was already used.
			s.handleReplay(session, meta)
			return nil, ErrReplayDetected
		}
		// The commit outcome is unknown. Do not guess; let the client
		// retry against the database's eventual truth.
		logger.Error().Err(err).Str("session_id", session.ID).Msg("rotation commit failed")
		return nil, ErrRotationUnavailable
	}

	accessToken, accessExpiresAt, err := s.tokens.IssueAccess(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     newRefresh,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// handleReplay revokes every session of the affected user. A consumed
// token resurfacing means the lineage may be in an attacker's hands and
// no descendant can be trusted.
func (s *AuthService) handleReplay(session *models.Session, meta RequestMeta) {
	n, err := s.store.RevokeAllForUser(session.UserID, time.Now().UTC())
	if err != nil {
		logger.Error().Err(err).Str("user_id", session.UserID).Msg("cascade revocation failed")
	}
	logger.Warn().
		Str("user_id", session.UserID).
		Str("session_id", session.ID).
		Int64("revoked", n).
		Msg("refresh token reuse detected, all user sessions revoked")
	s.publishEvent(&SecurityEvent{
		Kind:      models.AuditReplayDetected,
		UserID:    session.UserID,
		SessionID: session.ID,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		Detail:    "consumed refresh token presented again",
	})
}

// Logout revokes the session named by the refresh token. Invalid or
// already-dead tokens are not an error; logout is idempotent.
func (s *AuthService) Logout(refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}
	if err := s.store.Revoke(claims.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, ErrSessionConflict) {
			return nil
		}
		return err
	}
	return nil
}

// ForgotPassword issues a single-use reset token. Only its hash is
// stored. The caller always gets the same answer whether or not the
// email exists; the raw token is returned for delivery only when it
// does.
func (s *AuthService) ForgotPassword(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)
	expires := time.Now().UTC().Add(resetTokenTTL)

	if err := s.db.Model(&user).Updates(map[string]interface{}{
		"password_reset_token":   hashToken(token),
		"password_reset_expires": expires,
	}).Error; err != nil {
		return "", err
	}

	return token, nil
}

// ResetPassword consumes a reset token, sets the new password, and
// revokes every live session of the user.
func (s *AuthService) ResetPassword(token, newPassword string, meta RequestMeta) error {
	if token == "" {
		return ErrResetTokenInvalid
	}

	var user models.User
	err := s.db.Where("password_reset_token = ? AND password_reset_expires > ?",
		hashToken(token), time.Now().UTC()).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.db.Model(&user).Updates(map[string]interface{}{
		"password":               hash,
		"password_changed_at":    now,
		"password_reset_token":   "",
		"password_reset_expires": nil,
	}).Error; err != nil {
		return err
	}

	if _, err := s.store.RevokeAllForUser(user.ID, now); err != nil {
		logger.Error().Err(err).Str("user_id", user.ID).Msg("session revocation after password reset failed")
	}
	s.publishEvent(&SecurityEvent{
		Kind:      models.AuditPasswordReset,
		UserID:    user.ID,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		Detail:    "password reset via emailed token",
	})

	return nil
}

// UpdatePassword changes the password of an authenticated user, revokes
// all existing sessions, and opens a fresh one.
func (s *AuthService) UpdatePassword(userID, currentPassword, newPassword string, meta RequestMeta) (*TokenPair, error) {
	var user models.User
	if err := s.db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if !utils.CheckPassword(currentPassword, user.Password) {
		return nil, ErrInvalidCredentials
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.db.Model(&user).Updates(map[string]interface{}{
		"password":            hash,
		"password_changed_at": now,
	}).Error; err != nil {
		return nil, err
	}

	if _, err := s.store.RevokeAllForUser(user.ID, now); err != nil {
		return nil, err
	}

	return s.issueTokenPair(&user, meta, nil)
}

// GetUserByID loads the current user profile.
func (s *AuthService) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// issueTokenPair mints an access/refresh pair and persists the backing
// session under the refresh token's jti.
func (s *AuthService) issueTokenPair(user *models.User, meta RequestMeta, tx *gorm.DB) (*TokenPair, error) {
	accessToken, accessExpiresAt, err := s.tokens.IssueAccess(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	refreshToken, jti, refreshExpiresAt, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:        jti,
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: refreshExpiresAt,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
	}
	if err := s.store.Create(tx, session); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

func (s *AuthService) publishEvent(event *SecurityEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(event); err != nil {
		logger.Error().Err(err).Str("kind", event.Kind).Msg("failed to publish security event")
	}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
