package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studio-s/auth-service/internal/config"
	"github.com/studio-s/auth-service/internal/middleware"
	"github.com/studio-s/auth-service/internal/services"
	"github.com/studio-s/auth-service/pkg/response"
)

// RefreshCookie is the httpOnly cookie carrying the refresh token. It is
// scoped to the auth endpoints so other routes never see it.
const (
	RefreshCookie     = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
)

type AuthHandler struct {
	auth   *services.AuthService
	email  *services.EmailService
	cookie *config.CookieConfig
}

func NewAuthHandler(auth *services.AuthService, email *services.EmailService, cookie *config.CookieConfig) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		email:  email,
		cookie: cookie,
	}
}

func (h *AuthHandler) meta(c *gin.Context) services.RequestMeta {
	return services.RequestMeta{
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func (h *AuthHandler) sameSite() http.SameSite {
	switch h.cookie.SameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, pair *services.TokenPair) {
	c.SetSameSite(h.sameSite())
	maxAge := int(time.Until(pair.RefreshExpiresAt).Seconds())
	c.SetCookie(RefreshCookie, pair.RefreshToken, maxAge, refreshCookiePath, h.cookie.Domain, h.cookie.Secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(h.sameSite())
	c.SetCookie(RefreshCookie, "", -1, refreshCookiePath, h.cookie.Domain, h.cookie.Secure, true)
}

func tokenPayload(pair *services.TokenPair) gin.H {
	return gin.H{
		"accessToken": pair.AccessToken,
		"expiresAt":   pair.AccessExpiresAt.Unix(),
	}
}

// Signup registers a new account and logs it in.
// POST /api/v1/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req services.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, pair, err := h.auth.Signup(&req, h.meta(c))
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			response.Conflict(c, "Email already registered")
			return
		}
		response.ServerError(c, "Could not create account")
		return
	}

	h.setRefreshCookie(c, pair)
	payload := tokenPayload(pair)
	payload["user"] = user
	response.Created(c, payload)
}

// Login exchanges credentials for a token pair.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, pair, err := h.auth.Login(&req, h.meta(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			response.Unauthorized(c, "Invalid email or password")
		case errors.Is(err, services.ErrUserDisabled):
			response.Forbidden(c, "Account is disabled")
		default:
			response.ServerError(c, "Login failed")
		}
		return
	}

	h.setRefreshCookie(c, pair)
	payload := tokenPayload(pair)
	payload["user"] = user
	response.Success(c, payload)
}

// Refresh rotates the refresh token from the cookie.
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(RefreshCookie)
	if err != nil || refreshToken == "" {
		response.Unauthorized(c, "Refresh token required")
		return
	}

	pair, err := h.auth.Rotate(refreshToken, h.meta(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRotationUnavailable):
			// Outcome unknown; the client may retry with the same token.
			response.ServiceUnavailable(c, "Please retry")
		case errors.Is(err, services.ErrUserDisabled):
			h.clearRefreshCookie(c)
			response.Forbidden(c, "Account is disabled")
		default:
			// Invalid, unknown, mismatched, replayed or expired tokens
			// all read the same from outside.
			h.clearRefreshCookie(c)
			response.Unauthorized(c, "Invalid refresh token")
		}
		return
	}

	h.setRefreshCookie(c, pair)
	response.Success(c, tokenPayload(pair))
}

// Logout revokes the current session and clears the cookie.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(RefreshCookie)
	if err := h.auth.Logout(refreshToken); err != nil {
		response.ServerError(c, "Logout failed")
		return
	}
	h.clearRefreshCookie(c)
	response.Message(c, "Logged out")
}

// ForgotPassword issues a reset token. The answer never reveals whether
// the email exists.
// POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	token, err := h.auth.ForgotPassword(req.Email)
	if err != nil {
		response.ServerError(c, "Could not process request")
		return
	}
	if token != "" && h.email != nil {
		// Delivery failures are not surfaced either.
		_ = h.email.SendPasswordReset(req.Email, token)
	}

	response.Message(c, "If that email is registered, a reset link has been sent")
}

// ResetPassword consumes an emailed reset token.
// PATCH /api/v1/auth/reset-password/:token
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.auth.ResetPassword(c.Param("token"), req.Password, h.meta(c)); err != nil {
		if errors.Is(err, services.ErrResetTokenInvalid) {
			response.BadRequest(c, "Reset token is invalid or has expired")
			return
		}
		response.ServerError(c, "Could not reset password")
		return
	}

	response.Message(c, "Password has been reset")
}

// UpdatePassword changes the password of the authenticated user and
// rotates all their sessions.
// PATCH /api/v1/auth/update-password
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"currentPassword" binding:"required"`
		NewPassword     string `json:"newPassword" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	pair, err := h.auth.UpdatePassword(middleware.GetUserID(c), req.CurrentPassword, req.NewPassword, h.meta(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			response.Unauthorized(c, "Current password is incorrect")
		case errors.Is(err, services.ErrUserNotFound):
			response.NotFound(c, "User not found")
		default:
			response.ServerError(c, "Could not update password")
		}
		return
	}

	h.setRefreshCookie(c, pair)
	response.Success(c, tokenPayload(pair))
}

// Me returns the authenticated user's profile. Access tokens minted
// before the last password change are rejected even if unexpired.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.auth.GetUserByID(middleware.GetUserID(c))
	if err != nil {
		response.NotFound(c, "User not found")
		return
	}
	if iat, ok := middleware.GetIssuedAt(c); ok && user.PasswordChangedAfter(iat) {
		response.Unauthorized(c, "Password was changed recently, please log in again")
		return
	}
	response.Success(c, gin.H{"user": user})
}
