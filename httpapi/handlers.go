package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/authz"
	"github.com/milow-app/milow-functions/tenant"
	"github.com/milow-app/milow-functions/user"
	"github.com/milow-app/milow-functions/webhook"
)

// --- user administration ---

func (s *server) inviteUser(c *gin.Context) {
	var req user.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}
	res, err := s.Users.Invite(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type deleteUserRequest struct {
	UserID string `json:"user_id"`
}

func (s *server) deleteUser(c *gin.Context) {
	var req deleteUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}
	if err := s.Users.Delete(c.Request.Context(), req.UserID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User deleted successfully"})
}

type resetPasswordRequest struct {
	UserID      string `json:"user_id"`
	NewPassword string `json:"new_password"`
}

func (s *server) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}
	if err := s.Users.ResetPassword(c.Request.Context(), req.UserID, req.NewPassword); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password reset successfully"})
}

// --- integrity ---

type verifyIntegrityRequest struct {
	IntegrityToken string `json:"integrityToken"`
}

func (s *server) verifyIntegrity(c *gin.Context) {
	var req verifyIntegrityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IntegrityToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "message": "Missing integrity token"})
		return
	}

	report, err := s.Integrity.Verify(c.Request.Context(), req.IntegrityToken)
	if err != nil {
		s.logger.ErrorContext(c.Request.Context(), "integrity verification failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"valid": false, "message": integrityFailure(err)})
		return
	}
	c.JSON(http.StatusOK, report)
}

// integrityFailure names the failing stage without exposing upstream detail.
func integrityFailure(err error) string {
	var (
		cfgErr  *milow.ConfigurationError
		signErr *milow.SigningError
		exErr   *milow.TokenExchangeError
		vErr    *milow.VerificationError
	)
	switch {
	case errors.As(err, &vErr):
		return "Failed to verify token with Google"
	case errors.As(err, &cfgErr), errors.As(err, &signErr), errors.As(err, &exErr):
		return "Failed to authenticate with Google"
	default:
		return "Server error"
	}
}

// --- webhooks ---

func (s *server) notifyNewVersion(c *gin.Context) {
	var p webhook.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		badBody(c)
		return
	}
	res, err := s.Releases.Handle(c.Request.Context(), p)
	if err != nil {
		s.logger.ErrorContext(c.Request.Context(), "release notification failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send notifications"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) loadStatusChange(c *gin.Context) {
	var p webhook.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		badBody(c)
		return
	}
	res := webhook.LoadStatus(c.Request.Context(), p, s.logger)
	if !res.Processed() {
		c.String(http.StatusOK, res.Message)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- errors ---

func badBody(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
}

// fail maps service errors to responses. Messages carried by *user.Error are
// caller-safe; anything else is logged and redacted.
func (s *server) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	var uerr *user.Error
	if errors.As(err, &uerr) {
		c.JSON(statusOf(err), gin.H{"error": uerr.Message})
		return
	}
	if errors.Is(err, milow.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	s.logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, user.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, authz.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, authz.ErrForbidden),
		errors.Is(err, authz.ErrProfileNotFound),
		errors.Is(err, tenant.ErrNotMember):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
