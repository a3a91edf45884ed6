package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tejash-sr/agri/internal/repository"
	"github.com/tejash-sr/agri/internal/transport/http/middleware"
	"github.com/tejash-sr/agri/internal/usecase"
)

// forgotPasswordMessage is identical for known and unknown accounts.
const forgotPasswordMessage = "if the email is registered, a reset link has been sent"

// PasswordHandler exposes password change and recovery endpoints.
type PasswordHandler struct {
	passwords  *usecase.PasswordService
	dispatcher NotificationDispatcher
	resetTTL   time.Duration
	isDev      bool
}

// NewPasswordHandler constructs PasswordHandler.
func NewPasswordHandler(passwords *usecase.PasswordService, dispatcher NotificationDispatcher, resetTTL time.Duration, isDev bool) *PasswordHandler {
	if dispatcher == nil {
		dispatcher = noopDispatcher{}
	}
	return &PasswordHandler{
		passwords:  passwords,
		dispatcher: dispatcher,
		resetTTL:   resetTTL,
		isDev:      isDev,
	}
}

// ChangePassword godoc
// @Summary Change the caller's password
// @Description Verifies the current password before applying the new one. All sessions are invalidated on success.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordChangeRequest true "Password change payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/password/change [post]
func (h *PasswordHandler) ChangePassword(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current_password and new_password are required"))
		return
	}

	if err := h.passwords.Change(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusUnprocessableEntity, Message: "password does not meet requirements"},
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}, http.StatusInternalServerError, "failed to change password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed, please log in again"})
}

// ForgotPassword godoc
// @Summary Request a password reset
// @Description Issues a reset token for the account if it exists. The response never reveals whether the email is registered.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Password reset initiation payload"
// @Success 200 {object} ForgotPasswordResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails "Rate limit exceeded"
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/forgot [post]
func (h *PasswordHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email is required"))
		return
	}

	email := strings.TrimSpace(req.Email)

	token, err := h.passwords.Forgot(c.Request.Context(), email, usecase.RequestInfo{
		ClientIP:  strings.TrimSpace(c.ClientIP()),
		UserAgent: strings.TrimSpace(c.Request.UserAgent()),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to process reset request"))
		return
	}

	resp := ForgotPasswordResponse{Message: forgotPasswordMessage}

	if token != "" {
		expires := time.Now().UTC().Add(h.resetTTL)
		_ = h.dispatcher.SendPasswordReset(c.Request.Context(), PasswordResetNotification{
			Email:    email,
			DevToken: devToken(h.isDev, token),
			Expires:  expires,
		})

		if h.isDev {
			resp.DevToken = &token
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ResetPassword godoc
// @Summary Complete a password reset
// @Description Consumes the reset token and applies the new password. All sessions are invalidated on success.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Password reset confirmation payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/reset [post]
func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token and new_password are required"))
		return
	}

	if err := h.passwords.Reset(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid or expired reset token"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusUnprocessableEntity, Message: "password does not meet requirements"},
		}, http.StatusInternalServerError, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password reset, please log in again"})
}

func devToken(isDev bool, token string) string {
	if !isDev {
		return ""
	}
	return strings.TrimSpace(token)
}
