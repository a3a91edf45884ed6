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

// RegistrationHandler exposes account creation and email verification endpoints.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
	dispatcher   NotificationDispatcher
	isDev        bool
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registration *usecase.RegistrationService, dispatcher NotificationDispatcher, isDev bool) *RegistrationHandler {
	if dispatcher == nil {
		dispatcher = noopDispatcher{}
	}
	return &RegistrationHandler{
		registration: registration,
		dispatcher:   dispatcher,
		isDev:        isDev,
	}
}

// RegisterRoutes binds registration routes. The resend endpoint requires authentication.
func (h *RegistrationHandler) RegisterRoutes(r *gin.RouterGroup, auth gin.HandlerFunc, registerMiddlewares, verifyMiddlewares []gin.HandlerFunc) {
	registerChain := append([]gin.HandlerFunc{}, registerMiddlewares...)
	registerChain = append(registerChain, h.register)
	r.POST("/register", registerChain...)

	verifyChain := append([]gin.HandlerFunc{}, verifyMiddlewares...)
	verifyChain = append(verifyChain, h.verifyEmail)
	r.POST("/verify-email", verifyChain...)

	resendChain := append([]gin.HandlerFunc{}, verifyMiddlewares...)
	resendChain = append(resendChain, auth, h.resendVerification)
	r.POST("/verify-email/resend", resendChain...)
}

// Register godoc
// @Summary Register a new user account
// @Description Creates a new user with the supplied credentials and profile information.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request payload"
// @Success 201 {object} RegisterResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *RegistrationHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	input := usecase.RegisterInput{
		Email:    strings.TrimSpace(req.Email),
		Phone:    strings.TrimSpace(req.Phone),
		Password: req.Password,
		FullName: strings.TrimSpace(req.FullName),
		Role:     strings.TrimSpace(req.Role),
		City:     strings.TrimSpace(req.City),
		State:    strings.TrimSpace(req.State),
		Language: strings.TrimSpace(req.Language),
	}

	result, err := h.registration.Register(c.Request.Context(), input, requestInfo(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrDuplicateIdentity, Status: http.StatusConflict, Message: "email or phone already registered"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusUnprocessableEntity, Message: "password does not meet requirements"},
			{Err: usecase.ErrInvalidRole, Status: http.StatusBadRequest, Message: "invalid role"},
			{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable"},
		}, http.StatusInternalServerError, "failed to register user")
		return
	}

	resp := RegisterResponse{
		User:                 newUserProfile(result.User.Sanitized()),
		RequiresVerification: true,
		Message:              "verification email sent",
	}

	if result.Tokens != nil {
		resp.Tokens = &SessionTokens{
			AccessToken:  result.Tokens.AccessToken,
			RefreshToken: result.Tokens.RefreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    result.Tokens.ExpiresIn,
		}
	}

	if !result.TokenExpiresAt.IsZero() {
		expires := result.TokenExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &expires
	}

	if h.isDev {
		if token := strings.TrimSpace(result.VerificationToken); token != "" {
			resp.DevToken = &token
		}
	}

	h.dispatchVerification(c, result.User.Email, result.User.FullName, result.VerificationToken, result.TokenExpiresAt)

	c.JSON(http.StatusCreated, resp)
}

// VerifyEmail godoc
// @Summary Confirm an email verification token
// @Description Marks the account's email as verified and retires the token.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body VerifyEmailRequest true "Verification payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/verify-email [post]
func (h *RegistrationHandler) verifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	if err := h.registration.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid or expired verification token"},
		}, http.StatusInternalServerError, "failed to verify email")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "email verified"})
}

// ResendVerification godoc
// @Summary Resend the email verification token
// @Description Issues a fresh verification token for the authenticated account, invalidating any prior one. Succeeds without issuing anything when the email is already verified.
// @Tags Registration
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/auth/verify-email/resend [post]
func (h *RegistrationHandler) resendVerification(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	token, expiresAt, err := h.registration.SendVerification(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}, http.StatusInternalServerError, "failed to send verification")
		return
	}

	// An empty token means the account is already verified; respond with the
	// same message so callers cannot probe verification state.
	if token != "" {
		h.dispatchVerification(c, "", "", token, expiresAt)
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "verification email sent"})
}

func (h *RegistrationHandler) dispatchVerification(c *gin.Context, email, fullName, token string, expires time.Time) {
	if h.dispatcher == nil {
		return
	}

	payload := VerificationNotification{
		Email:    email,
		FullName: fullName,
		Expires:  expires,
	}

	if h.isDev {
		payload.DevToken = strings.TrimSpace(token)
	}

	_ = h.dispatcher.SendEmailVerification(c.Request.Context(), payload)
}
