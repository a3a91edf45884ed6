package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tejash-sr/agri/internal/repository"
	"github.com/tejash-sr/agri/internal/transport/http/middleware"
	"github.com/tejash-sr/agri/internal/usecase"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of the handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares, refreshMiddlewares []gin.HandlerFunc) {
	loginChain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	loginChain = append(loginChain, h.login)
	r.POST("/login", loginChain...)

	refreshChain := append([]gin.HandlerFunc{}, refreshMiddlewares...)
	refreshChain = append(refreshChain, h.refresh)
	r.POST("/refresh", refreshChain...)

	r.POST("/logout", h.logout)
	r.POST("/logout-all", middleware.RequireAuth(h.auth), h.logoutAll)
}

func requestInfo(c *gin.Context) usecase.RequestInfo {
	return usecase.RequestInfo{
		ClientIP:  strings.TrimSpace(c.ClientIP()),
		UserAgent: strings.TrimSpace(c.Request.UserAgent()),
	}
}

// Login godoc
// @Summary Authenticate a user with credentials
// @Description Validates the provided identifier and password, returning access and refresh tokens on success.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} TokenResponse "Successfully authenticated"
// @Failure 400 {object} ErrorResponse "Invalid request payload"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 403 {object} ErrorResponse "Account inactive"
// @Failure 429 {object} middleware.ProblemDetails "Rate limit exceeded"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), strings.TrimSpace(req.Identifier), req.Password, requestInfo(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
			{Err: usecase.ErrInactiveAccount, Status: http.StatusForbidden, Message: "account inactive"},
			{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable"},
		}, http.StatusInternalServerError, "authentication failed")
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    result.Tokens.ExpiresIn,
		User:         newUserProfile(result.User.Sanitized()),
	})
}

// Refresh godoc
// @Summary Refresh an access token
// @Description Rotates the supplied refresh token and issues a new token pair.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh request"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, requestInfo(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
			{Err: usecase.ErrExpiredToken, Status: http.StatusUnauthorized, Message: "refresh token expired"},
			{Err: usecase.ErrInactiveAccount, Status: http.StatusForbidden, Message: "account inactive"},
			{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable"},
		}, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    result.Tokens.ExpiresIn,
		User:         newUserProfile(result.User.Sanitized()),
	})
}

// Logout godoc
// @Summary Logout the current session
// @Description Retires the supplied refresh token. Unknown tokens are treated as already logged out.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LogoutRequest true "Logout request"
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to logout"))
		return
	}

	c.Status(http.StatusNoContent)
}

// LogoutAll godoc
// @Summary Logout every session of the caller
// @Description Invalidates all active refresh tokens belonging to the authenticated user.
// @Tags Authentication
// @Produce json
// @Success 200 {object} LogoutAllResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/auth/logout-all [post]
func (h *AuthHandler) logoutAll(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	revoked, err := h.auth.LogoutAll(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to logout sessions"))
		return
	}

	c.JSON(http.StatusOK, LogoutAllResponse{
		Message:         "all sessions logged out",
		RevokedSessions: revoked,
	})
}
