package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tejash-sr/agri/internal/repository"
	"github.com/tejash-sr/agri/internal/transport/http/middleware"
	"github.com/tejash-sr/agri/internal/usecase"
)

// UserHandler exposes profile endpoints for the authenticated account.
type UserHandler struct {
	users *usecase.UserService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users *usecase.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterRoutes binds profile routes. All of them require authentication.
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/me", h.me)
	r.PATCH("/me", h.updateProfile)
	r.DELETE("/me", h.deactivate)
}

// Me godoc
// @Summary Retrieve the caller's profile
// @Tags User
// @Produce json
// @Success 200 {object} UserProfile
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/user/me [get]
func (h *UserHandler) me(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
			{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable"},
		}, http.StatusInternalServerError, "failed to load profile")
		return
	}

	c.JSON(http.StatusOK, newUserProfile(*user))
}

// UpdateProfile godoc
// @Summary Update the caller's profile
// @Description Applies the supplied profile fields. Changing the phone number resets its verified flag.
// @Tags User
// @Accept json
// @Produce json
// @Param request body ProfileUpdateRequest true "Profile update payload"
// @Success 200 {object} UserProfile
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/user/me [patch]
func (h *UserHandler) updateProfile(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid profile payload"))
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), userID, req.toDomain())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
			{Err: usecase.ErrDuplicateIdentity, Status: http.StatusConflict, Message: "phone already registered"},
			{Err: repository.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable"},
		}, http.StatusInternalServerError, "failed to update profile")
		return
	}

	c.JSON(http.StatusOK, newUserProfile(*user))
}

// Deactivate godoc
// @Summary Deactivate the caller's account
// @Description Soft-deletes the account and invalidates every outstanding session and token.
// @Tags User
// @Produce json
// @Success 204 {string} string ""
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/user/me [delete]
func (h *UserHandler) deactivate(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.users.Deactivate(c.Request.Context(), userID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}, http.StatusInternalServerError, "failed to deactivate account")
		return
	}

	c.Status(http.StatusNoContent)
}
