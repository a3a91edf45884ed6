package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tejash-sr/agri/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserProfile is the external representation of an account.
type UserProfile struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Phone         *string    `json:"phone,omitempty"`
	FullName      string     `json:"full_name"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	PhoneVerified bool       `json:"phone_verified"`
	AvatarURL     *string    `json:"avatar_url,omitempty"`
	Address       *string    `json:"address,omitempty"`
	City          *string    `json:"city,omitempty"`
	District      *string    `json:"district,omitempty"`
	State         *string    `json:"state,omitempty"`
	Pincode       *string    `json:"pincode,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	Language      *string    `json:"language,omitempty"`
	PreferredUnit *string    `json:"preferred_unit,omitempty"`
	Notifications bool       `json:"notifications_enabled"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// TokenResponse describes the credential payload returned by login and refresh.
type TokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	User         UserProfile `json:"user"`
}

// SessionTokens carries an issued token pair without the user profile.
type SessionTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshRequest represents the payload to rotate a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest carries the refresh token to retire.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutAllResponse summarises a bulk session invalidation.
type LogoutAllResponse struct {
	Message         string `json:"message"`
	RevokedSessions int    `json:"revoked_sessions"`
}

// RegisterRequest defines the account registration payload.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role"`
	City     string `json:"city"`
	State    string `json:"state"`
	Language string `json:"language"`
}

// RegisterResponse contains registration results and next steps.
type RegisterResponse struct {
	User                 UserProfile    `json:"user"`
	Tokens               *SessionTokens `json:"tokens,omitempty"`
	RequiresVerification bool           `json:"requires_verification"`
	Message              string         `json:"message,omitempty"`
	ExpiresAt            *string        `json:"expires_at,omitempty"`
	// DevToken is ONLY exposed in development mode. In production the
	// verification token travels over the notification channel.
	DevToken *string `json:"dev_token,omitempty"`
}

// VerifyEmailRequest holds the verification payload.
type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// PasswordChangeRequest captures a password change request body.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ForgotPasswordRequest represents a password reset initiation payload.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPasswordResponse returns information about the generated reset artifact.
type ForgotPasswordResponse struct {
	Message string `json:"message"`
	// DevToken is ONLY exposed in development mode.
	DevToken *string `json:"dev_token,omitempty"`
}

// ResetPasswordRequest captures a password reset confirmation payload.
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ProfileUpdateRequest lists the profile fields a user may patch.
// Absent fields leave the stored value untouched.
type ProfileUpdateRequest struct {
	FullName      *string  `json:"full_name,omitempty"`
	Phone         *string  `json:"phone,omitempty"`
	AvatarURL     *string  `json:"avatar_url,omitempty"`
	Address       *string  `json:"address,omitempty"`
	City          *string  `json:"city,omitempty"`
	District      *string  `json:"district,omitempty"`
	State         *string  `json:"state,omitempty"`
	Pincode       *string  `json:"pincode,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Language      *string  `json:"language,omitempty"`
	PreferredUnit *string  `json:"preferred_unit,omitempty"`
	Notifications *bool    `json:"notifications_enabled,omitempty"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// JWKSKey describes an individual JSON Web Key in the JWKS response.
type JWKSKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSResponse represents the JSON Web Key Set payload.
type JWKSResponse struct {
	Keys []JWKSKey `json:"keys"`
}

// newUserProfile converts a domain user to its API representation.
// Credential material never appears in the output.
func newUserProfile(user domain.User) UserProfile {
	return UserProfile{
		ID:            user.ID,
		Email:         user.Email,
		Phone:         user.Phone,
		FullName:      user.FullName,
		Role:          string(user.Role),
		EmailVerified: user.EmailVerified,
		PhoneVerified: user.PhoneVerified,
		AvatarURL:     user.AvatarURL,
		Address:       user.Address,
		City:          user.City,
		District:      user.District,
		State:         user.State,
		Pincode:       user.Pincode,
		Latitude:      user.Latitude,
		Longitude:     user.Longitude,
		Language:      user.Language,
		PreferredUnit: user.PreferredUnit,
		Notifications: user.Notifications,
		CreatedAt:     user.CreatedAt,
		LastLoginAt:   user.LastLoginAt,
	}
}

func (r ProfileUpdateRequest) toDomain() domain.ProfileUpdate {
	return domain.ProfileUpdate{
		FullName:      r.FullName,
		Phone:         r.Phone,
		AvatarURL:     r.AvatarURL,
		Address:       r.Address,
		City:          r.City,
		District:      r.District,
		State:         r.State,
		Pincode:       r.Pincode,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		Language:      r.Language,
		PreferredUnit: r.PreferredUnit,
		Notifications: r.Notifications,
	}
}
