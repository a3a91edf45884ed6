package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tejash-sr/agri/internal/core/domain"
	"github.com/tejash-sr/agri/internal/core/port"
	"github.com/tejash-sr/agri/internal/infra/logger"
	"github.com/tejash-sr/agri/internal/infra/security"
	"github.com/tejash-sr/agri/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided identifier or password are incorrect.
	// Unknown accounts and wrong passwords are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInactiveAccount indicates the account has been deactivated.
	ErrInactiveAccount = errors.New("account is not active")
	// ErrInvalidToken indicates the presented token is unknown, revoked, malformed, or already rotated.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates the presented token exists but its lifetime has elapsed.
	ErrExpiredToken = errors.New("token expired")
)

// RequestInfo carries per-request client attribution recorded on ledger entries.
type RequestInfo struct {
	ClientIP  string
	UserAgent string
}

func (r RequestInfo) clientIP() *string {
	if r.ClientIP == "" {
		return nil
	}
	ip := r.ClientIP
	return &ip
}

func (r RequestInfo) userAgent() *string {
	if r.UserAgent == "" {
		return nil
	}
	ua := r.UserAgent
	return &ua
}

// AuthService coordinates login, session refresh, and logout.
type AuthService struct {
	users  port.UserRepository
	ledger port.LedgerRepository
	issuer *security.TokenIssuer
	events port.EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users port.UserRepository,
	ledger port.LedgerRepository,
	issuer *security.TokenIssuer,
	events port.EventPublisher,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		ledger: ledger,
		issuer: issuer,
		events: events,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// LoginResult bundles the issued credentials with the authenticated user.
type LoginResult struct {
	Tokens *security.TokenPair
	User   domain.User
}

// Login validates credentials and issues a token pair. The refresh token is
// recorded in the session ledger before the pair is returned.
func (s *AuthService) Login(ctx context.Context, identifier, password string, info RequestInfo) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.lookupByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !security.VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrInactiveAccount
	}

	pair, err := s.issuePair(ctx, user, info)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.WithContext(ctx).Warn("update last login failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
	lastLogin := now
	user.LastLoginAt = &lastLogin

	return &LoginResult{Tokens: pair, User: user.Sanitized()}, nil
}

func (s *AuthService) lookupByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	if strings.Contains(identifier, "@") {
		return s.users.GetByEmail(ctx, identifier)
	}

	user, err := s.users.GetByPhone(ctx, identifier)
	if err == nil || !errors.Is(err, repository.ErrNotFound) {
		return user, err
	}
	return s.users.GetByEmail(ctx, identifier)
}

func (s *AuthService) issuePair(ctx context.Context, user *domain.User, info RequestInfo) (*security.TokenPair, error) {
	return issueSessionPair(ctx, s.issuer, s.ledger, user, info, s.now())
}

// issueSessionPair mints a token pair and records the refresh token in the
// ledger. Shared by login and registration.
func issueSessionPair(ctx context.Context, issuer *security.TokenIssuer, ledger port.LedgerRepository, user *domain.User, info RequestInfo, now time.Time) (*security.TokenPair, error) {
	pair, err := issuer.IssuePair(user)
	if err != nil {
		return nil, fmt.Errorf("issue token pair: %w", err)
	}

	record := domain.SessionToken{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Kind:       domain.TokenKindRefresh,
		SecretHash: security.HashToken(pair.RefreshToken),
		IssuedAt:   now,
		ExpiresAt:  now.Add(issuer.RefreshTTL()),
		Valid:      true,
		ClientIP:   info.clientIP(),
		UserAgent:  info.userAgent(),
	}

	if err := ledger.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("record refresh token: %w", err)
	}

	return pair, nil
}

// Refresh rotates the presented refresh token and issues a fresh pair.
// Rotation is single-use: of two concurrent calls with the same token,
// exactly one succeeds and the other observes ErrInvalidToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, info RequestInfo) (*LoginResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidToken
	}

	claims, err := s.issuer.Parse(refreshToken, security.TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrInactiveAccount
	}

	pair, err := s.issuer.IssuePair(user)
	if err != nil {
		return nil, fmt.Errorf("issue token pair: %w", err)
	}

	now := s.now()
	replacement := domain.SessionToken{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Kind:       domain.TokenKindRefresh,
		SecretHash: security.HashToken(pair.RefreshToken),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.issuer.RefreshTTL()),
		Valid:      true,
		ClientIP:   info.clientIP(),
		UserAgent:  info.userAgent(),
	}

	if _, err := s.ledger.Rotate(ctx, security.HashToken(refreshToken), replacement); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	return &LoginResult{Tokens: pair, User: user.Sanitized()}, nil
}

// Logout invalidates the ledger record behind the presented refresh token.
// Logging out with an unknown or already-invalid token succeeds silently.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}

	record, err := s.ledger.FindValid(ctx, security.HashToken(refreshToken), domain.TokenKindRefresh)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}

	if err := s.ledger.Invalidate(ctx, record.ID); err != nil {
		return fmt.Errorf("invalidate refresh token: %w", err)
	}

	return nil
}

// LogoutAll invalidates every ledger secret the user holds, refresh tokens
// and pending reset/verification secrets alike.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user id is required")
	}

	revoked, err := s.ledger.InvalidateAllForUser(ctx, userID, nil)
	if err != nil {
		return 0, fmt.Errorf("invalidate user sessions: %w", err)
	}

	if revoked > 0 && s.events != nil {
		event := domain.SessionsInvalidatedEvent{
			EventID:       uuid.NewString(),
			UserID:        userID,
			Reason:        "logout_all",
			TokensRevoked: revoked,
			RevokedAt:     s.now(),
		}
		if err := s.events.PublishSessionsInvalidated(ctx, event); err != nil {
			logger.WithContext(ctx).Warn("publish sessions invalidated failed", zap.Error(err))
		}
	}

	return revoked, nil
}

// ParseAccessToken verifies an access token and returns its claims. The check
// is purely cryptographic: no storage round-trip, so revocation of the
// refresh lineage surfaces only after the access token's short TTL lapses.
func (s *AuthService) ParseAccessToken(token string) (*security.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims, err := s.issuer.Parse(token, security.TokenTypeAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
