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
	// ErrDuplicateIdentity indicates the email or phone is already registered.
	ErrDuplicateIdentity = errors.New("identity already registered")
	// ErrPasswordPolicyViolation indicates the password does not satisfy complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
	// ErrInvalidRole indicates the requested role is not recognised.
	ErrInvalidRole = errors.New("invalid role")
)

// RegistrationService handles new account onboarding and email verification.
type RegistrationService struct {
	users             port.UserRepository
	ledger            port.LedgerRepository
	passwordValidator *security.PasswordValidator
	issuer            *security.TokenIssuer
	events            port.EventPublisher
	log               *zap.Logger
	now               func() time.Time
}

// NewRegistrationService constructs a registration service.
func NewRegistrationService(
	users port.UserRepository,
	ledger port.LedgerRepository,
	validator *security.PasswordValidator,
	issuer *security.TokenIssuer,
	events port.EventPublisher,
	log *zap.Logger,
) *RegistrationService {
	if validator == nil {
		validator = security.DefaultPasswordValidator(8, 0)
	}
	return &RegistrationService{
		users:             users,
		ledger:            ledger,
		passwordValidator: validator,
		issuer:            issuer,
		events:            events,
		log:               log,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	if now != nil {
		s.now = now
	}
	return s
}

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Email    string
	Phone    string
	Password string
	FullName string
	Role     string
	City     string
	State    string
	Language string
}

// RegisterResult bundles the created account with its first session and its
// verification artifact.
type RegisterResult struct {
	User              domain.User
	Tokens            *security.TokenPair
	VerificationToken string
	TokenExpiresAt    time.Time
}

// Register creates a new account, signs the user in with a fresh token pair,
// and issues an email-verification secret. Registering an email or phone that
// is already taken fails with ErrDuplicateIdentity regardless of which field
// collided.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput, info RequestInfo) (*RegisterResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("full name is required")
	}

	role := domain.Role(input.Role)
	if input.Role == "" {
		role = domain.RoleFarmer
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, input.Role)
	}

	if err := s.passwordValidator.Validate(input.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:            uuid.NewString(),
		Email:         email,
		PasswordHash:  passwordHash,
		FullName:      fullName,
		Role:          role,
		IsActive:      true,
		Notifications: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if phone := strings.TrimSpace(input.Phone); phone != "" {
		user.Phone = &phone
	}
	if city := strings.TrimSpace(input.City); city != "" {
		user.City = &city
	}
	if state := strings.TrimSpace(input.State); state != "" {
		user.State = &state
	}
	lang := strings.TrimSpace(input.Language)
	if lang == "" {
		lang = domain.DefaultLanguage
	}
	unit := domain.DefaultPreferredUnit
	user.Language = &lang
	user.PreferredUnit = &unit

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	pair, err := issueSessionPair(ctx, s.issuer, s.ledger, &user, info, now)
	if err != nil {
		return nil, err
	}

	rawToken, expiresAt, err := s.issueVerification(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			UserID:       user.ID,
			Email:        &user.Email,
			Phone:        user.Phone,
			Role:         string(user.Role),
			RegisteredAt: now,
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			logger.WithContext(ctx).Warn("publish user registered failed", zap.Error(err))
		}
	}

	return &RegisterResult{
		User:              user.Sanitized(),
		Tokens:            pair,
		VerificationToken: rawToken,
		TokenExpiresAt:    expiresAt,
	}, nil
}

// SendVerification issues a fresh email-verification secret for the user.
// Any previously issued verification secret becomes invalid. For an already
// verified account it returns an empty token and no error.
func (s *RegistrationService) SendVerification(ctx context.Context, userID string) (string, time.Time, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", time.Time{}, ErrUserNotFound
		}
		return "", time.Time{}, fmt.Errorf("lookup user: %w", err)
	}

	// Resending for a verified account succeeds without issuing anything.
	if user.EmailVerified {
		return "", time.Time{}, nil
	}

	return s.issueVerification(ctx, user.ID)
}

func (s *RegistrationService) issueVerification(ctx context.Context, userID string) (string, time.Time, error) {
	rawToken, err := security.GenerateSecureToken(32)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate verification token: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(domain.EmailVerificationTTL)
	record := domain.SessionToken{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       domain.TokenKindEmailVerification,
		SecretHash: security.HashToken(rawToken),
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
		Valid:      true,
	}

	if err := s.ledger.Create(ctx, record); err != nil {
		return "", time.Time{}, fmt.Errorf("store verification token: %w", err)
	}

	return rawToken, expiresAt, nil
}

// VerifyEmail redeems a verification secret and marks the email confirmed.
// The secret is single-use: the ledger record is invalidated on success.
func (s *RegistrationService) VerifyEmail(ctx context.Context, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return ErrInvalidToken
	}

	record, err := s.ledger.Consume(ctx, security.HashToken(rawToken), domain.TokenKindEmailVerification)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("consume verification token: %w", err)
	}

	now := s.now()
	if err := s.users.SetEmailVerified(ctx, record.UserID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("mark email verified: %w", err)
	}

	if s.events != nil {
		event := domain.EmailVerifiedEvent{
			EventID:    uuid.NewString(),
			UserID:     record.UserID,
			VerifiedAt: now,
		}
		if err := s.events.PublishEmailVerified(ctx, event); err != nil {
			logger.WithContext(ctx).Warn("publish email verified failed", zap.Error(err))
		}
	}

	return nil
}
