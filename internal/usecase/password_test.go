package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tejash-sr/agri/internal/core/domain"
	"github.com/tejash-sr/agri/internal/infra/security"
)

type passwordFixture struct {
	service *PasswordService
	users   *stubUserRepo
	ledger  *stubLedger
	events  *stubEvents
	now     time.Time
}

func newPasswordFixture(t *testing.T, users ...*domain.User) *passwordFixture {
	t.Helper()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	repo := newStubUserRepo(users...)
	ledger := newStubLedger(fixedClock(now))
	events := &stubEvents{}
	service := NewPasswordService(repo, ledger, security.DefaultPasswordValidator(8, 0), events, zap.NewNop()).WithClock(fixedClock(now))

	return &passwordFixture{service: service, users: repo, ledger: ledger, events: events, now: now}
}

func (fx *passwordFixture) seedRefreshToken(t *testing.T, userID, hash string) {
	t.Helper()

	record := domain.SessionToken{
		ID:         "refresh-" + hash,
		UserID:     userID,
		Kind:       domain.TokenKindRefresh,
		SecretHash: hash,
		IssuedAt:   fx.now,
		ExpiresAt:  fx.now.Add(domain.RefreshTokenTTL),
		Valid:      true,
	}
	if err := fx.ledger.Create(context.Background(), record); err != nil {
		t.Fatalf("seed refresh token: %v", err)
	}
}

func TestChangePasswordRevokesAllSecrets(t *testing.T) {
	user := activeUser(t)
	fx := newPasswordFixture(t, user)
	fx.seedRefreshToken(t, user.ID, "hash-a")
	fx.seedRefreshToken(t, user.ID, "hash-b")

	const newPassword = "Fresh!pass9"
	if err := fx.service.Change(context.Background(), user.ID, testPassword, newPassword); err != nil {
		t.Fatalf("Change returned error: %v", err)
	}

	stored, err := fx.users.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if !security.VerifyPassword(newPassword, stored.PasswordHash) {
		t.Fatal("new password does not verify")
	}
	if security.VerifyPassword(testPassword, stored.PasswordHash) {
		t.Fatal("old password still verifies")
	}
	if fx.ledger.validCount(user.ID, domain.TokenKindRefresh) != 0 {
		t.Fatal("refresh tokens survived the password change")
	}

	if len(fx.events.passwordChanged) != 1 {
		t.Fatalf("expected one PasswordChanged event, got %d", len(fx.events.passwordChanged))
	}
	event := fx.events.passwordChanged[0]
	if event.ChangedBy != "user" || event.TokensRevoked != 2 {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	user := activeUser(t)
	fx := newPasswordFixture(t, user)

	err := fx.service.Change(context.Background(), user.ID, "wrong-current", "Fresh!pass9")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordSameAsCurrent(t *testing.T) {
	user := activeUser(t)
	fx := newPasswordFixture(t, user)

	err := fx.service.Change(context.Background(), user.ID, testPassword, testPassword)
	if !errors.Is(err, ErrPasswordPolicyViolation) {
		t.Fatalf("expected ErrPasswordPolicyViolation, got %v", err)
	}
}

func TestChangePasswordWeakReplacement(t *testing.T) {
	user := activeUser(t)
	fx := newPasswordFixture(t, user)

	err := fx.service.Change(context.Background(), user.ID, testPassword, "weak")
	if !errors.Is(err, ErrPasswordPolicyViolation) {
		t.Fatalf("expected ErrPasswordPolicyViolation, got %v", err)
	}
}

func TestChangePasswordUnknownUser(t *testing.T) {
	fx := newPasswordFixture(t)

	err := fx.service.Change(context.Background(), "ghost", testPassword, "Fresh!pass9")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestForgotIssuesResetToken(t *testing.T) {
	user := activeUser(t)
	fx := newPasswordFixture(t, user)

	token, err := fx.service.Forgot(context.Background(), user.Email, RequestInfo{ClientIP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Forgot returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token for a registered email")
	}

	record, err := fx.ledger.FindValid(context.Background(), security.HashToken(token), domain.TokenKindPasswordReset)
	if err != nil {
		t.Fatalf("reset token missing from ledger: %v", err)
	}
	if want := fx.now.Add(domain.PasswordResetTTL); !record.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, record.ExpiresAt)
	}

	if len(fx.events.resetRequested) != 1 {
		t.Fatalf("expected one PasswordResetRequested event, got %d", len(fx.events.resetRequested))
	}
	event := fx.events.resetRequested[0]
	if event.MaskedDestination == user.Email {
		t.Fatal("event must not carry the raw email")
	}
}

func TestForgotUnknownEmailIsSilent(t *testing.T) {
	fx := newPasswordFixture(t)

	token, err := fx.service.Forgot(context.Background(), "nobody@example.com", RequestInfo{})
	if err != nil {
		t.Fatalf("Forgot with unknown email must not error, got %v", err)
	}
	if token != "" {
		t.Fatal("no token should be issued for an unknown email")
	}
	if len(fx.events.resetRequested) != 0 {
		t.Fatal("no event should be published for an unknown email")
	}
}

func TestForgotInactiveAccountIsSilent(t *testing.T) {
	user := activeUser(t)
	user.IsActive = false
	fx := newPasswordFixture(t, user)

	token, err := fx.service.Forgot(context.Background(), user.Email, RequestInfo{})
	if err != nil {
		t.Fatalf("Forgot returned error: %v", err)
	}
	if token != "" {
		t.Fatal("no token should be issued for a deactivated account")
	}
}

func TestForgotSupersedesPreviousToken(t *testing.T) {
	user := activeUser(t)
	fx := newPasswordFixture(t, user)

	first, err := fx.service.Forgot(context.Background(), user.Email, RequestInfo{})
	if err != nil {
		t.Fatalf("Forgot returned error: %v", err)
	}
	second, err := fx.service.Forgot(context.Background(), user.Email, RequestInfo{})
	if err != nil {
		t.Fatalf("second Forgot returned error: %v", err)
	}

	if err := fx.service.Reset(context.Background(), first, "Fresh!pass9"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("superseded reset token: expected ErrInvalidToken, got %v", err)
	}
	if err := fx.service.Reset(context.Background(), second, "Fresh!pass9"); err != nil {
		t.Fatalf("latest reset token failed: %v", err)
	}
}

func TestResetRedeemsTokenOnce(t *testing.T) {
	user := activeUser(t)
	fx := newPasswordFixture(t, user)
	fx.seedRefreshToken(t, user.ID, "hash-a")

	token, err := fx.service.Forgot(context.Background(), user.Email, RequestInfo{})
	if err != nil {
		t.Fatalf("Forgot returned error: %v", err)
	}

	const newPassword = "Fresh!pass9"
	if err := fx.service.Reset(context.Background(), token, newPassword); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	stored, err := fx.users.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if !security.VerifyPassword(newPassword, stored.PasswordHash) {
		t.Fatal("new password does not verify")
	}
	if fx.ledger.validCount(user.ID, domain.TokenKindRefresh) != 0 {
		t.Fatal("refresh tokens survived the reset")
	}
	if fx.ledger.validCount(user.ID, domain.TokenKindPasswordReset) != 0 {
		t.Fatal("reset token remains valid after redemption")
	}

	if len(fx.events.passwordChanged) != 1 {
		t.Fatalf("expected one PasswordChanged event, got %d", len(fx.events.passwordChanged))
	}
	if fx.events.passwordChanged[0].ChangedBy != "password_reset" {
		t.Fatalf("unexpected ChangedBy: %s", fx.events.passwordChanged[0].ChangedBy)
	}

	if err := fx.service.Reset(context.Background(), token, "An0ther!pass"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("replayed reset token: expected ErrInvalidToken, got %v", err)
	}
}

func TestResetConcurrentRedemptionsHaveOneWinner(t *testing.T) {
	user := activeUser(t)
	fx := newPasswordFixture(t, user)

	token, err := fx.service.Forgot(context.Background(), user.Email, RequestInfo{})
	if err != nil {
		t.Fatalf("Forgot returned error: %v", err)
	}

	const racers = 8
	errs := make([]error, racers)

	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(slot int) {
			defer wg.Done()
			errs[slot] = fx.service.Reset(context.Background(), token, "Fresh!pass9")
		}(i)
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidToken):
		default:
			t.Fatalf("racer %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning redemption, got %d", wins)
	}
	if got := fx.ledger.validCount(user.ID, domain.TokenKindPasswordReset); got != 0 {
		t.Fatalf("expected no live reset tokens, got %d", got)
	}
	if len(fx.events.passwordChanged) != 1 {
		t.Fatalf("expected one PasswordChanged event, got %d", len(fx.events.passwordChanged))
	}
}

func TestResetUnknownToken(t *testing.T) {
	fx := newPasswordFixture(t)

	if err := fx.service.Reset(context.Background(), "bogus", "Fresh!pass9"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if err := fx.service.Reset(context.Background(), "", "Fresh!pass9"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: expected ErrInvalidToken, got %v", err)
	}
}

func TestResetExpiredToken(t *testing.T) {
	user := activeUser(t)
	fx := newPasswordFixture(t, user)

	token, err := fx.service.Forgot(context.Background(), user.Email, RequestInfo{})
	if err != nil {
		t.Fatalf("Forgot returned error: %v", err)
	}

	fx.ledger.now = fixedClock(fx.now.Add(domain.PasswordResetTTL + time.Minute))
	if err := fx.service.Reset(context.Background(), token, "Fresh!pass9"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: expected ErrInvalidToken, got %v", err)
	}
}

func TestResetWeakPasswordKeepsToken(t *testing.T) {
	user := activeUser(t)
	fx := newPasswordFixture(t, user)

	token, err := fx.service.Forgot(context.Background(), user.Email, RequestInfo{})
	if err != nil {
		t.Fatalf("Forgot returned error: %v", err)
	}

	if err := fx.service.Reset(context.Background(), token, "weak"); !errors.Is(err, ErrPasswordPolicyViolation) {
		t.Fatalf("expected ErrPasswordPolicyViolation, got %v", err)
	}

	// The token survives a rejected attempt.
	if err := fx.service.Reset(context.Background(), token, "Fresh!pass9"); err != nil {
		t.Fatalf("token should remain usable after a policy rejection: %v", err)
	}
}
