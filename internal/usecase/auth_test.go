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

const testPassword = "Corr3ct!horse"

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func authTestIssuer(t *testing.T) *security.TokenIssuer {
	t.Helper()

	provider, err := security.NewEphemeralKeyProvider("test-key-1")
	if err != nil {
		t.Fatalf("NewEphemeralKeyProvider returned error: %v", err)
	}
	issuer, err := security.NewTokenIssuer(security.NewJWTManager(provider), "test-key-1", "agri-identity-test", 30*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}
	return issuer
}

func activeUser(t *testing.T) *domain.User {
	t.Helper()

	hash, err := security.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	phone := "+919876543210"
	return &domain.User{
		ID:            "user-1",
		Email:         "ravi@example.com",
		Phone:         &phone,
		PasswordHash:  hash,
		FullName:      "Ravi Kumar",
		Role:          domain.RoleFarmer,
		IsActive:      true,
		EmailVerified: true,
		Notifications: true,
		CreatedAt:     time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}
}

type authFixture struct {
	service *AuthService
	users   *stubUserRepo
	ledger  *stubLedger
	events  *stubEvents
	now     time.Time
}

func newAuthFixture(t *testing.T, users ...*domain.User) *authFixture {
	t.Helper()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	repo := newStubUserRepo(users...)
	ledger := newStubLedger(fixedClock(now))
	events := &stubEvents{}
	service := NewAuthService(repo, ledger, authTestIssuer(t), events, zap.NewNop()).WithClock(fixedClock(now))

	return &authFixture{service: service, users: repo, ledger: ledger, events: events, now: now}
}

func TestLoginSuccessRecordsRefreshToken(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	result, err := fx.service.Login(context.Background(), user.Email, testPassword, RequestInfo{ClientIP: "10.0.0.1", UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if result.User.PasswordHash != "" {
		t.Fatal("login result must not carry the password hash")
	}
	if result.User.LastLoginAt == nil || !result.User.LastLoginAt.Equal(fx.now) {
		t.Fatalf("expected LastLoginAt %v, got %v", fx.now, result.User.LastLoginAt)
	}

	record, err := fx.ledger.FindValid(context.Background(), security.HashToken(result.Tokens.RefreshToken), domain.TokenKindRefresh)
	if err != nil {
		t.Fatalf("refresh token was not recorded in the ledger: %v", err)
	}
	if record.UserID != user.ID {
		t.Fatalf("ledger record belongs to %q, want %q", record.UserID, user.ID)
	}
	if record.ClientIP == nil || *record.ClientIP != "10.0.0.1" {
		t.Fatal("ledger record missing client IP attribution")
	}
	if at, ok := fx.users.lastLogin[user.ID]; !ok || !at.Equal(fx.now) {
		t.Fatal("UpdateLastLogin was not persisted")
	}
}

func TestLoginByPhoneIdentifier(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	result, err := fx.service.Login(context.Background(), *user.Phone, testPassword, RequestInfo{})
	if err != nil {
		t.Fatalf("Login by phone returned error: %v", err)
	}
	if result.User.ID != user.ID {
		t.Fatalf("unexpected user: %s", result.User.ID)
	}
}

func TestLoginUnknownIdentifier(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.service.Login(context.Background(), "nobody@example.com", testPassword, RequestInfo{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	_, err := fx.service.Login(context.Background(), user.Email, "not-the-password", RequestInfo{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if fx.ledger.validCount(user.ID, domain.TokenKindRefresh) != 0 {
		t.Fatal("failed login must not record a refresh token")
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	user := activeUser(t)
	user.IsActive = false
	fx := newAuthFixture(t, user)

	// Deactivation surfaces only after the password check so the error does
	// not leak account state to guessers.
	_, err := fx.service.Login(context.Background(), user.Email, testPassword, RequestInfo{})
	if !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}

	_, err = fx.service.Login(context.Background(), user.Email, "wrong", RequestInfo{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password on inactive account: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginEmptyInputs(t *testing.T) {
	fx := newAuthFixture(t)

	if _, err := fx.service.Login(context.Background(), "", testPassword, RequestInfo{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty identifier: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := fx.service.Login(context.Background(), "ravi@example.com", "", RequestInfo{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty password: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	login, err := fx.service.Login(context.Background(), user.Email, testPassword, RequestInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	refreshed, err := fx.service.Refresh(context.Background(), login.Tokens.RefreshToken, RequestInfo{ClientIP: "10.0.0.2"})
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if refreshed.Tokens.RefreshToken == login.Tokens.RefreshToken {
		t.Fatal("refresh must issue a new refresh token")
	}

	// The old token is spent: a second presentation loses.
	if _, err := fx.service.Refresh(context.Background(), login.Tokens.RefreshToken, RequestInfo{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("replayed refresh token: expected ErrInvalidToken, got %v", err)
	}

	if _, err := fx.ledger.FindValid(context.Background(), security.HashToken(refreshed.Tokens.RefreshToken), domain.TokenKindRefresh); err != nil {
		t.Fatalf("replacement token missing from ledger: %v", err)
	}
	if fx.ledger.validCount(user.ID, domain.TokenKindRefresh) != 1 {
		t.Fatalf("expected exactly one live refresh token, got %d", fx.ledger.validCount(user.ID, domain.TokenKindRefresh))
	}
}

func TestRefreshConcurrentPresentationsHaveOneWinner(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	login, err := fx.service.Login(context.Background(), user.Email, testPassword, RequestInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	const racers = 8
	errs := make([]error, racers)

	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = fx.service.Refresh(context.Background(), login.Tokens.RefreshToken, RequestInfo{})
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
		t.Fatalf("expected exactly one winning rotation, got %d", wins)
	}
	if got := fx.ledger.validCount(user.ID, domain.TokenKindRefresh); got != 1 {
		t.Fatalf("expected exactly one live refresh token, got %d", got)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	login, err := fx.service.Login(context.Background(), user.Email, testPassword, RequestInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if _, err := fx.service.Refresh(context.Background(), login.Tokens.AccessToken, RequestInfo{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token presented as refresh: expected ErrInvalidToken, got %v", err)
	}
}

func TestRefreshMalformedToken(t *testing.T) {
	fx := newAuthFixture(t)

	if _, err := fx.service.Refresh(context.Background(), "not-a-jwt", RequestInfo{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := fx.service.Refresh(context.Background(), "  ", RequestInfo{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("blank token: expected ErrInvalidToken, got %v", err)
	}
}

func TestRefreshInactiveAccount(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	login, err := fx.service.Login(context.Background(), user.Email, testPassword, RequestInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := fx.users.Deactivate(context.Background(), user.ID, fx.now); err != nil {
		t.Fatalf("Deactivate returned error: %v", err)
	}

	if _, err := fx.service.Refresh(context.Background(), login.Tokens.RefreshToken, RequestInfo{}); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestRefreshTokenUnknownToLedger(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	// A validly signed refresh token with no ledger record (e.g. already
	// revoked via logout-all) must be rejected.
	pair, err := fx.service.issuer.IssuePair(user)
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	if _, err := fx.service.Refresh(context.Background(), pair.RefreshToken, RequestInfo{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	login, err := fx.service.Login(context.Background(), user.Email, testPassword, RequestInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := fx.service.Logout(context.Background(), login.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, err := fx.service.Refresh(context.Background(), login.Tokens.RefreshToken, RequestInfo{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("logged-out token should not refresh, got %v", err)
	}
}

func TestLogoutUnknownTokenSucceeds(t *testing.T) {
	fx := newAuthFixture(t)

	if err := fx.service.Logout(context.Background(), "unknown-token"); err != nil {
		t.Fatalf("logout with unknown token must succeed, got %v", err)
	}
	if err := fx.service.Logout(context.Background(), ""); err != nil {
		t.Fatalf("logout with empty token must succeed, got %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	for i := 0; i < 3; i++ {
		if _, err := fx.service.Login(context.Background(), user.Email, testPassword, RequestInfo{}); err != nil {
			t.Fatalf("Login %d returned error: %v", i, err)
		}
	}

	revoked, err := fx.service.LogoutAll(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("LogoutAll returned error: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("expected 3 revoked sessions, got %d", revoked)
	}
	if fx.ledger.validCount(user.ID, domain.TokenKindRefresh) != 0 {
		t.Fatal("live refresh tokens remain after logout-all")
	}

	if len(fx.events.sessionsInvalidated) != 1 {
		t.Fatalf("expected one SessionsInvalidated event, got %d", len(fx.events.sessionsInvalidated))
	}
	event := fx.events.sessionsInvalidated[0]
	if event.Reason != "logout_all" || event.TokensRevoked != 3 || event.UserID != user.ID {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}

func TestLogoutAllWithNoSessionsPublishesNothing(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	revoked, err := fx.service.LogoutAll(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("LogoutAll returned error: %v", err)
	}
	if revoked != 0 {
		t.Fatalf("expected 0 revoked sessions, got %d", revoked)
	}
	if len(fx.events.sessionsInvalidated) != 0 {
		t.Fatal("no event should be published when nothing was revoked")
	}
}

func TestLogoutAllRevokesPendingSecretsToo(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	reset := domain.SessionToken{
		ID:         "reset-1",
		UserID:     user.ID,
		Kind:       domain.TokenKindPasswordReset,
		SecretHash: "reset-hash",
		IssuedAt:   fx.now,
		ExpiresAt:  fx.now.Add(time.Hour),
		Valid:      true,
	}
	if err := fx.ledger.Create(context.Background(), reset); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := fx.service.Login(context.Background(), user.Email, testPassword, RequestInfo{}); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	revoked, err := fx.service.LogoutAll(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("LogoutAll returned error: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("expected 2 revoked records, got %d", revoked)
	}
	if fx.ledger.validCount(user.ID, domain.TokenKindPasswordReset) != 0 {
		t.Fatal("logout-all must revoke pending password reset tokens")
	}
	if fx.ledger.validCount(user.ID, domain.TokenKindRefresh) != 0 {
		t.Fatal("logout-all must revoke refresh tokens")
	}
}

func TestParseAccessToken(t *testing.T) {
	user := activeUser(t)
	fx := newAuthFixture(t, user)

	login, err := fx.service.Login(context.Background(), user.Email, testPassword, RequestInfo{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	claims, err := fx.service.ParseAccessToken(login.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken returned error: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("unexpected uid claim: %s", claims.UserID)
	}

	if _, err := fx.service.ParseAccessToken(login.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}
	if _, err := fx.service.ParseAccessToken(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: expected ErrInvalidToken, got %v", err)
	}
}
