package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tejash-sr/agri/internal/core/domain"
	"github.com/tejash-sr/agri/internal/infra/security"
	"github.com/tejash-sr/agri/internal/usecase"
)

func newAuthTestService(t *testing.T) (*usecase.AuthService, *security.TokenIssuer) {
	t.Helper()

	provider, err := security.NewEphemeralKeyProvider("test-key-1")
	if err != nil {
		t.Fatalf("NewEphemeralKeyProvider returned error: %v", err)
	}
	issuer, err := security.NewTokenIssuer(security.NewJWTManager(provider), "test-key-1", "agri-identity-test", 30*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}

	// Token parsing is purely cryptographic, no storage needed.
	return usecase.NewAuthService(nil, nil, issuer, nil, zap.NewNop()), issuer
}

func newProtectedRouter(service *usecase.AuthService, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	chain := append([]gin.HandlerFunc{RequireAuth(service)}, extra...)
	router.GET("/protected", append(chain, func(c *gin.Context) {
		userID, _ := GetAuthenticatedUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})...)
	return router
}

func issueAccessToken(t *testing.T, issuer *security.TokenIssuer, role domain.Role) string {
	t.Helper()

	pair, err := issuer.IssuePair(&domain.User{
		ID:    "user-1",
		Email: "ravi@example.com",
		Role:  role,
	})
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}
	return pair.AccessToken
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	service, issuer := newAuthTestService(t)
	router := newProtectedRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+issueAccessToken(t, issuer, domain.RoleFarmer))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	service, _ := newAuthTestService(t)
	router := newProtectedRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/protected", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireAuthRejectsMalformedHeader(t *testing.T) {
	service, issuer := newAuthTestService(t)
	router := newProtectedRouter(service)
	token := issueAccessToken(t, issuer, domain.RoleFarmer)

	cases := []string{
		token,
		"Basic " + token,
		"Bearer ",
		"Bearer garbage",
	}
	for _, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rr.Code)
		}
	}
}

func TestRequireAuthRejectsRefreshToken(t *testing.T) {
	service, issuer := newAuthTestService(t)
	router := newProtectedRouter(service)

	pair, err := issuer.IssuePair(&domain.User{ID: "user-1", Role: domain.RoleFarmer})
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token on a protected route: expected 401, got %d", rr.Code)
	}
}

func TestRequireRoleHierarchy(t *testing.T) {
	service, issuer := newAuthTestService(t)
	router := newProtectedRouter(service, RequireRole(domain.RoleExpert))

	cases := []struct {
		role domain.Role
		want int
	}{
		{domain.RoleFarmer, http.StatusForbidden},
		{domain.RoleTrader, http.StatusForbidden},
		{domain.RoleExpert, http.StatusOK},
		{domain.RoleAdmin, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+issueAccessToken(t, issuer, tc.role))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != tc.want {
			t.Fatalf("role %s: expected %d, got %d", tc.role, tc.want, rr.Code)
		}
	}
}

func TestRequireRoleWithoutAuthentication(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/admin", RequireRole(domain.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
