package routes_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tejash-sr/agri/internal/infra/config"
	"github.com/tejash-sr/agri/internal/infra/security"
	httproutes "github.com/tejash-sr/agri/internal/transport/http/routes"
)

func testDependencies(t *testing.T) httproutes.Dependencies {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider, err := security.NewEphemeralKeyProvider("test-key-1")
	if err != nil {
		t.Fatalf("NewEphemeralKeyProvider returned error: %v", err)
	}

	return httproutes.Dependencies{
		Config:     &config.AppConfig{App: config.AppSettings{Env: "test"}},
		Logger:     zap.NewNop(),
		JWTManager: security.NewJWTManager(provider),
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := httproutes.Register(testDependencies(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadinessWithoutCheckers(t *testing.T) {
	r := httproutes.Register(testDependencies(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/readyz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestJWKSEndpoint(t *testing.T) {
	r := httproutes.Register(testDependencies(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode JWKS: %v", err)
	}
	if len(doc.Keys) != 1 {
		t.Fatalf("expected one published key, got %d", len(doc.Keys))
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	r := httproutes.Register(testDependencies(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/user/me", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}
