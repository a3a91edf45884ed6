package security

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/tejash-sr/agri/internal/core/domain"
)

const (
	// TokenTypeAccess marks short-lived API credentials.
	TokenTypeAccess = "access"
	// TokenTypeRefresh marks ledger-backed rotation credentials.
	TokenTypeRefresh = "refresh"
)

var (
	// ErrKeyIDMissing indicates no kid is associated with the supplied key.
	ErrKeyIDMissing = errors.New("jwt: missing key identifier")

	// ErrKeyNotRegistered indicates a supplied kid is unknown to the JWT manager.
	ErrKeyNotRegistered = errors.New("jwt: key not registered")

	// ErrTokenInvalid covers malformed, expired, mis-signed, and mis-typed tokens.
	ErrTokenInvalid = errors.New("jwt: token invalid")
)

// JWTManager coordinates signing key retrieval and JWKS generation.
type JWTManager struct {
	KeyProvider KeyProvider
	mu          sync.RWMutex
	publicKeys  map[string]*rsa.PublicKey
}

// NewJWTManager constructs a JWTManager for the supplied key provider.
func NewJWTManager(provider KeyProvider) *JWTManager {
	mgr := &JWTManager{
		KeyProvider: provider,
		publicKeys:  make(map[string]*rsa.PublicKey),
	}

	if enumerator, ok := provider.(interface {
		ListVerificationKeys() map[string]*rsa.PublicKey
	}); ok {
		for kid, key := range enumerator.ListVerificationKeys() {
			_ = mgr.RegisterPublicKey(kid, key)
		}
	}

	return mgr
}

// RegisterPublicKey associates a kid with a public key for JWKS publication and future lookup.
func (m *JWTManager) RegisterPublicKey(kid string, key *rsa.PublicKey) error {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return ErrKeyIDMissing
	}
	if key == nil {
		return fmt.Errorf("jwt: public key for %s is nil", kid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.publicKeys[kid] = key
	return nil
}

// GetSigningKey retrieves the active signing key from the provider.
func (m *JWTManager) GetSigningKey() (*rsa.PrivateKey, error) {
	if m.KeyProvider == nil {
		return nil, fmt.Errorf("jwt: key provider not configured")
	}
	return m.KeyProvider.GetSigningKey()
}

// GetVerificationKey retrieves a public key by kid.
func (m *JWTManager) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, ErrKeyIDMissing
	}

	m.mu.RLock()
	key, ok := m.publicKeys[kid]
	m.mu.RUnlock()
	if ok {
		return key, nil
	}

	if m.KeyProvider != nil {
		fetched, err := m.KeyProvider.GetVerificationKey(kid)
		if err == nil {
			_ = m.RegisterPublicKey(kid, fetched)
			return fetched, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrKeyNotRegistered, kid)
}

// JWKS produces the JSON Web Key Set for registered keys.
func (m *JWTManager) JWKS() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.publicKeys) == 0 {
		return json.Marshal(struct {
			Keys []any `json:"keys"`
		}{Keys: []any{}})
	}

	keys := make([]map[string]string, 0, len(m.publicKeys))
	for kid, key := range m.publicKeys {
		if key == nil {
			continue
		}
		keys = append(keys, buildJWK(kid, key))
	}

	payload := map[string]any{"keys": keys}
	return json.Marshal(payload)
}

func buildJWK(kid string, key *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

// Claims carries user identity inside access and refresh tokens.
type Claims struct {
	UserID    string `json:"uid"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair bundles the credentials returned on login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// TokenIssuer signs and verifies RS256 user tokens.
type TokenIssuer struct {
	manager    *JWTManager
	kid        string
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer constructs a TokenIssuer signing under the given kid.
func NewTokenIssuer(manager *JWTManager, kid, issuer string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if manager == nil {
		return nil, fmt.Errorf("jwt: manager is required")
	}
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, ErrKeyIDMissing
	}
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = domain.RefreshTokenTTL
	}
	return &TokenIssuer{
		manager:    manager,
		kid:        kid,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL reports the configured access token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// IssuePair signs a fresh access/refresh token pair for the user.
func (t *TokenIssuer) IssuePair(user *domain.User) (*TokenPair, error) {
	if user == nil {
		return nil, fmt.Errorf("jwt: user is required")
	}

	now := time.Now().UTC()

	access, err := t.sign(user, TokenTypeAccess, now, t.accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := t.sign(user, TokenTypeRefresh, now, t.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(t.accessTTL.Seconds()),
	}, nil
}

func (t *TokenIssuer) sign(user *domain.User, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(user.Role),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signingKey, err := t.manager.GetSigningKey()
	if err != nil {
		return "", fmt.Errorf("jwt: get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = t.kid

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// Parse verifies signature, expiry, and token type. It performs no storage
// lookups, so verification stays purely cryptographic.
func (t *TokenIssuer) Parse(tokenString, expectedType string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrTokenInvalid, token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		return t.manager.GetVerificationKey(kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != expectedType {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenInvalid, claims.TokenType)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}

// KID returns the kid used for signing.
func (t *TokenIssuer) KID() string { return t.kid }
