package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrKeyNotFound indicates the requested kid has no registered key material.
var ErrKeyNotFound = errors.New("key not found")

// KeyProvider defines the interface for providing cryptographic keys.
type KeyProvider interface {
	GetSigningKey() (*rsa.PrivateKey, error)
	GetVerificationKey(kid string) (*rsa.PublicKey, error)
}

// FileKeyProvider reads RSA key material from a directory of PEM files.
// The file name without extension becomes the kid. The first private key
// found is used for signing.
type FileKeyProvider struct {
	keys       map[string]*rsa.PublicKey
	signingKey *rsa.PrivateKey
	signingKID string
}

// NewFileKeyProvider loads every PEM file in keyDir.
func NewFileKeyProvider(keyDir string) (*FileKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}

	provider := &FileKeyProvider{
		keys: make(map[string]*rsa.PublicKey),
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", path, err)
		}

		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("decode PEM block from %s", path)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))

		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			provider.adoptPrivateKey(kid, key)
			continue
		}

		if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PrivateKey); ok {
				provider.adoptPrivateKey(kid, rsaKey)
				continue
			}
		}

		if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
			provider.keys[kid] = key
			continue
		}

		if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PublicKey); ok {
				provider.keys[kid] = rsaKey
				continue
			}
		}

		return nil, fmt.Errorf("parse key from file %s", path)
	}

	if provider.signingKey == nil {
		return nil, errors.New("no private key found for signing")
	}

	return provider, nil
}

func (p *FileKeyProvider) adoptPrivateKey(kid string, key *rsa.PrivateKey) {
	if p.signingKey == nil {
		p.signingKey = key
		p.signingKID = kid
	}
	p.keys[kid] = &key.PublicKey
}

// GetSigningKey returns the private key for signing tokens.
func (p *FileKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	return p.signingKey, nil
}

// GetVerificationKey returns the public key for verifying tokens.
func (p *FileKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// SigningKID returns the kid of the active signing key.
func (p *FileKeyProvider) SigningKID() string {
	return p.signingKID
}

// ListVerificationKeys enumerates all loaded public keys for JWKS publication.
func (p *FileKeyProvider) ListVerificationKeys() map[string]*rsa.PublicKey {
	out := make(map[string]*rsa.PublicKey, len(p.keys))
	for kid, key := range p.keys {
		out[kid] = key
	}
	return out
}

// EphemeralKeyProvider generates a fresh RSA key pair in memory. Intended for
// local development and tests where no key files are provisioned.
type EphemeralKeyProvider struct {
	kid string
	key *rsa.PrivateKey
}

// NewEphemeralKeyProvider generates a 2048-bit key pair under the given kid.
func NewEphemeralKeyProvider(kid string) (*EphemeralKeyProvider, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	if kid = strings.TrimSpace(kid); kid == "" {
		kid = "ephemeral"
	}
	return &EphemeralKeyProvider{kid: kid, key: key}, nil
}

// GetSigningKey returns the generated private key.
func (p *EphemeralKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	return p.key, nil
}

// GetVerificationKey returns the public half when the kid matches.
func (p *EphemeralKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	if kid != p.kid {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return &p.key.PublicKey, nil
}

// SigningKID returns the kid of the generated key.
func (p *EphemeralKeyProvider) SigningKID() string {
	return p.kid
}

// ListVerificationKeys enumerates the single public key.
func (p *EphemeralKeyProvider) ListVerificationKeys() map[string]*rsa.PublicKey {
	return map[string]*rsa.PublicKey{p.kid: &p.key.PublicKey}
}

// NewKeyProvider selects a provider: a file-backed one when keyDir is set,
// otherwise an ephemeral in-memory pair.
func NewKeyProvider(keyDir, kid string) (KeyProvider, error) {
	if strings.TrimSpace(keyDir) != "" {
		return NewFileKeyProvider(keyDir)
	}
	return NewEphemeralKeyProvider(kid)
}
