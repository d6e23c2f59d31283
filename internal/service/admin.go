package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// Errors for admin authentication.
var (
	ErrBadPassphrase   = errors.New("wrong passphrase")
	ErrTooManyAttempts = errors.New("too many login attempts")
)

// AdminAuth gates the admin view behind the shared passphrase. The passphrase
// is bcrypt-hashed at startup so it never sits in memory as plain text longer
// than necessary; successful logins get an opaque token that expires with the
// admin tab's session.
type AdminAuth struct {
	hash    []byte
	ttl     time.Duration
	limiter *rate.Limiter

	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

// NewAdminAuth hashes the configured passphrase and prepares the token store.
// Login attempts are limited to one per second with a small burst, which is
// plenty for a human and a wall for a brute-forcer.
func NewAdminAuth(passphrase string, ttl time.Duration) (*AdminAuth, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &AdminAuth{
		hash:    hash,
		ttl:     ttl,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		tokens:  make(map[string]time.Time),
		now:     time.Now,
	}, nil
}

// Login checks the passphrase and issues a session token.
func (a *AdminAuth) Login(passphrase string) (string, error) {
	if !a.limiter.Allow() {
		return "", ErrTooManyAttempts
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(passphrase)); err != nil {
		return "", ErrBadPassphrase
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked()
	a.tokens[token] = a.now().Add(a.ttl)
	return token, nil
}

// Validate reports whether a token is live, refreshing its expiry on use.
func (a *AdminAuth) Validate(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	expiry, ok := a.tokens[token]
	if !ok {
		return false
	}
	if a.now().After(expiry) {
		delete(a.tokens, token)
		return false
	}
	a.tokens[token] = a.now().Add(a.ttl)
	return true
}

// Logout invalidates a token. Navigating away from the admin view logs out.
func (a *AdminAuth) Logout(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, token)
}

func (a *AdminAuth) pruneLocked() {
	now := a.now()
	for token, expiry := range a.tokens {
		if now.After(expiry) {
			delete(a.tokens, token)
		}
	}
}
