package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"vision-chat/internal/config"
	"vision-chat/internal/logger"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var (
	// ErrPasswordIncorrect is the only failure detail ever shown to the user
	ErrPasswordIncorrect = errors.New("Password incorrect")
	// ErrRateLimited is returned when login attempts arrive faster than allowed
	ErrRateLimited = errors.New("too many login attempts")
)

// GateState is the access state of one browser session
type GateState int

const (
	Locked GateState = iota
	Unlocked
)

func (s GateState) String() string {
	if s == Unlocked {
		return "unlocked"
	}
	return "locked"
}

// Gate starts Locked and can only move to Unlocked, which is terminal
type Gate struct {
	mu    sync.RWMutex
	state GateState
}

// NewGate returns a locked gate
func NewGate() *Gate {
	return &Gate{}
}

func (g *Gate) State() GateState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

func (g *Gate) IsUnlocked() bool {
	return g.State() == Unlocked
}

func (g *Gate) unlock() {
	g.mu.Lock()
	g.state = Unlocked
	g.mu.Unlock()
}

// Authenticate reports whether candidate equals expected in constant time.
// Both sides are hashed first so the comparison does not leak the length.
func Authenticate(candidate, expected string) bool {
	c := sha256.Sum256([]byte(candidate))
	e := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(c[:], e[:]) == 1
}

// Authenticator checks login attempts against the configured secret
type Authenticator struct {
	password     string
	passwordHash []byte
	limiter      *rate.Limiter
}

// NewAuthenticator builds an Authenticator; a bcrypt hash takes precedence over a plain password
func NewAuthenticator(authConfig config.AuthConfig) *Authenticator {
	limit := rate.Inf
	if authConfig.LoginRatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(authConfig.LoginRatePerMinute))
	}
	burst := authConfig.LoginBurst
	if burst < 1 {
		burst = 1
	}

	a := &Authenticator{
		password: authConfig.Password,
		limiter:  rate.NewLimiter(limit, burst),
	}
	if authConfig.PasswordHash != "" {
		a.passwordHash = []byte(authConfig.PasswordHash)
	}
	return a
}

func (a *Authenticator) verify(candidate string) bool {
	if a.passwordHash != nil {
		return bcrypt.CompareHashAndPassword(a.passwordHash, []byte(candidate)) == nil
	}
	return Authenticate(candidate, a.password)
}

// Login unlocks gate when candidate matches. A failed attempt leaves the gate
// locked and may be retried. An already unlocked gate stays unlocked.
func (a *Authenticator) Login(gate *Gate, candidate string) error {
	if gate.IsUnlocked() {
		return nil
	}

	if !a.limiter.Allow() {
		logger.Log.Warn("Login rate limit exceeded")
		return ErrRateLimited
	}

	if !a.verify(candidate) {
		logger.Log.Info("Login failed")
		return ErrPasswordIncorrect
	}

	gate.unlock()
	logger.Log.Info("Session unlocked")
	return nil
}
