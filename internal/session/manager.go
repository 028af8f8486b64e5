// Package session owns the lifecycle of the single process-wide Instagram
// session and gates every component that needs the network capability.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"massdm/internal/insta"
	logx "massdm/pkg/logx"
)

var ErrNotLoggedIn = errors.New("not logged in")

// Status mirrors the wire-level login outcome vocabulary.
type Status string

const (
	StatusSuccess           Status = "success"
	StatusTwoFactorRequired Status = "2fa_required"
	StatusChallengeRequired Status = "challenge_required"
	StatusError             Status = "error"
)

// LoginResult is what the HTTP layer returns verbatim for auth endpoints.
type LoginResult struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Store is the subset of persistence the manager needs for the optional
// durable session cache. A nil Store disables caching.
type Store interface {
	PutSession(ctx context.Context, blob []byte) error
	GetSession(ctx context.Context) ([]byte, bool, error)
}

// Manager holds the capability object and its usability state.
//
// There is exactly one Manager per process. Components must fetch the
// capability through Require() for every operation; holding it across
// operations would miss a mid-run invalidation.
type Manager struct {
	newClient func() (insta.Client, error)
	store     Store
	log       logx.Logger

	mu      sync.Mutex
	client  insta.Client
	pending bool // a two-factor login is half-finished on client
}

func NewManager(newClient func() (insta.Client, error), store Store, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{newClient: newClient, store: store, log: log}
}

// Restore primes the client from the durable session cache, if present and
// still usable. Called once at boot; failures only log.
func (m *Manager) Restore(ctx context.Context) {
	if m.store == nil {
		return
	}
	blob, ok, err := m.store.GetSession(ctx)
	if err != nil || !ok {
		if err != nil {
			m.log.Warn("session cache read failed", logx.Err(err))
		}
		return
	}
	client, err := m.newClient()
	if err != nil {
		m.log.Warn("session restore: client init failed", logx.Err(err))
		return
	}
	if err := client.RestoreSession(blob); err != nil {
		m.log.Warn("session cache invalid; discarding", logx.Err(err))
		return
	}
	if !client.LoggedIn() {
		m.log.Info("cached session is not logged in; ignoring")
		return
	}
	m.mu.Lock()
	m.client = client
	m.pending = false
	m.mu.Unlock()
	m.log.Info("session restored from cache")
}

// Login starts a fresh session. Any previous session is replaced, even on
// failure, matching the collaborator's one-client-at-a-time model.
func (m *Manager) Login(ctx context.Context, username, password string) LoginResult {
	m.log.Info(fmt.Sprintf("Attempting to log in as %s...", username))

	client, err := m.newClient()
	if err != nil {
		m.clear()
		m.log.Error("client init failed", logx.Err(err))
		return LoginResult{Status: StatusError, Message: "login failed: " + err.Error()}
	}

	err = client.Login(ctx, username, password)
	switch {
	case err == nil:
		m.mu.Lock()
		m.client = client
		m.pending = false
		m.mu.Unlock()
		m.log.Info(fmt.Sprintf("Successfully logged in as %s", username))
		m.snapshot(ctx)
		return LoginResult{Status: StatusSuccess, Message: "Logged in successfully."}

	case isTwoFactor(err):
		// Keep the half-initialized client; CompleteTwoFactor finishes on it.
		m.mu.Lock()
		m.client = client
		m.pending = true
		m.mu.Unlock()
		m.log.Warn("Login requires 2FA.")
		return LoginResult{Status: StatusTwoFactorRequired, Message: "2FA required. Check your email/phone for the code."}

	case errors.Is(err, insta.ErrChallengeRequired):
		m.clear()
		m.log.Warn("Login requires challenge (e.g. email/phone verification link).")
		return LoginResult{Status: StatusChallengeRequired, Message: "Challenge required. Please try logging in manually on Instagram first or check email/phone."}

	case errors.Is(err, insta.ErrBadCredentials):
		m.clear()
		m.log.Error("Login failed: Incorrect password.")
		return LoginResult{Status: StatusError, Message: "Incorrect password."}

	default:
		m.clear()
		m.log.Error("Login failed.", logx.Err(err))
		return LoginResult{Status: StatusError, Message: "Login failed: " + err.Error()}
	}
}

// CompleteTwoFactor finishes a login interrupted by a two-factor challenge.
func (m *Manager) CompleteTwoFactor(ctx context.Context, code string) LoginResult {
	m.mu.Lock()
	client := m.client
	pending := m.pending
	m.mu.Unlock()

	if client == nil || !pending {
		m.log.Error("2FA completion failed: no two-factor login pending.")
		return LoginResult{Status: StatusError, Message: "2FA process not initiated correctly. Please try logging in again."}
	}

	m.log.Info("Attempting to complete 2FA...")
	err := client.CompleteTwoFactor(ctx, code)
	switch {
	case err == nil:
		m.mu.Lock()
		m.pending = false
		m.mu.Unlock()
		m.log.Info("2FA successfully completed.")
		m.snapshot(ctx)
		return LoginResult{Status: StatusSuccess, Message: "Logged in successfully after 2FA."}

	case errors.Is(err, insta.ErrBadCredentials):
		m.clear()
		m.log.Error("2FA completion failed: Incorrect 2FA code.")
		return LoginResult{Status: StatusError, Message: "Incorrect 2FA code."}

	default:
		m.clear()
		m.log.Error("2FA completion failed.", logx.Err(err))
		return LoginResult{Status: StatusError, Message: "2FA completion failed: " + err.Error()}
	}
}

// IsLoggedIn reports whether a usable capability exists right now.
func (m *Manager) IsLoggedIn() bool {
	m.mu.Lock()
	client := m.client
	pending := m.pending
	m.mu.Unlock()
	return client != nil && !pending && client.LoggedIn()
}

// Require returns the capability or ErrNotLoggedIn. Callers must not keep
// the returned client beyond the current operation.
func (m *Manager) Require() (insta.Client, error) {
	m.mu.Lock()
	client := m.client
	pending := m.pending
	m.mu.Unlock()
	if client == nil || pending || !client.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	return client, nil
}

// Invalidate drops the session, typically after a fatal collaborator error.
func (m *Manager) Invalidate(reason string) {
	m.clear()
	m.log.Warn("session invalidated", logx.String("reason", reason))
}

// Snapshot re-persists the current session blob (cookies rotate over time).
// No-op when logged out or when caching is disabled.
func (m *Manager) Snapshot(ctx context.Context) {
	if m.IsLoggedIn() {
		m.snapshot(ctx)
	}
}

func (m *Manager) snapshot(ctx context.Context) {
	if m.store == nil {
		return
	}
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return
	}
	blob, err := client.ExportSession()
	if err != nil {
		m.log.Warn("session export failed", logx.Err(err))
		return
	}
	if err := m.store.PutSession(ctx, blob); err != nil {
		m.log.Warn("session cache write failed", logx.Err(err))
	}
}

func (m *Manager) clear() {
	m.mu.Lock()
	m.client = nil
	m.pending = false
	m.mu.Unlock()
}

func isTwoFactor(err error) bool {
	var tfa *insta.TwoFactorRequiredError
	return errors.As(err, &tfa)
}
