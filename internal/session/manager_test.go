package session

import (
	"context"
	"errors"
	"testing"

	"massdm/internal/insta"
	logx "massdm/pkg/logx"
)

type fakeClient struct {
	insta.Client

	loginErr  error
	twoFAErr  error
	loggedIn  bool
	exported  []byte
	exportErr error
	restored  []byte
}

func (f *fakeClient) Login(_ context.Context, _, _ string) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	f.loggedIn = true
	return nil
}

func (f *fakeClient) CompleteTwoFactor(_ context.Context, _ string) error {
	if f.twoFAErr != nil {
		return f.twoFAErr
	}
	f.loggedIn = true
	return nil
}

func (f *fakeClient) LoggedIn() bool { return f.loggedIn }

func (f *fakeClient) ExportSession() ([]byte, error) {
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	if f.exported != nil {
		return f.exported, nil
	}
	return []byte(`{"logged_in":true}`), nil
}

func (f *fakeClient) RestoreSession(blob []byte) error {
	f.restored = blob
	f.loggedIn = true
	return nil
}

type memStore struct {
	blob []byte
	puts int
}

func (s *memStore) PutSession(_ context.Context, blob []byte) error {
	s.blob = append([]byte(nil), blob...)
	s.puts++
	return nil
}

func (s *memStore) GetSession(_ context.Context) ([]byte, bool, error) {
	if s.blob == nil {
		return nil, false, nil
	}
	return s.blob, true, nil
}

func newManager(client *fakeClient, store Store) *Manager {
	return NewManager(func() (insta.Client, error) { return client, nil }, store, logx.Nop())
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	store := &memStore{}
	m := newManager(client, store)

	res := m.Login(context.Background(), "alice", "hunter2")
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q, want success", res.Status)
	}
	if !m.IsLoggedIn() {
		t.Fatal("manager should report logged in")
	}
	if store.puts != 1 {
		t.Fatalf("session cache writes = %d, want 1", store.puts)
	}
	if _, err := m.Require(); err != nil {
		t.Fatalf("Require() error: %v", err)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	t.Parallel()
	client := &fakeClient{loginErr: insta.ErrBadCredentials}
	m := newManager(client, nil)

	res := m.Login(context.Background(), "alice", "wrong")
	if res.Status != StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if res.Message != "Incorrect password." {
		t.Fatalf("message = %q", res.Message)
	}
	if m.IsLoggedIn() {
		t.Fatal("manager should not report logged in")
	}
}

func TestLoginChallengeRequired(t *testing.T) {
	t.Parallel()
	client := &fakeClient{loginErr: insta.ErrChallengeRequired}
	m := newManager(client, nil)

	res := m.Login(context.Background(), "alice", "hunter2")
	if res.Status != StatusChallengeRequired {
		t.Fatalf("status = %q, want challenge_required", res.Status)
	}
	if m.IsLoggedIn() {
		t.Fatal("challenge must not leave a usable session")
	}
}

func TestLoginTwoFactorFlow(t *testing.T) {
	t.Parallel()
	client := &fakeClient{loginErr: &insta.TwoFactorRequiredError{Identifier: "abc"}}
	store := &memStore{}
	m := newManager(client, store)

	res := m.Login(context.Background(), "alice", "hunter2")
	if res.Status != StatusTwoFactorRequired {
		t.Fatalf("status = %q, want 2fa_required", res.Status)
	}
	// Half-finished login: not usable yet.
	if m.IsLoggedIn() {
		t.Fatal("pending 2FA must not count as logged in")
	}
	if _, err := m.Require(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("Require() = %v, want ErrNotLoggedIn", err)
	}

	res = m.CompleteTwoFactor(context.Background(), "123456")
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q, want success", res.Status)
	}
	if !m.IsLoggedIn() {
		t.Fatal("manager should report logged in after 2FA")
	}
	if store.puts != 1 {
		t.Fatalf("session cache writes = %d, want 1", store.puts)
	}
}

func TestCompleteTwoFactorWithoutPendingLogin(t *testing.T) {
	t.Parallel()
	m := newManager(&fakeClient{}, nil)
	res := m.CompleteTwoFactor(context.Background(), "123456")
	if res.Status != StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
}

func TestCompleteTwoFactorBadCode(t *testing.T) {
	t.Parallel()
	client := &fakeClient{loginErr: &insta.TwoFactorRequiredError{Identifier: "abc"}}
	m := newManager(client, nil)
	m.Login(context.Background(), "alice", "hunter2")

	client.twoFAErr = insta.ErrBadCredentials
	res := m.CompleteTwoFactor(context.Background(), "000000")
	if res.Status != StatusError || res.Message != "Incorrect 2FA code." {
		t.Fatalf("result = %+v", res)
	}
	if m.IsLoggedIn() {
		t.Fatal("failed 2FA must clear the session")
	}
}

func TestRequireAfterInvalidate(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	m := newManager(client, nil)
	m.Login(context.Background(), "alice", "hunter2")

	m.Invalidate("login_required from collaborator")
	if _, err := m.Require(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("Require() = %v, want ErrNotLoggedIn", err)
	}
}

func TestRequireReflectsClientState(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	m := newManager(client, nil)
	m.Login(context.Background(), "alice", "hunter2")

	// The collaborator can flip the session dead underneath us.
	client.loggedIn = false
	if _, err := m.Require(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("Require() = %v, want ErrNotLoggedIn", err)
	}
}

func TestRestoreFromCache(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	store := &memStore{blob: []byte(`{"logged_in":true}`)}
	m := newManager(client, store)

	m.Restore(context.Background())
	if !m.IsLoggedIn() {
		t.Fatal("session should be restored from cache")
	}
	if string(client.restored) != `{"logged_in":true}` {
		t.Fatalf("restored blob = %q", client.restored)
	}
}

func TestRestoreNoCacheEntry(t *testing.T) {
	t.Parallel()
	m := newManager(&fakeClient{}, &memStore{})
	m.Restore(context.Background())
	if m.IsLoggedIn() {
		t.Fatal("nothing to restore, must stay logged out")
	}
}

func TestSnapshotPersistsRotatedSession(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	store := &memStore{}
	m := newManager(client, store)
	m.Login(context.Background(), "alice", "hunter2")

	client.exported = []byte(`{"logged_in":true,"rotated":true}`)
	m.Snapshot(context.Background())
	if store.puts != 2 {
		t.Fatalf("session cache writes = %d, want 2", store.puts)
	}
	if string(store.blob) != `{"logged_in":true,"rotated":true}` {
		t.Fatalf("cached blob = %q", store.blob)
	}
}
