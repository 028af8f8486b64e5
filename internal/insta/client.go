// Package insta talks to the Instagram private web API. The rest of the
// application treats Client as an opaque capability: it never constructs one
// directly and never holds a reference beyond a single operation.
package insta

import (
	"context"
	"errors"
	"fmt"
)

// User is one account in a connection listing.
type User struct {
	PK       int64  `json:"pk"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// ListKind selects which side of the connection graph to page through.
type ListKind string

const (
	Followers ListKind = "followers"
	Following ListKind = "following"
)

func ParseListKind(s string) (ListKind, error) {
	switch ListKind(s) {
	case Followers, Following:
		return ListKind(s), nil
	default:
		return "", fmt.Errorf("invalid list type: %q (must be %q or %q)", s, Followers, Following)
	}
}

var (
	// ErrBadCredentials covers both a wrong password and a wrong two-factor code.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrChallengeRequired means the account must complete a checkpoint
	// challenge out of band before API access works.
	ErrChallengeRequired = errors.New("challenge required")
	// ErrRateLimited is the collaborator's throttle signal. It is a "slow
	// down" condition, not a hard failure.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound is returned for handles that do not resolve. The API does
	// not distinguish nonexistent from private-and-hidden accounts.
	ErrNotFound = errors.New("user not found")
)

// TwoFactorRequiredError interrupts a login that needs a second factor.
// Identifier must be echoed back when completing the login.
type TwoFactorRequiredError struct {
	Identifier string
}

func (e *TwoFactorRequiredError) Error() string { return "two factor authentication required" }

// APIError is any other collaborator failure, kept with enough detail for
// per-recipient error reporting.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: api status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Page is one chunk of a connection listing. NextCursor is empty on the
// last page.
type Page struct {
	Users      []User
	NextCursor string
}

// Client is the capability object guarding all network operations.
//
// Login may return *TwoFactorRequiredError; the caller then finishes the
// flow with CompleteTwoFactor on the same Client instance.
type Client interface {
	Login(ctx context.Context, username, password string) error
	CompleteTwoFactor(ctx context.Context, code string) error
	LoggedIn() bool

	ResolveUser(ctx context.Context, handle string) (int64, error)
	Connections(ctx context.Context, userID int64, kind ListKind, cursor string) (Page, error)
	SendDirectMessage(ctx context.Context, userID int64, text string) error

	// ExportSession/RestoreSession serialize cookie and device state so a
	// usable session can survive a process restart.
	ExportSession() ([]byte, error)
	RestoreSession(data []byte) error
}
