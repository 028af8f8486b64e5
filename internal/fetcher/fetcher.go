// Package fetcher resolves a handle and materializes its follower/following
// list by paging through the collaborator.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"massdm/internal/insta"
	logx "massdm/pkg/logx"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Result is the fetch envelope returned to the HTTP layer. Warning means
// "throttled, try later" and is deliberately not an error.
type Result struct {
	Status  Status       `json:"status"`
	Users   []insta.User `json:"users"`
	Message string       `json:"message,omitempty"`
}

// Gate is the session gate read contract.
type Gate interface {
	Require() (insta.Client, error)
}

type Config struct {
	// PagesPerSec throttles page requests against the collaborator.
	PagesPerSec float64
}

type Fetcher struct {
	gate    Gate
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, gate Gate, log logx.Logger) *Fetcher {
	pps := cfg.PagesPerSec
	if pps <= 0 {
		pps = 2
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fetcher{
		gate:    gate,
		limiter: rate.NewLimiter(rate.Limit(pps), 1),
		log:     log,
	}
}

// Resolve maps a handle to its opaque identifier. A handle that does not
// resolve reports insta.ErrNotFound regardless of whether the account is
// private or nonexistent; the collaborator cannot tell them apart.
func (f *Fetcher) Resolve(ctx context.Context, handle string) (int64, error) {
	client, err := f.gate.Require()
	if err != nil {
		return 0, err
	}
	f.log.Info(fmt.Sprintf("Fetching user ID for %s...", handle))
	id, err := client.ResolveUser(ctx, handle)
	if err != nil {
		f.log.Error(fmt.Sprintf("Failed to get user ID for %s", handle), logx.Err(err))
		return 0, err
	}
	if id == 0 {
		return 0, insta.ErrNotFound
	}
	f.log.Info(fmt.Sprintf("Found user ID: %d for %s", id, handle))
	return id, nil
}

// Fetch pages through the full connection list and returns it materialized.
// A rate-limit signal mid-fetch yields a warning result, any other
// collaborator failure an error result.
func (f *Fetcher) Fetch(ctx context.Context, userID int64, kind insta.ListKind) Result {
	client, err := f.gate.Require()
	if err != nil {
		f.log.Error("Cannot fetch list.", logx.Err(err))
		return Result{Status: StatusError, Message: "Not logged in."}
	}

	f.log.Info(fmt.Sprintf("Fetching %s for user ID: %d", kind, userID))

	users := make([]insta.User, 0)
	cursor := ""
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return Result{Status: StatusError, Message: err.Error()}
		}
		page, err := client.Connections(ctx, userID, kind, cursor)
		if err != nil {
			if errors.Is(err, insta.ErrRateLimited) {
				f.log.Warn("Rate limit hit while fetching list. Wait a bit before trying again.")
				return Result{Status: StatusWarning, Message: "Rate limit hit. Please wait before fetching another list."}
			}
			f.log.Error(fmt.Sprintf("Failed to fetch %s for user ID %d", kind, userID), logx.Err(err))
			return Result{Status: StatusError, Message: "Failed to fetch list: " + err.Error()}
		}
		users = append(users, page.Users...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	f.log.Info(fmt.Sprintf("Successfully fetched %d %s.", len(users), kind))
	return Result{Status: StatusSuccess, Users: users}
}
