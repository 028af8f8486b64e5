package fetcher

import (
	"context"
	"errors"
	"testing"

	"massdm/internal/insta"
	logx "massdm/pkg/logx"
)

type fakeClient struct {
	insta.Client

	resolved map[string]int64
	// pages keyed by cursor; "" is the first page.
	pages   map[string]insta.Page
	pageErr error
}

func (f *fakeClient) ResolveUser(_ context.Context, handle string) (int64, error) {
	id, ok := f.resolved[handle]
	if !ok {
		return 0, insta.ErrNotFound
	}
	return id, nil
}

func (f *fakeClient) Connections(_ context.Context, _ int64, _ insta.ListKind, cursor string) (insta.Page, error) {
	if f.pageErr != nil {
		return insta.Page{}, f.pageErr
	}
	return f.pages[cursor], nil
}

type fakeGate struct {
	client insta.Client
	err    error
}

func (g *fakeGate) Require() (insta.Client, error) { return g.client, g.err }

func newFetcher(gate Gate) *Fetcher {
	// High page rate so tests never sit in the limiter.
	return New(Config{PagesPerSec: 1000}, gate, logx.Nop())
}

func TestResolve(t *testing.T) {
	t.Parallel()
	client := &fakeClient{resolved: map[string]int64{"alice": 42}}
	f := newFetcher(&fakeGate{client: client})

	id, err := f.Resolve(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
}

func TestResolveNotFound(t *testing.T) {
	t.Parallel()
	client := &fakeClient{resolved: map[string]int64{}}
	f := newFetcher(&fakeGate{client: client})

	_, err := f.Resolve(context.Background(), "ghost")
	if !errors.Is(err, insta.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveGateClosed(t *testing.T) {
	t.Parallel()
	f := newFetcher(&fakeGate{err: errors.New("not logged in")})
	if _, err := f.Resolve(context.Background(), "alice"); err == nil {
		t.Fatal("expected error from closed gate")
	}
}

func TestFetchConcatenatesPages(t *testing.T) {
	t.Parallel()
	client := &fakeClient{pages: map[string]insta.Page{
		"": {
			Users:      []insta.User{{PK: 1, Username: "a"}, {PK: 2, Username: "b"}},
			NextCursor: "p2",
		},
		"p2": {
			Users: []insta.User{{PK: 3, Username: "c"}},
		},
	}}
	f := newFetcher(&fakeGate{client: client})

	res := f.Fetch(context.Background(), 42, insta.Followers)
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q, want success", res.Status)
	}
	if len(res.Users) != 3 {
		t.Fatalf("got %d users, want 3", len(res.Users))
	}
	for i, want := range []int64{1, 2, 3} {
		if res.Users[i].PK != want {
			t.Fatalf("users[%d].PK = %d, want %d", i, res.Users[i].PK, want)
		}
	}
}

func TestFetchEmptyListIsSuccess(t *testing.T) {
	t.Parallel()
	client := &fakeClient{pages: map[string]insta.Page{"": {}}}
	f := newFetcher(&fakeGate{client: client})

	res := f.Fetch(context.Background(), 42, insta.Following)
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q, want success", res.Status)
	}
	// Empty must serialize as [], not null.
	if res.Users == nil {
		t.Fatal("Users is nil, want non-nil empty slice")
	}
	if len(res.Users) != 0 {
		t.Fatalf("got %d users, want 0", len(res.Users))
	}
}

func TestFetchRateLimitedIsWarning(t *testing.T) {
	t.Parallel()
	client := &fakeClient{pageErr: insta.ErrRateLimited}
	f := newFetcher(&fakeGate{client: client})

	res := f.Fetch(context.Background(), 42, insta.Followers)
	if res.Status != StatusWarning {
		t.Fatalf("status = %q, want warning", res.Status)
	}
	if res.Message == "" {
		t.Fatal("warning result must carry a message")
	}
}

func TestFetchCollaboratorFailureIsError(t *testing.T) {
	t.Parallel()
	client := &fakeClient{pageErr: &insta.APIError{Op: "friendships", Status: 500, Message: "boom"}}
	f := newFetcher(&fakeGate{client: client})

	res := f.Fetch(context.Background(), 42, insta.Followers)
	if res.Status != StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
}

func TestFetchGateClosed(t *testing.T) {
	t.Parallel()
	f := newFetcher(&fakeGate{err: errors.New("not logged in")})
	res := f.Fetch(context.Background(), 42, insta.Followers)
	if res.Status != StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
}
