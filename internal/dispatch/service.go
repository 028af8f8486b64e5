// Package dispatch implements the paced batch dispatcher: one message per
// recipient, strictly sequential, with randomized inter-send delay and an
// extended cooldown on rate-limit signals.
package dispatch

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"massdm/internal/insta"
	"massdm/internal/storage"
	logx "massdm/pkg/logx"
)

// Gate is the session gate read contract. It is consulted once per
// recipient so a mid-run invalidation is picked up immediately.
type Gate interface {
	Require() (insta.Client, error)
}

// Observer is notified when a run finishes. Used for the operator notifier.
type Observer interface {
	RunFinished(Result)
}

// rateLimitFloor is the minimum cooldown after a rate-limit signal. It is a
// fixed floor so a small configured delay range cannot weaken the backoff.
const rateLimitFloor = 60 * time.Second

type Service struct {
	gate  Gate
	store storage.Store // may be nil
	log   logx.Logger

	slot chan struct{} // single-permit job slot

	mu        sync.Mutex
	observers []Observer

	wg sync.WaitGroup

	// Seams for deterministic tests. Production uses the defaults.
	sleep   func(ctx context.Context, d time.Duration) bool
	intn    func(n int) int
	shuffle func(n int, swap func(i, j int))
}

func New(gate Gate, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var rngMu sync.Mutex
	return &Service{
		gate:  gate,
		store: store,
		log:   log,
		slot:  make(chan struct{}, 1),
		sleep: sleepCtx,
		intn: func(n int) int {
			rngMu.Lock()
			defer rngMu.Unlock()
			return rng.Intn(n)
		},
		shuffle: func(n int, swap func(i, j int)) {
			rngMu.Lock()
			defer rngMu.Unlock()
			rng.Shuffle(n, swap)
		},
	}
}

// Observe registers an observer for run completions.
func (s *Service) Observe(o Observer) {
	if o == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Running reports whether a run currently holds the job slot.
func (s *Service) Running() bool { return len(s.slot) == 1 }

// Trigger validates req, claims the job slot, and launches the run on its
// own goroutine. The caller gets an immediate answer; progress and outcome
// are visible only through the log stream (and the run audit).
//
// ctx should outlive the HTTP request: the run is detached by contract.
func (s *Service) Trigger(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	select {
	case s.slot <- struct{}{}:
	default:
		return ErrBusy
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.slot }()

		res := s.run(ctx, req)
		s.record(ctx, res)

		s.mu.Lock()
		obs := append([]Observer(nil), s.observers...)
		s.mu.Unlock()
		for _, o := range obs {
			o.RunFinished(res)
		}
	}()
	return nil
}

// Wait blocks until any in-flight run has finished. Shutdown helper.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) record(ctx context.Context, res Result) {
	if s.store == nil {
		return
	}
	errsJSON := ""
	if len(res.Errors) > 0 {
		if b, err := json.Marshal(res.Errors); err == nil {
			errsJSON = string(b)
		}
	}
	rec := storage.RunRecord{
		At:         res.Started,
		Attempted:  res.Attempted,
		Sent:       res.Sent,
		Failed:     res.Failed,
		Aborted:    res.Aborted,
		TookMS:     res.Finished.Sub(res.Started).Milliseconds(),
		ErrorsJSON: errsJSON,
	}
	if err := s.store.AppendRun(ctx, rec); err != nil {
		s.log.Warn("run audit write failed", logx.Err(err))
	}
}

// sleepCtx blocks for d or until ctx is done; reports whether the full wait
// elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
