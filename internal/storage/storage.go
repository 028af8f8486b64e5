// Package storage persists dispatch run history and the optional durable
// session cache. Storage is optional: driver "none" (or empty) disables it
// and the rest of the app runs purely in memory.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "massdm/pkg/logx"
)

var ErrDisabled = errors.New("storage disabled")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one completed dispatch run. Keep it compact and schema-stable.
type RunRecord struct {
	At        time.Time
	Attempted int
	Sent      int
	Failed    int
	Aborted   bool
	TookMS    int64
	// ErrorsJSON is the per-recipient error list, serialized by the caller.
	ErrorsJSON string
}

// Store is the minimal persistence API used by the app.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	PruneRuns(ctx context.Context, olderThan time.Time) (int64, error)

	PutSession(ctx context.Context, blob []byte) error
	GetSession(ctx context.Context) ([]byte, bool, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
