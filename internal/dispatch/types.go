package dispatch

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrBusy rejects a trigger while a run is already in flight. The design has
// a single global job slot; interleaving two paced runs against the same
// session would defeat the pacing entirely.
var ErrBusy = errors.New("a dispatch run is already in progress")

// ValidationError marks client-caused input problems. They are rejected
// before any side effect occurs.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationf(msg string) error { return &ValidationError{msg: msg} }

// IsValidation reports whether err is client-caused.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Request is one validated dispatch job. Delays are whole seconds.
type Request struct {
	Recipients    []int64
	Message       string
	MinDelay      int
	MaxDelay      int
	MaxRecipients int
}

func (r Request) Validate() error {
	if len(r.Recipients) == 0 {
		return validationf("no recipients provided")
	}
	if strings.TrimSpace(r.Message) == "" {
		return validationf("message cannot be empty")
	}
	if r.MinDelay < 0 || r.MaxDelay < 0 || r.MinDelay > r.MaxDelay {
		return validationf("invalid delay range")
	}
	if r.MaxRecipients <= 0 {
		return validationf("maximum recipients must be a positive number")
	}
	return nil
}

// ParseRecipients parses the wire format: comma-separated numeric IDs.
// Blank items are skipped; a non-numeric item fails the whole list.
func ParseRecipients(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, validationf("invalid recipient list format: must be comma-separated numbers")
		}
		out = append(out, id)
	}
	return out, nil
}

// SendError is one failed recipient with its reason.
type SendError struct {
	Recipient int64  `json:"recipient"`
	Reason    string `json:"reason"`
}

// Result summarizes one completed run. The triggering caller never sees it;
// it reaches the operator through the log trail, the run audit table, and
// the optional notifier.
type Result struct {
	// Attempted counts recipients for which a send was actually issued.
	// Without an abort it equals min(len(Recipients), MaxRecipients).
	Attempted int         `json:"attempted"`
	Sent      int         `json:"sent_count"`
	Failed    int         `json:"failed_count"`
	Errors    []SendError `json:"errors,omitempty"`
	Aborted   bool        `json:"aborted,omitempty"`
	Started   time.Time   `json:"started"`
	Finished  time.Time   `json:"finished"`
}
