package notify

import (
	"testing"
	"time"

	"massdm/internal/dispatch"
	logx "massdm/pkg/logx"
)

func TestNewDisabled(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "disabled", cfg: Config{Enabled: false, Token: "t", ChatID: 1}},
		{name: "no token", cfg: Config{Enabled: true, ChatID: 1}},
		{name: "no chat", cfg: Config{Enabled: true, Token: "t"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			svc, err := New(tt.cfg, logx.Nop())
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if svc != nil {
				t.Fatal("expected nil service")
			}
			// A nil service must be a safe observer.
			svc.RunFinished(dispatch.Result{Sent: 1})
		})
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	res := dispatch.Result{
		Attempted: 10, Sent: 8, Failed: 2,
		Started:  start,
		Finished: start.Add(61 * time.Second),
	}
	want := "Mass DM run finished: sent 8, failed 2 of 10 attempted (1m1s)"
	if got := summary(res); got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}

	res.Aborted = true
	if got := summary(res); got != "Mass DM run aborted: sent 8, failed 2 of 10 attempted (1m1s)" {
		t.Fatalf("summary = %q", got)
	}
}
