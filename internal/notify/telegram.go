// Package notify posts one-line dispatch run summaries to a Telegram chat
// so an operator hears about finished runs without watching the log stream.
package notify

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"massdm/internal/dispatch"
	logx "massdm/pkg/logx"
)

type Config struct {
	Enabled bool
	Token   string
	ChatID  int64
	// RatePerMin caps summary messages; bursts of short runs should not
	// flood the chat. Defaults to 10.
	RatePerMin int
}

type Service struct {
	bot     *tele.Bot
	chatID  int64
	limiter *rate.Limiter
	log     logx.Logger
}

// New returns (nil, nil) when the notifier is disabled or unconfigured;
// a nil *Service is safe to skip at the call site.
func New(cfg Config, log logx.Logger) (*Service, error) {
	if !cfg.Enabled || strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("notify: telegram bot init: %w", err)
	}
	rpm := cfg.RatePerMin
	if rpm <= 0 {
		rpm = 10
	}
	return &Service{
		bot:     bot,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		log:     log,
	}, nil
}

// RunFinished implements dispatch.Observer.
func (s *Service) RunFinished(res dispatch.Result) {
	if s == nil {
		return
	}
	if !s.limiter.Allow() {
		return
	}
	if _, err := s.bot.Send(tele.ChatID(s.chatID), summary(res)); err != nil {
		s.log.Warn("run summary notification failed", logx.Err(err))
	}
}

func summary(res dispatch.Result) string {
	state := "finished"
	if res.Aborted {
		state = "aborted"
	}
	return fmt.Sprintf("Mass DM run %s: sent %d, failed %d of %d attempted (%s)",
		state, res.Sent, res.Failed, res.Attempted,
		res.Finished.Sub(res.Started).Round(time.Second))
}
