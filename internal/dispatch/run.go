package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"massdm/internal/insta"
	logx "massdm/pkg/logx"
)

// run walks the recipient set strictly sequentially. Sends are never
// concurrent: the randomized inter-send delay is the core anti-abuse
// property and parallel dispatch would defeat it.
func (s *Service) run(ctx context.Context, req Request) Result {
	res := Result{Started: time.Now()}

	// Shuffle before truncating so every recipient in an oversized list has
	// a chance of selection, and so the send order carries no pattern.
	recipients := append([]int64(nil), req.Recipients...)
	s.shuffle(len(recipients), func(i, j int) {
		recipients[i], recipients[j] = recipients[j], recipients[i]
	})
	if len(recipients) > req.MaxRecipients {
		recipients = recipients[:req.MaxRecipients]
	}

	s.log.Info(fmt.Sprintf("Attempting to send message to %d recipients.", len(recipients)))

loop:
	for i, pk := range recipients {
		// Inclusive uniform draw from [MinDelay, MaxDelay] seconds.
		delay := req.MinDelay + s.intn(req.MaxDelay-req.MinDelay+1)

		// The gate is consulted every iteration; a dead session is a fatal
		// precondition, not a per-recipient failure.
		client, err := s.gate.Require()
		if err != nil {
			s.log.Error("Client not initialized or not logged in. Cannot send messages.")
			res.Aborted = true
			break
		}

		s.log.Info(fmt.Sprintf("Sending message to user PK: %d (Recipient %d/%d)...", pk, i+1, len(recipients)))

		res.Attempted++
		err = client.SendDirectMessage(ctx, pk, req.Message)
		switch {
		case err == nil:
			res.Sent++
			s.log.Info(fmt.Sprintf("Successfully sent message to %d.", pk))

		case errors.Is(err, insta.ErrRateLimited):
			res.Failed++
			res.Errors = append(res.Errors, SendError{Recipient: pk, Reason: "rate limit hit"})
			// Extended cooldown replaces the normal inter-send delay for
			// this iteration; the run continues with the next recipient.
			backoff := 2 * time.Duration(delay) * time.Second
			if backoff < rateLimitFloor {
				backoff = rateLimitFloor
			}
			s.log.Warn(fmt.Sprintf("Rate limit hit while sending to %d. Waiting longer.", pk),
				logx.Duration("backoff", backoff))
			if !s.sleep(ctx, backoff) {
				res.Aborted = true
				break loop
			}
			continue

		default:
			res.Failed++
			res.Errors = append(res.Errors, SendError{Recipient: pk, Reason: err.Error()})
			s.log.Error(fmt.Sprintf("Failed to send message to %d.", pk), logx.Err(err))
		}

		// No delay after the last recipient.
		if i < len(recipients)-1 {
			s.log.Info(fmt.Sprintf("Waiting for %d seconds before sending the next message...", delay))
			if !s.sleep(ctx, time.Duration(delay)*time.Second) {
				res.Aborted = true
				break
			}
		}
	}

	res.Finished = time.Now()
	fields := []logx.Field{
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Duration("took", res.Finished.Sub(res.Started)),
	}
	if res.Aborted {
		s.log.Warn(fmt.Sprintf("Mass DM process aborted. Sent: %d, Failed: %d.", res.Sent, res.Failed), fields...)
	} else {
		s.log.Info(fmt.Sprintf("Mass DM process finished. Sent: %d, Failed: %d.", res.Sent, res.Failed), fields...)
	}
	return res
}
