// Package notifier delivers alert notifications over the configured channels.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthwatch/internal/logger"
	"healthwatch/internal/models"
)

// Notifier is the outbound port the monitor calls on alert transitions.
type Notifier interface {
	NotifyTriggered(ctx context.Context, a models.Alert) error
	NotifyResolved(ctx context.Context, a models.Alert) error
}

// Channel is one delivery transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, subject, body string) error
}

// Composite fans a notification out to every channel, retrying each a few
// times. One channel failing does not stop the others.
type Composite struct {
	channels []Channel
	log      *logger.Logger
	attempts int
	backoff  time.Duration
}

func NewComposite(log *logger.Logger, channels ...Channel) *Composite {
	if log == nil {
		log = logger.NewNop()
	}
	return &Composite{channels: channels, log: log, attempts: 3, backoff: 300 * time.Millisecond}
}

func (c *Composite) Channels() int { return len(c.channels) }

func (c *Composite) NotifyTriggered(ctx context.Context, a models.Alert) error {
	subject := fmt.Sprintf("[%s] Alert triggered", a.Severity)
	body := fmt.Sprintf("%s\nSystem: %s\nRule: %s\nTriggered at: %s",
		a.Message, a.SystemID, a.RuleID, a.TriggeredAt.Format(time.RFC3339))
	return c.broadcast(ctx, subject, body)
}

func (c *Composite) NotifyResolved(ctx context.Context, a models.Alert) error {
	subject := fmt.Sprintf("[%s] Alert resolved", a.Severity)
	resolved := ""
	if a.ResolvedAt != nil {
		resolved = a.ResolvedAt.Format(time.RFC3339)
	}
	body := fmt.Sprintf("RECOVERY %s\nSystem: %s\nResolved at: %s\nNotes: %s",
		a.Message, a.SystemID, resolved, a.ResolutionNotes)
	return c.broadcast(ctx, subject, body)
}

func (c *Composite) broadcast(ctx context.Context, subject, body string) error {
	var errs []error
	for _, ch := range c.channels {
		if err := c.sendWithRetry(ctx, ch, subject, body); err != nil {
			c.log.Warn("notify failed", "channel", ch.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (c *Composite) sendWithRetry(ctx context.Context, ch Channel, subject, body string) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = ch.Send(ctx, subject, body); err == nil {
			c.log.Debug("notification sent", "channel", ch.Name(), "attempts", attempt)
			return nil
		}
		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return err
}

// Log writes notifications to the application log. It is always enabled.
type Log struct {
	log *logger.Logger
}

func NewLog(log *logger.Logger) *Log { return &Log{log: log} }

func (l *Log) Name() string { return "log" }

func (l *Log) Send(_ context.Context, subject, body string) error {
	l.log.Info("notification", "subject", subject, "body", body)
	return nil
}
