// Package notify fans operational alerts, market resolutions and failed
// liquidity seeding runs, out to the configured channels (Telegram, Discord).
// An event-type allowlist keeps operators subscribed only to what they asked
// for.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier fans notifications out to its senders, filtered by event type.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Notify
// forwards only event types listed in events; an empty list forwards
// everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers to every sender when the event type passes the allowlist.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.fanOut(ctx, title, message)
}

// NotifyAll delivers to every sender, ignoring the allowlist.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.fanOut(ctx, title, message)
}

// fanOut tries every sender; one channel failing never blocks the others.
// All failures are folded into the returned error.
func (n *Notifier) fanOut(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var failures []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(failures) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}
