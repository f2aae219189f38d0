package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/askloop/askloop/server/internal/model"
)

// Sink is a delivery channel for notifications.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n *model.Notification) error
}

// Fanout delivers a notification to every configured sink. Sink failures
// are logged and swallowed: the content mutation already committed and
// must not be rolled back over a lost notification.
type Fanout struct {
	sinks []Sink
	log   zerolog.Logger
}

func NewFanout(log zerolog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, log: log}
}

// Emit sends n to all sinks. A nil notification (self-action) is a no-op.
func (f *Fanout) Emit(ctx context.Context, n *model.Notification) {
	if n == nil {
		return
	}
	for _, s := range f.sinks {
		if err := s.Deliver(ctx, n); err != nil {
			f.log.Error().Stack().Err(err).
				Str("sink", s.Name()).
				Str("kind", n.Kind).
				Str("recipientId", n.RecipientID).
				Msg("notification delivery failed")
		}
	}
}
