// Package events announces session and favorites changes to whoever is
// listening: other processes over NATS, or nobody.
package events

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/buymove/buymove-client/pkg/natsutil"
)

// Subjects.
const (
	SubjectSession   = "buymove.session.changed"
	SubjectFavorites = "buymove.favorites.changed"
)

// SessionChanged is published after every session phase transition.
type SessionChanged struct {
	Phase  string    `json:"phase"`
	UserID string    `json:"user_id,omitempty"`
	At     time.Time `json:"at"`
}

// FavoritesChanged is published after a favorites mutation or refresh.
type FavoritesChanged struct {
	Mode      string    `json:"mode"`
	Action    string    `json:"action"`
	VehicleID string    `json:"vehicle_id,omitempty"`
	Count     int       `json:"count"`
	At        time.Time `json:"at"`
}

// Publisher delivers change notifications. Delivery is best effort; the
// engines never fail an operation because an event was lost.
type Publisher interface {
	SessionChanged(ctx context.Context, e SessionChanged)
	FavoritesChanged(ctx context.Context, e FavoritesChanged)
}

// Noop discards events.
type Noop struct{}

func (Noop) SessionChanged(context.Context, SessionChanged)     {}
func (Noop) FavoritesChanged(context.Context, FavoritesChanged) {}

// NATSPublisher publishes events as JSON on nc.
type NATSPublisher struct {
	nc  *nats.Conn
	log *zap.Logger
}

// NewNATSPublisher creates a NATSPublisher.
func NewNATSPublisher(nc *nats.Conn, log *zap.Logger) *NATSPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSPublisher{nc: nc, log: log.Named("events")}
}

func (p *NATSPublisher) SessionChanged(ctx context.Context, e SessionChanged) {
	publish(ctx, p, SubjectSession, e)
}

func (p *NATSPublisher) FavoritesChanged(ctx context.Context, e FavoritesChanged) {
	publish(ctx, p, SubjectFavorites, e)
}

func publish[T any](ctx context.Context, p *NATSPublisher, subject string, v T) {
	if err := natsutil.Publish(ctx, p.nc, subject, v); err != nil {
		p.log.Warn("publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
