package main

import (
	"context"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/buymove/buymove-client/engine/catalog"
	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/engine/events"
	"github.com/buymove/buymove-client/engine/favorites"
	"github.com/buymove/buymove-client/engine/normalize"
	"github.com/buymove/buymove-client/engine/session"
	"github.com/buymove/buymove-client/engine/source"
	"github.com/buymove/buymove-client/pkg/config"
	"github.com/buymove/buymove-client/pkg/gateway"
	"github.com/buymove/buymove-client/pkg/kv"
	"github.com/buymove/buymove-client/pkg/natsutil"
)

// app is the wired client core shared by every command.
type app struct {
	cfg config.Config
	log *zap.Logger

	nc        *nats.Conn
	store     kv.Store
	gw        *gateway.Client
	sessions  *session.Manager
	catalog   *catalog.Engine
	favorites *favorites.Reconciler
}

// newApp wires the core from cfg. NATS is dialed only when the store or
// withEvents needs it.
func newApp(ctx context.Context, cfg config.Config, log *zap.Logger, withEvents bool) (*app, error) {
	a := &app{cfg: cfg, log: log}

	driver := strings.ToLower(cfg.Store.Driver)
	if driver == "nats" || withEvents {
		nc, err := natsutil.Connect(cfg.NATSURL, "buymove-cli", log)
		if err != nil {
			return nil, err
		}
		a.nc = nc
	}

	store, err := kv.Open(ctx, kv.Options{
		Driver: driver,
		Path:   cfg.StorePath(),
		Conn:   a.nc,
		Bucket: cfg.Store.Bucket,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	var pub events.Publisher = events.Noop{}
	if a.nc != nil {
		pub = events.NewNATSPublisher(a.nc, log)
	}

	a.gw, err = gateway.New(gateway.Config{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
	}, func(context.Context) string { return a.sessions.Token() }, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sessions = session.New(store, a.gw, pub, log)

	norm := normalize.New(log)
	local, err := source.NewLocal(store, norm, nil, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	sel := source.Selector{Local: local, Remote: source.NewRemote(a.gw, norm), ForceLocal: cfg.UseMocks}
	a.catalog = catalog.New(sel, norm, log)
	a.favorites = favorites.New(sel, a.sessions, pub, log)
	return a, nil
}

// start restores a persisted session. A rejected one is reported and
// forgotten; the command still runs anonymously.
func (a *app) start(ctx context.Context) error {
	err := a.sessions.Start(ctx)
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		a.log.Warn("persisted session discarded", zap.String("reason", authErr.Message))
		return nil
	}
	return err
}

// Close releases connections and the store.
func (a *app) Close() {
	if a.gw != nil {
		a.gw.Close()
	}
	if a.store != nil {
		if err := kv.Close(a.store); err != nil {
			a.log.Warn("closing store", zap.Error(err))
		}
	}
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.nc.Close()
		}
	}
}
