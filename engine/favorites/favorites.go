// Package favorites keeps the favorites list of the current session in sync
// with its source of truth: the local store for anonymous sessions (or in
// local mode), the backend for authenticated ones. In remote mode the list
// only changes after the server confirms.
package favorites

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/engine/events"
	"github.com/buymove/buymove-client/engine/source"
	"github.com/buymove/buymove-client/pkg/fn"
)

// Outcome is what a toggle did.
type Outcome int

const (
	OutcomeNoop Outcome = iota
	OutcomeAdded
	OutcomeRemoved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeRemoved:
		return "removed"
	default:
		return "noop"
	}
}

// State is a snapshot of the reconciler.
type State struct {
	Favorites []domain.Favorite
	Loading   bool
	// Err is the last failure, cleared by the next success.
	Err error
	// Mode is the source the list was loaded from.
	Mode source.Mode
}

// Sessions tells the reconciler whether a session is authenticated.
type Sessions interface {
	Authenticated() bool
}

// Reconciler owns the favorites state.
type Reconciler struct {
	sel     source.Selector
	session Sessions
	pub     events.Publisher
	log     *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time

	flight  singleflight.Group
	locks   idLocks
	writeMu sync.Mutex // local read-modify-write of the whole collection

	mu     sync.Mutex
	state  State
	loaded bool
}

// New creates a Reconciler. pub may be nil.
func New(sel source.Selector, session Sessions, pub events.Publisher, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = events.Noop{}
	}
	return &Reconciler{
		sel:     sel,
		session: session,
		pub:     pub,
		log:     log.Named("favorites"),
		tracer:  otel.Tracer("github.com/buymove/buymove-client/engine/favorites"),
		now:     time.Now,
		state:   State{Favorites: []domain.Favorite{}, Mode: sel.Favorites(false).Mode()},
		locks:   idLocks{locks: map[string]*idLock{}},
	}
}

func (r *Reconciler) source() source.DataSource {
	return r.sel.Favorites(r.session.Authenticated())
}

// State returns a snapshot of the current state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state
	s.Favorites = make([]domain.Favorite, len(r.state.Favorites))
	copy(s.Favorites, r.state.Favorites)
	return s
}

// Favorites returns the current list.
func (r *Reconciler) Favorites() []domain.Favorite {
	return r.State().Favorites
}

// IsFavorite reports whether vehicleID is in the current list.
func (r *Reconciler) IsFavorite(vehicleID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return indexOf(r.state.Favorites, vehicleID) >= 0
}

// Refresh replaces the list with the source's. A failure is recorded in
// State.Err and returned; the previous list is kept.
func (r *Reconciler) Refresh(ctx context.Context) error {
	src := r.source()
	if err := r.load(ctx, src); err != nil {
		return err
	}
	r.publish(ctx, src.Mode(), "refresh", "")
	return nil
}

func (r *Reconciler) load(ctx context.Context, src source.DataSource) error {
	ctx, span := r.tracer.Start(ctx, "favorites.Refresh", trace.WithAttributes(attribute.String("mode", string(src.Mode()))))
	defer span.End()

	r.setLoading(true)
	favs, err := src.ListFavorites(ctx)
	if ctx.Err() != nil {
		r.setLoading(false)
		return ctx.Err()
	}

	res := fn.FromPair(favs, err).
		OnOk(func(favs []domain.Favorite) {
			r.mu.Lock()
			r.state = State{
				Favorites: fn.UniqueBy(favs, func(f domain.Favorite) string { return f.VehicleID }),
				Mode:      src.Mode(),
			}
			r.loaded = true
			r.mu.Unlock()
		}).
		OnErr(r.fail)
	if err := res.Error(); err != nil {
		span.RecordError(err)
		r.log.Warn("refresh failed", zap.String("mode", string(src.Mode())), zap.Error(err))
		return err
	}
	return nil
}

// Toggle removes v from the favorites if present and adds it otherwise. A
// vehicle without an id is ignored. Concurrent toggles of the same vehicle
// share one request and one outcome.
func (r *Reconciler) Toggle(ctx context.Context, v domain.Vehicle) (Outcome, error) {
	if v.ID == "" {
		return OutcomeNoop, nil
	}
	res, _, _ := r.flight.Do("toggle:"+v.ID, func() (any, error) {
		unlock := r.locks.lock(v.ID)
		defer unlock()
		return r.toggle(ctx, v), nil
	})
	return res.(fn.Result[Outcome]).Unwrap()
}

// Remove drops vehicleID from the favorites. It waits for any in-flight
// toggle of the same vehicle and then removes. Removing an absent vehicle in
// local mode is a no-op write; in remote mode the request is still sent.
func (r *Reconciler) Remove(ctx context.Context, vehicleID string) error {
	if vehicleID == "" {
		return nil
	}
	res, _, _ := r.flight.Do("remove:"+vehicleID, func() (any, error) {
		unlock := r.locks.lock(vehicleID)
		defer unlock()
		src, err := r.current(ctx)
		if err != nil {
			return fn.Err[Outcome](err), nil
		}
		return r.remove(ctx, src, vehicleID), nil
	})
	return res.(fn.Result[Outcome]).Error()
}

// LocalPending returns the favorites kept in the local store that are not in
// the server list. It is empty unless the reconciler is in remote mode; the
// local collection is never merged automatically.
func (r *Reconciler) LocalPending(ctx context.Context) ([]domain.Favorite, error) {
	if r.source().Mode() != source.ModeRemote || r.sel.Local == nil {
		return []domain.Favorite{}, nil
	}
	local, err := r.sel.Local.ListFavorites(ctx)
	if err != nil {
		return nil, err
	}
	return fn.Filter(local, func(f domain.Favorite) bool { return !r.IsFavorite(f.VehicleID) }), nil
}

// current returns the active source, loading its list first when nothing
// was loaded yet or the session moved the reconciler to a different source.
// Membership is never judged against another source's list.
func (r *Reconciler) current(ctx context.Context) (source.DataSource, error) {
	src := r.source()
	r.mu.Lock()
	stale := !r.loaded || r.state.Mode != src.Mode()
	r.mu.Unlock()
	if stale {
		if err := r.load(ctx, src); err != nil {
			return nil, fmt.Errorf("favorites: load %s list: %w", src.Mode(), err)
		}
	}
	return src, nil
}

func (r *Reconciler) toggle(ctx context.Context, v domain.Vehicle) fn.Result[Outcome] {
	src, err := r.current(ctx)
	if err != nil {
		return fn.Err[Outcome](err)
	}
	ctx, span := r.tracer.Start(ctx, "favorites.Toggle", trace.WithAttributes(
		attribute.String("mode", string(src.Mode())),
		attribute.String("vehicle_id", v.ID),
	))
	defer span.End()

	if r.IsFavorite(v.ID) {
		return r.remove(ctx, src, v.ID)
	}
	return r.add(ctx, src, v)
}

func (r *Reconciler) add(ctx context.Context, src source.DataSource, v domain.Vehicle) fn.Result[Outcome] {
	r.setLoading(true)
	var res fn.Result[domain.Favorite]
	if w, ok := src.(source.FavoritesWriter); ok {
		now := r.now().UTC()
		f := domain.Favorite{ID: v.ID, VehicleID: v.ID, CreatedAt: &now, Vehicle: v}
		err := r.overwrite(ctx, src.Mode(), w, func(favs []domain.Favorite) []domain.Favorite {
			return append(favs, f)
		})
		res = fn.FromPair(f, err)
	} else {
		f, err := src.AddFavorite(ctx, v)
		res = fn.FromPair(f, err).OnOk(func(f domain.Favorite) {
			r.mu.Lock()
			defer r.mu.Unlock()
			favs := without(r.state.Favorites, f.VehicleID)
			r.state = State{Favorites: append([]domain.Favorite{f}, favs...), Mode: src.Mode()}
		})
	}
	res = res.OnErr(r.fail)
	if res.IsOk() {
		r.publish(ctx, src.Mode(), "add", v.ID)
	} else {
		r.log.Warn("add failed", zap.String("vehicle_id", v.ID), zap.Error(res.Error()))
	}
	return fn.MapResult(res, func(domain.Favorite) Outcome { return OutcomeAdded })
}

func (r *Reconciler) remove(ctx context.Context, src source.DataSource, vehicleID string) fn.Result[Outcome] {
	r.setLoading(true)
	var res fn.Result[Outcome]
	if w, ok := src.(source.FavoritesWriter); ok {
		err := r.overwrite(ctx, src.Mode(), w, func(favs []domain.Favorite) []domain.Favorite {
			return without(favs, vehicleID)
		})
		res = fn.FromPair(OutcomeRemoved, err)
	} else {
		res = fn.FromPair(OutcomeRemoved, src.RemoveFavorite(ctx, vehicleID)).OnOk(func(Outcome) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.state = State{Favorites: without(r.state.Favorites, vehicleID), Mode: src.Mode()}
		})
	}
	res = res.OnErr(r.fail)
	if res.IsOk() {
		r.publish(ctx, src.Mode(), "remove", vehicleID)
	} else {
		r.log.Warn("remove failed", zap.String("vehicle_id", vehicleID), zap.Error(res.Error()))
	}
	return res
}

// overwrite persists edit(list) as the whole local collection and commits
// what the store accepted.
func (r *Reconciler) overwrite(ctx context.Context, mode source.Mode, w source.FavoritesWriter, edit func([]domain.Favorite) []domain.Favorite) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	stored, err := w.ReplaceFavorites(ctx, edit(r.Favorites()))
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.state = State{Favorites: stored, Mode: mode}
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) setLoading(loading bool) {
	r.mu.Lock()
	r.state.Loading = loading
	r.mu.Unlock()
}

// fail records err without touching the list.
func (r *Reconciler) fail(err error) {
	r.mu.Lock()
	r.state.Loading = false
	r.state.Err = err
	r.mu.Unlock()
}

func (r *Reconciler) publish(ctx context.Context, mode source.Mode, action, vehicleID string) {
	r.pub.FavoritesChanged(ctx, events.FavoritesChanged{
		Mode:      string(mode),
		Action:    action,
		VehicleID: vehicleID,
		Count:     len(r.Favorites()),
		At:        r.now().UTC(),
	})
}

func without(favs []domain.Favorite, vehicleID string) []domain.Favorite {
	return fn.Filter(favs, func(f domain.Favorite) bool { return f.VehicleID != vehicleID })
}

// idLocks serializes operations on the same vehicle.
type idLocks struct {
	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	sync.Mutex
	refs int
}

func (l *idLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &idLock{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		l.mu.Lock()
		if e.refs--; e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func indexOf(favs []domain.Favorite, vehicleID string) int {
	for i, f := range favs {
		if f.VehicleID == vehicleID {
			return i
		}
	}
	return -1
}
