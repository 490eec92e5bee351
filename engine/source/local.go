package source

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/engine/normalize"
	"github.com/buymove/buymove-client/engine/query"
	"github.com/buymove/buymove-client/pkg/fn"
	"github.com/buymove/buymove-client/pkg/kv"
)

//go:embed seed.json
var seedJSON []byte

// MaxRecommendations caps the local recommendation list.
const MaxRecommendations = 6

// LocalDataSource serves the catalog from locally drafted vehicles followed
// by the bundled seed dataset, and keeps favorites in the store.
type LocalDataSource struct {
	store kv.Store
	norm  *normalize.Normalizer
	seed  []domain.Vehicle
	log   *zap.Logger
	now   func() time.Time
}

// Seed returns the bundled dataset, normalized.
func Seed(norm *normalize.Normalizer) ([]domain.Vehicle, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(seedJSON, &raws); err != nil {
		return nil, fmt.Errorf("seed dataset: %w", err)
	}
	return norm.Vehicles(toAny(raws)), nil
}

// NewLocal creates a LocalDataSource over store. seed nil means the bundled
// dataset.
func NewLocal(store kv.Store, norm *normalize.Normalizer, seed []domain.Vehicle, log *zap.Logger) (*LocalDataSource, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if seed == nil {
		var err error
		if seed, err = Seed(norm); err != nil {
			return nil, err
		}
	}
	return &LocalDataSource{store: store, norm: norm, seed: seed, log: log.Named("local"), now: time.Now}, nil
}

func (l *LocalDataSource) Mode() Mode { return ModeLocal }

// drafts reads the persisted draft collection, most recent first. An
// unreadable collection is treated as empty.
func (l *LocalDataSource) drafts(ctx context.Context) []json.RawMessage {
	raws, err := kv.GetJSON[[]json.RawMessage](ctx, l.store, domain.KeyDrafts)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			l.log.Warn("reading drafts", zap.Error(err))
		}
		return nil
	}
	return raws
}

// all returns drafts followed by the seed dataset.
func (l *LocalDataSource) all(ctx context.Context) []domain.Vehicle {
	drafts := l.norm.Vehicles(toAny(l.drafts(ctx)))
	out := make([]domain.Vehicle, 0, len(drafts)+len(l.seed))
	return append(append(out, drafts...), l.seed...)
}

func (l *LocalDataSource) ListVehicles(ctx context.Context, spec query.Spec) (query.Page, error) {
	if err := ctx.Err(); err != nil {
		return query.Page{}, err
	}
	return query.Run(l.all(ctx), spec), nil
}

func (l *LocalDataSource) GetVehicle(ctx context.Context, id string) (domain.Vehicle, error) {
	v, ok := fn.Find(l.all(ctx), func(v domain.Vehicle) bool { return v.ID == id })
	if !ok {
		return domain.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, domain.ErrNotFound)
	}
	return v, nil
}

// Recommendations returns up to MaxRecommendations other vehicles ordered by
// how close their price is to the base vehicle's. An unknown base yields an
// empty list.
func (l *LocalDataSource) Recommendations(ctx context.Context, id string) ([]domain.Vehicle, error) {
	all := l.all(ctx)
	base, ok := fn.Find(all, func(v domain.Vehicle) bool { return v.ID == id })
	if !ok {
		return []domain.Vehicle{}, nil
	}
	others := fn.Filter(all, func(v domain.Vehicle) bool { return v.ID != base.ID })
	sort.SliceStable(others, func(i, j int) bool {
		return math.Abs(others[i].Price-base.Price) < math.Abs(others[j].Price-base.Price)
	})
	if len(others) > MaxRecommendations {
		others = others[:MaxRecommendations]
	}
	return others, nil
}

// CreateVehicle prepends v to the persisted drafts. The whole collection is
// rewritten.
func (l *LocalDataSource) CreateVehicle(ctx context.Context, v domain.Vehicle) (domain.Vehicle, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("encode draft: %w", err)
	}
	drafts := append([]json.RawMessage{raw}, l.drafts(ctx)...)
	if err := kv.SetJSON(ctx, l.store, domain.KeyDrafts, drafts); err != nil {
		return domain.Vehicle{}, fmt.Errorf("persist drafts: %w", err)
	}
	return v, nil
}

func (l *LocalDataSource) ListFavorites(ctx context.Context) ([]domain.Favorite, error) {
	raws, err := kv.GetJSON[[]json.RawMessage](ctx, l.store, domain.KeyFavorite)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			l.log.Warn("reading favorites", zap.Error(err))
		}
		return []domain.Favorite{}, nil
	}
	return fn.UniqueBy(l.norm.Favorites(toAny(raws)), func(f domain.Favorite) string { return f.VehicleID }), nil
}

// AddFavorite appends v to the persisted favorites unless already present.
func (l *LocalDataSource) AddFavorite(ctx context.Context, v domain.Vehicle) (domain.Favorite, error) {
	favs, _ := l.ListFavorites(ctx)
	if f, ok := fn.Find(favs, func(f domain.Favorite) bool { return f.VehicleID == v.ID }); ok {
		return f, nil
	}
	now := l.now().UTC()
	stored, err := l.ReplaceFavorites(ctx, append(favs, domain.Favorite{ID: v.ID, VehicleID: v.ID, CreatedAt: &now, Vehicle: v}))
	if err != nil {
		return domain.Favorite{}, err
	}
	f, _ := fn.Find(stored, func(f domain.Favorite) bool { return f.VehicleID == v.ID })
	return f, nil
}

func (l *LocalDataSource) RemoveFavorite(ctx context.Context, vehicleID string) error {
	favs, _ := l.ListFavorites(ctx)
	_, err := l.ReplaceFavorites(ctx, fn.Filter(favs, func(f domain.Favorite) bool { return f.VehicleID != vehicleID }))
	return err
}

// ReplaceFavorites persists favs as the whole local collection. Vehicles are
// normalized, entries without a vehicle id dropped and duplicates removed;
// the returned list is exactly what was written.
func (l *LocalDataSource) ReplaceFavorites(ctx context.Context, favs []domain.Favorite) ([]domain.Favorite, error) {
	out := make([]domain.Favorite, 0, len(favs))
	for _, f := range favs {
		if f.Vehicle.ID == "" {
			f.Vehicle.ID = f.VehicleID
		}
		v, ok := l.norm.Vehicle(f.Vehicle)
		if !ok {
			continue
		}
		f.Vehicle, f.VehicleID = v, v.ID
		if f.ID == "" {
			f.ID = v.ID
		}
		out = append(out, f)
	}
	out = fn.UniqueBy(out, func(f domain.Favorite) string { return f.VehicleID })
	if err := l.saveFavorites(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *LocalDataSource) saveFavorites(ctx context.Context, favs []domain.Favorite) error {
	if err := kv.SetJSON(ctx, l.store, domain.KeyFavorite, favs); err != nil {
		return fmt.Errorf("persist favorites: %w", err)
	}
	return nil
}
