// Package source provides the two places catalog and favorites data can come
// from (the local store plus bundled seed data, or the remote backend) behind
// one DataSource interface, and the Selector policy that picks between them.
package source

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/engine/query"
	"github.com/buymove/buymove-client/pkg/gateway"
)

// Mode names where a DataSource reads and writes.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// DataSource answers catalog and favorites operations. Every vehicle it
// returns is normalized.
type DataSource interface {
	Mode() Mode
	ListVehicles(ctx context.Context, spec query.Spec) (query.Page, error)
	GetVehicle(ctx context.Context, id string) (domain.Vehicle, error)
	Recommendations(ctx context.Context, id string) ([]domain.Vehicle, error)
	CreateVehicle(ctx context.Context, v domain.Vehicle) (domain.Vehicle, error)
	ListFavorites(ctx context.Context) ([]domain.Favorite, error)
	AddFavorite(ctx context.Context, v domain.Vehicle) (domain.Favorite, error)
	RemoveFavorite(ctx context.Context, vehicleID string) error
}

// FavoritesWriter overwrites a whole favorites collection and returns what
// was stored. Local sources implement it.
type FavoritesWriter interface {
	ReplaceFavorites(ctx context.Context, favs []domain.Favorite) ([]domain.Favorite, error)
}

// Backend is the subset of the gateway the remote source uses.
type Backend interface {
	ListVehicles(ctx context.Context, q url.Values) (gateway.RawPage, error)
	GetVehicle(ctx context.Context, id string) (json.RawMessage, error)
	Recommendations(ctx context.Context, id string) ([]json.RawMessage, error)
	CreateVehicle(ctx context.Context, v any) (json.RawMessage, error)
	ListFavorites(ctx context.Context) ([]json.RawMessage, error)
	AddFavorite(ctx context.Context, vehicleID string) (json.RawMessage, error)
	RemoveFavorite(ctx context.Context, vehicleID string) error
}

var _ Backend = (*gateway.Client)(nil)

// Selector decides which DataSource serves a request.
type Selector struct {
	Local  DataSource
	Remote DataSource
	// ForceLocal pins every request to Local (mock mode).
	ForceLocal bool
}

// Catalog returns the source for catalog operations. It does not depend on
// the session.
func (s Selector) Catalog() DataSource {
	if s.ForceLocal || s.Remote == nil {
		return s.Local
	}
	return s.Remote
}

// Favorites returns the source for favorites: remote only for an
// authenticated session outside local mode.
func (s Selector) Favorites(authenticated bool) DataSource {
	if authenticated && !s.ForceLocal && s.Remote != nil {
		return s.Remote
	}
	return s.Local
}

func toAny(raws []json.RawMessage) []any {
	out := make([]any, len(raws))
	for i, r := range raws {
		out[i] = r
	}
	return out
}
