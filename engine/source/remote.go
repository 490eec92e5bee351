package source

import (
	"context"
	"fmt"

	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/engine/normalize"
	"github.com/buymove/buymove-client/engine/query"
)

// RemoteDataSource serves everything from the backend.
type RemoteDataSource struct {
	backend Backend
	norm    *normalize.Normalizer
}

// NewRemote creates a RemoteDataSource.
func NewRemote(backend Backend, norm *normalize.Normalizer) *RemoteDataSource {
	return &RemoteDataSource{backend: backend, norm: norm}
}

func (r *RemoteDataSource) Mode() Mode { return ModeRemote }

// ListVehicles forwards spec as query parameters. The backend's total is
// trusted as is.
func (r *RemoteDataSource) ListVehicles(ctx context.Context, spec query.Spec) (query.Page, error) {
	p, err := r.backend.ListVehicles(ctx, spec.Wire())
	if err != nil {
		return query.Page{}, err
	}
	return query.Page{Items: r.norm.Vehicles(toAny(p.Items)), Total: p.Total}, nil
}

func (r *RemoteDataSource) GetVehicle(ctx context.Context, id string) (domain.Vehicle, error) {
	raw, err := r.backend.GetVehicle(ctx, id)
	if err != nil {
		return domain.Vehicle{}, err
	}
	v, ok := r.norm.Vehicle(raw)
	if !ok {
		return domain.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, domain.ErrNotFound)
	}
	return v, nil
}

func (r *RemoteDataSource) Recommendations(ctx context.Context, id string) ([]domain.Vehicle, error) {
	raws, err := r.backend.Recommendations(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.norm.Vehicles(toAny(raws)), nil
}

// CreateVehicle publishes v and returns the stored record, or v itself when
// the response carries nothing usable.
func (r *RemoteDataSource) CreateVehicle(ctx context.Context, v domain.Vehicle) (domain.Vehicle, error) {
	raw, err := r.backend.CreateVehicle(ctx, v)
	if err != nil {
		return domain.Vehicle{}, err
	}
	if created, ok := r.norm.Vehicle(raw); ok {
		return created, nil
	}
	return v, nil
}

func (r *RemoteDataSource) ListFavorites(ctx context.Context) ([]domain.Favorite, error) {
	raws, err := r.backend.ListFavorites(ctx)
	if err != nil {
		return nil, err
	}
	return r.norm.Favorites(toAny(raws)), nil
}

// AddFavorite posts the favorite. When the server answers with a bare
// reference, the known vehicle fills in the details.
func (r *RemoteDataSource) AddFavorite(ctx context.Context, v domain.Vehicle) (domain.Favorite, error) {
	raw, err := r.backend.AddFavorite(ctx, v.ID)
	if err != nil {
		return domain.Favorite{}, err
	}
	f, ok := r.norm.Favorite(raw)
	if !ok {
		return domain.Favorite{ID: v.ID, VehicleID: v.ID, Vehicle: v}, nil
	}
	if f.Vehicle.Title == "" && f.VehicleID == v.ID {
		f.Vehicle = v
	}
	return f, nil
}

func (r *RemoteDataSource) RemoveFavorite(ctx context.Context, vehicleID string) error {
	return r.backend.RemoveFavorite(ctx, vehicleID)
}
