// Package catalog answers catalog queries, single-vehicle lookups,
// recommendations and seller drafts against whichever source the selector
// picks, so callers never see the difference between local and remote mode.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/engine/normalize"
	"github.com/buymove/buymove-client/engine/query"
	"github.com/buymove/buymove-client/engine/source"
)

// ErrSuperseded is returned by QueryFor when a newer query for the same
// consumer started, or the caller gave up, before this one finished. Its
// result has been discarded.
var ErrSuperseded = errors.New("catalog: query superseded")

// Engine is the catalog query engine.
type Engine struct {
	src    source.DataSource
	norm   *normalize.Normalizer
	latest *Latest
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

// New creates an Engine. The data source is fixed at construction: the
// catalog mode does not follow the session.
func New(sel source.Selector, norm *normalize.Normalizer, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		src:    sel.Catalog(),
		norm:   norm,
		latest: NewLatest(),
		log:    log.Named("catalog"),
		tracer: otel.Tracer("github.com/buymove/buymove-client/engine/catalog"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Mode reports where the catalog is served from.
func (e *Engine) Mode() source.Mode { return e.src.Mode() }

// Query runs spec.
func (e *Engine) Query(ctx context.Context, spec query.Spec) (query.Page, error) {
	ctx, span := e.tracer.Start(ctx, "catalog.Query", trace.WithAttributes(
		attribute.String("mode", string(e.src.Mode())),
		attribute.String("q", spec.Text),
		attribute.Int("page", spec.Page),
	))
	defer span.End()

	if err := spec.Validate(); err != nil {
		return query.Page{}, err
	}
	page, err := e.src.ListVehicles(ctx, spec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Warn("query failed", zap.String("mode", string(e.src.Mode())), zap.Error(err))
		return query.Page{}, fmt.Errorf("catalog query: %w", err)
	}
	span.SetAttributes(attribute.Int("total", page.Total))
	return page, nil
}

// QueryFor runs spec on behalf of consumer with last-write-wins semantics:
// if another QueryFor for the same consumer starts while this one is in
// flight, or ctx is done, the result is dropped and ErrSuperseded returned.
func (e *Engine) QueryFor(ctx context.Context, consumer string, spec query.Spec) (query.Page, error) {
	t := e.latest.Begin(consumer)
	page, err := e.Query(ctx, spec)
	if ctx.Err() != nil || !e.latest.Current(t) {
		e.log.Debug("discarding stale result", zap.String("consumer", consumer))
		return query.Page{}, ErrSuperseded
	}
	return page, err
}

// Get returns one vehicle or an error wrapping domain.ErrNotFound.
func (e *Engine) Get(ctx context.Context, id string) (domain.Vehicle, error) {
	ctx, span := e.tracer.Start(ctx, "catalog.Get", trace.WithAttributes(attribute.String("vehicle_id", id)))
	defer span.End()
	v, err := e.src.GetVehicle(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Vehicle{}, err
	}
	return v, nil
}

// Recommendations returns vehicles related to id.
func (e *Engine) Recommendations(ctx context.Context, id string) ([]domain.Vehicle, error) {
	ctx, span := e.tracer.Start(ctx, "catalog.Recommendations", trace.WithAttributes(attribute.String("vehicle_id", id)))
	defer span.End()
	vs, err := e.src.Recommendations(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return vs, nil
}

// SubmitDraft validates and normalizes a seller's draft and publishes it:
// prepended to the local collection in local mode, posted to the backend in
// remote mode. An invalid draft is never sent anywhere.
func (e *Engine) SubmitDraft(ctx context.Context, d domain.Draft) (domain.Vehicle, error) {
	ctx, span := e.tracer.Start(ctx, "catalog.SubmitDraft")
	defer span.End()

	if err := domain.ValidateDraft(d, e.now()); err != nil {
		return domain.Vehicle{}, err
	}
	if d.ID == "" {
		d.ID = e.newID()
	}
	v, ok := e.norm.Vehicle(d)
	if !ok {
		return domain.Vehicle{}, fmt.Errorf("draft %s could not be normalized", d.ID)
	}
	if v.CreatedAt == nil {
		now := e.now().UTC()
		v.CreatedAt = &now
	}

	created, err := e.src.CreateVehicle(ctx, v)
	if err != nil {
		span.RecordError(err)
		return domain.Vehicle{}, fmt.Errorf("submit draft: %w", err)
	}
	e.log.Info("draft published",
		zap.String("vehicle_id", created.ID),
		zap.String("mode", string(e.src.Mode())),
	)
	return created, nil
}
