// Package query holds the catalog query model and the in-memory engine that
// answers it. The remote backend answers the same Spec through Wire, so a
// query behaves identically over memory or over the network.
package query

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/pkg/fn"
)

// DefaultPageSize is used when a Spec carries no usable page size.
const DefaultPageSize = 12

// MaxPageSize is the largest page the backend serves.
const MaxPageSize = 60

// Spec is a catalog query. Empty strings and nil bounds do not filter.
type Spec struct {
	Text     string
	Brand    string
	MinPrice *float64
	MaxPrice *float64
	Color    string
	Doors    string
	Location string
	Page     int
	PageSize int
}

// Page is one page of results. Total counts every match before pagination.
type Page struct {
	Items []domain.Vehicle `json:"items"`
	Total int              `json:"total"`
}

// Price returns a pointer to p for use as a Spec bound.
func Price(p float64) *float64 { return &p }

// Normalized returns s with page and page size defaulted.
func (s Spec) Normalized() Spec {
	if s.Page < 1 {
		s.Page = 1
	}
	if s.PageSize < 1 {
		s.PageSize = DefaultPageSize
	}
	return s
}

// Validate rejects price windows the backend would refuse.
func (s Spec) Validate() error {
	for _, b := range []struct {
		field string
		v     *float64
	}{{"min_price", s.MinPrice}, {"max_price", s.MaxPrice}} {
		if b.v == nil {
			continue
		}
		if *b.v < 0 || math.IsNaN(*b.v) {
			return domain.NewValidationError(b.field, formatPrice(*b.v), domain.ErrOutOfRange)
		}
	}
	if s.MinPrice != nil && s.MaxPrice != nil && *s.MinPrice > *s.MaxPrice {
		return domain.NewValidationError("min_price", formatPrice(*s.MinPrice),
			fmt.Errorf("%w: above max_price %s", domain.ErrOutOfRange, formatPrice(*s.MaxPrice)))
	}
	return nil
}

// Wire maps s onto the backend's query parameters, omitting anything that
// does not filter.
func (s Spec) Wire() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			q.Set(k, v)
		}
	}
	set("q", s.Text)
	set("brand", s.Brand)
	set("color", s.Color)
	set("doors", s.Doors)
	set("location", s.Location)
	if s.MinPrice != nil {
		q.Set("min_price", formatPrice(*s.MinPrice))
	}
	if s.MaxPrice != nil {
		q.Set("max_price", formatPrice(*s.MaxPrice))
	}
	if s.Page > 0 {
		q.Set("page", strconv.Itoa(s.Page))
	}
	if s.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(s.PageSize))
	}
	return q
}

// FromWire parses backend query parameters back into a Spec. Malformed
// numbers are ignored.
func FromWire(q url.Values) Spec {
	s := Spec{
		Text:     q.Get("q"),
		Brand:    q.Get("brand"),
		Color:    q.Get("color"),
		Doors:    q.Get("doors"),
		Location: q.Get("location"),
	}
	if v, err := strconv.ParseFloat(q.Get("min_price"), 64); err == nil {
		s.MinPrice = &v
	}
	if v, err := strconv.ParseFloat(q.Get("max_price"), 64); err == nil {
		s.MaxPrice = &v
	}
	s.Page, _ = strconv.Atoi(q.Get("page"))
	s.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	return s
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// Run filters and paginates vehicles.
func Run(vehicles []domain.Vehicle, s Spec) Page {
	matched := Filter(vehicles, s)
	return Page{Items: Paginate(matched, s.Page, s.PageSize), Total: len(matched)}
}

// Filter applies the Spec's filters with AND semantics. The order is fixed:
// price window, brand, text, color, doors, location. Text matches the title
// and description.
func Filter(vehicles []domain.Vehicle, s Spec) []domain.Vehicle {
	out := vehicles
	if s.MinPrice != nil || s.MaxPrice != nil {
		out = fn.Filter(out, func(v domain.Vehicle) bool {
			return (s.MinPrice == nil || v.Price >= *s.MinPrice) &&
				(s.MaxPrice == nil || v.Price <= *s.MaxPrice)
		})
	}
	if brand := fold(s.Brand); brand != "" {
		out = fn.Filter(out, func(v domain.Vehicle) bool { return strings.Contains(fold(v.Brand), brand) })
	}
	if text := fold(s.Text); text != "" {
		out = fn.Filter(out, func(v domain.Vehicle) bool {
			return strings.Contains(fold(v.Title+" "+v.Description), text)
		})
	}
	if color := fold(s.Color); color != "" {
		out = fn.Filter(out, func(v domain.Vehicle) bool { return strings.Contains(fold(v.Color), color) })
	}
	if doors := strings.TrimSpace(s.Doors); doors != "" {
		out = fn.Filter(out, func(v domain.Vehicle) bool { return v.DoorsString() == doors })
	}
	if loc := fold(s.Location); loc != "" {
		out = fn.Filter(out, func(v domain.Vehicle) bool { return strings.Contains(fold(v.Location), loc) })
	}
	if out == nil {
		return []domain.Vehicle{}
	}
	return out
}

// Paginate returns the 1-based page of items. Page < 1 is treated as 1 and
// pageSize < 1 as DefaultPageSize. Past the end the page is empty, never nil.
func Paginate(items []domain.Vehicle, page, pageSize int) []domain.Vehicle {
	s := Spec{Page: page, PageSize: pageSize}.Normalized()
	return fn.Page(items, (s.Page-1)*s.PageSize, s.PageSize)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
