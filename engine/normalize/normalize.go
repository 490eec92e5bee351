// Package normalize turns the vehicle and favorite shapes produced by the
// seed dataset, seller drafts and the backend into canonical domain records.
//
// Normalization never fails with an error: a record that cannot be made
// canonical (today only a record without any usable id) is reported as
// ok == false and logged at warn level.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/pkg/fn"
	"github.com/buymove/buymove-client/pkg/vehiclenlp"
)

// Key aliases, in priority order.
var (
	idKeys           = []string{"id", "_id", "vehicleId", "vehicle_id", "slug", "code"}
	titleKeys        = []string{"title", "name"}
	fuelKeys         = []string{"fuelType", "fuel_type", "fuel"}
	transmissionKeys = []string{"transmission", "gearbox"}
	mileageKeys      = []string{"mileage", "km", "odometer"}
	sellerKeys       = []string{"sellerId", "seller_id"}
	versionKeys      = []string{"version", "trim"}
	locationKeys     = []string{"location", "city"}
	createdKeys      = []string{"createdAt", "created_at"}
	updatedKeys      = []string{"updatedAt", "updated_at"}
	singleImageKeys  = []string{"imageUrl", "image", "primaryImage"}
	whatsappKeys     = []string{"contactWhatsapp", "contact_whatsapp"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer converts raw records into canonical vehicles and favorites. The
// zero value is not usable; construct with New.
type Normalizer struct {
	log   *zap.Logger
	infer bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithoutInference disables filling blank brand, model and year from the
// title.
func WithoutInference() Option {
	return func(n *Normalizer) { n.infer = false }
}

// New creates a Normalizer. A nil logger discards warnings.
func New(log *zap.Logger, opts ...Option) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	n := &Normalizer{log: log.Named("normalize"), infer: true}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Vehicle normalizes raw into a canonical vehicle. Accepted inputs are
// decoded JSON objects, raw JSON, domain.Vehicle and domain.Draft values.
func (n *Normalizer) Vehicle(raw any) (domain.Vehicle, bool) {
	rec, ok := n.record(raw)
	if !ok {
		return domain.Vehicle{}, false
	}
	return n.vehicle(rec)
}

// Vehicles normalizes every element, dropping the ones that fail.
func (n *Normalizer) Vehicles(raws []any) []domain.Vehicle {
	return fn.FilterMap(raws, n.Vehicle)
}

// Favorite normalizes a favorite record. The vehicle is the embedded
// "vehicle" object when present, else the record itself. A record that only
// references its vehicle by vehicle_id yields a vehicle carrying just that id.
func (n *Normalizer) Favorite(raw any) (domain.Favorite, bool) {
	rec, ok := n.record(raw)
	if !ok {
		return domain.Favorite{}, false
	}

	var vrec map[string]any
	if embedded, isMap := rec["vehicle"].(map[string]any); isMap {
		vrec = embedded
	} else {
		vrec = rec
		if ref := firstString(rec, "vehicle_id", "vehicleId"); ref != "" {
			vrec = make(map[string]any, len(rec))
			for k, v := range rec {
				vrec[k] = v
			}
			delete(vrec, "_id")
			vrec["id"] = ref
		}
	}

	v, ok := n.vehicle(vrec)
	if !ok {
		return domain.Favorite{}, false
	}
	fav := domain.Favorite{
		ID:        firstString(rec, "id", "_id", "vehicle_id"),
		VehicleID: v.ID,
		CreatedAt: firstTime(rec, createdKeys...),
		Vehicle:   v,
	}
	if fav.ID == "" {
		fav.ID = v.ID
	}
	return fav, true
}

// Favorites normalizes every element, dropping the ones that fail.
func (n *Normalizer) Favorites(raws []any) []domain.Favorite {
	return fn.FilterMap(raws, n.Favorite)
}

// record converts any accepted input into a decoded JSON object. Typed values
// go through their JSON encoding so every input shares one code path.
func (n *Normalizer) record(raw any) (map[string]any, bool) {
	switch r := raw.(type) {
	case nil:
		n.log.Warn("dropping nil record")
		return nil, false
	case map[string]any:
		return r, true
	case json.RawMessage:
		return n.decode([]byte(r))
	case []byte:
		return n.decode(r)
	case domain.Vehicle, *domain.Vehicle, domain.Draft, *domain.Draft, domain.Favorite, *domain.Favorite:
		b, err := json.Marshal(r)
		if err != nil {
			n.log.Warn("dropping unencodable record", zap.String("type", fmt.Sprintf("%T", raw)), zap.Error(err))
			return nil, false
		}
		return n.decode(b)
	default:
		n.log.Warn("dropping record of unsupported type", zap.String("type", fmt.Sprintf("%T", raw)))
		return nil, false
	}
}

func (n *Normalizer) decode(b []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil || rec == nil {
		n.log.Warn("dropping undecodable record", zap.Error(err))
		return nil, false
	}
	return rec, true
}

func (n *Normalizer) vehicle(rec map[string]any) (domain.Vehicle, bool) {
	id := firstString(rec, idKeys...)
	if id == "" {
		n.log.Warn("dropping vehicle without id", zap.String("title", firstString(rec, titleKeys...)))
		return domain.Vehicle{}, false
	}

	v := domain.Vehicle{
		ID:              id,
		Title:           firstString(rec, titleKeys...),
		Brand:           firstString(rec, "brand", "make"),
		Model:           firstString(rec, "model"),
		Version:         firstString(rec, versionKeys...),
		Year:            int(nonNegative(domain.ParseNumber(rec["year"], 0))),
		Price:           nonNegative(domain.ParseNumber(rec["price"], 0)),
		Mileage:         nonNegative(domain.ParseNumber(first(rec, mileageKeys...), 0)),
		Color:           firstString(rec, "color"),
		FuelType:        firstString(rec, fuelKeys...),
		Transmission:    firstString(rec, transmissionKeys...),
		Doors:           doors(rec["doors"]),
		Location:        firstString(rec, locationKeys...),
		Description:     firstString(rec, "description"),
		Gallery:         gallery(rec),
		Features:        features(rec["features"]),
		SellerID:        firstString(rec, sellerKeys...),
		ContactName:     firstString(rec, "contactName", "contact_name"),
		ContactEmail:    firstString(rec, "contactEmail", "contact_email"),
		ContactPhone:    firstString(rec, "contactPhone", "contact_phone"),
		ContactWhatsApp: truthy(first(rec, whatsappKeys...)),
		CreatedAt:       firstTime(rec, createdKeys...),
		UpdatedAt:       firstTime(rec, updatedKeys...),
	}
	if len(v.Gallery) > 0 {
		v.PrimaryImage = v.Gallery[0]
	}

	if v.Title == "" {
		v.Title = strings.TrimSpace(v.Brand + " " + v.Model)
	}
	if n.infer && v.Title != "" && (v.Brand == "" || v.Model == "" || v.Year == 0) {
		if m := vehiclenlp.Best(v.Title); m != nil {
			if v.Brand == "" {
				v.Brand = m.Make
			}
			if v.Model == "" && (v.Brand == m.Make || m.Model == "") {
				v.Model = m.Model
			}
			if v.Year == 0 {
				v.Year = m.Year
			}
		}
	}
	return v, true
}

func first(rec map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v
		}
	}
	return nil
}

func firstString(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringify(rec[k]); s != "" {
			return s
		}
	}
	return ""
}

// stringify renders scalar values as trimmed strings. Objects are only
// understood in the {"$oid": "..."} form.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		if f, err := t.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return strconv.FormatInt(int64(f), 10)
		}
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any:
		if oid, ok := t["$oid"].(string); ok {
			return strings.TrimSpace(oid)
		}
	}
	return ""
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

func doors(v any) *int {
	f := domain.ParseNumber(v, 0)
	if f <= 0 {
		return nil
	}
	d := int(f)
	return &d
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	}
	return false
}

// gallery applies the image priority: images, then gallery, then a single
// image field. The result is never nil.
func gallery(rec map[string]any) []string {
	if imgs := stringList(rec["images"], "\n"); len(imgs) > 0 {
		return imgs
	}
	if imgs := stringList(rec["gallery"], "\n"); len(imgs) > 0 {
		return imgs
	}
	if single := firstString(rec, singleImageKeys...); single != "" {
		return []string{single}
	}
	return []string{}
}

func features(v any) []string {
	return fn.UniqueBy(stringList(v, ","), func(s string) string { return s })
}

// stringList accepts a JSON array or a sep-separated string and drops blank
// entries. The result is never nil.
func stringList(v any, sep string) []string {
	var parts []string
	switch t := v.(type) {
	case []any:
		parts = fn.Map(t, stringify)
	case []string:
		parts = t
	case string:
		parts = strings.Split(strings.ReplaceAll(t, "\r\n", "\n"), sep)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstTime(rec map[string]any, keys ...string) *time.Time {
	for _, k := range keys {
		s, ok := rec[k].(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return &t
			}
		}
	}
	return nil
}
