// Package domain defines the canonical marketplace types shared by the
// catalog, favorites and session engines, together with the sentinel errors
// and the validation gate applied before anything is sent to the backend.
package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Persisted key names. Values are JSON documents.
const (
	KeyToken    = "bm_token"
	KeyUser     = "bm_user"
	KeyFavorite = "bm_favorites"
	KeyDrafts   = "bm_vehicle_list"
)

// Vehicle is the canonical vehicle record every source is normalized into.
type Vehicle struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Brand           string     `json:"brand"`
	Model           string     `json:"model"`
	Version         string     `json:"version,omitempty"`
	Year            int        `json:"year"`
	Price           float64    `json:"price"`
	Mileage         float64    `json:"mileage"`
	Color           string     `json:"color,omitempty"`
	FuelType        string     `json:"fuelType,omitempty"`
	Transmission    string     `json:"transmission,omitempty"`
	Doors           *int       `json:"doors,omitempty"`
	Location        string     `json:"location,omitempty"`
	Description     string     `json:"description,omitempty"`
	Gallery         []string   `json:"gallery"`
	PrimaryImage    string     `json:"primaryImage"`
	Features        []string   `json:"features"`
	SellerID        string     `json:"sellerId,omitempty"`
	ContactName     string     `json:"contactName,omitempty"`
	ContactEmail    string     `json:"contactEmail,omitempty"`
	ContactPhone    string     `json:"contactPhone,omitempty"`
	ContactWhatsApp bool       `json:"contactWhatsapp,omitempty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// vehicleJSON avoids MarshalJSON recursion.
type vehicleJSON Vehicle

// MarshalJSON writes the canonical fields plus the legacy aliases older
// consumers still read (fuel, gearbox, km, imageUrl, images).
func (v Vehicle) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		vehicleJSON
		Fuel     string   `json:"fuel,omitempty"`
		Gearbox  string   `json:"gearbox,omitempty"`
		Km       float64  `json:"km"`
		ImageURL string   `json:"imageUrl"`
		Images   []string `json:"images"`
	}{
		vehicleJSON: vehicleJSON(v),
		Fuel:        v.FuelType,
		Gearbox:     v.Transmission,
		Km:          v.Mileage,
		ImageURL:    v.PrimaryImage,
		Images:      v.Gallery,
	})
}

// DoorsString renders Doors the way the doors filter compares it.
func (v Vehicle) DoorsString() string {
	if v.Doors == nil {
		return ""
	}
	return strconv.Itoa(*v.Doors)
}

// Favorite links a session to a vehicle.
type Favorite struct {
	ID        string     `json:"id"`
	VehicleID string     `json:"vehicleId"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Vehicle   Vehicle    `json:"vehicle"`
}

// User is the public profile returned by the backend.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Document  string     `json:"document,omitempty"`
	Roles     []string   `json:"roles,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// RegisterRequest is the payload of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Document string `json:"document,omitempty"`
}

// Phase is a state of the session state machine.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseInitializing
	PhaseAuthenticating
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseInitializing:
		return "initializing"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Session is a snapshot of the authentication state.
type Session struct {
	Token string `json:"-"`
	User  *User  `json:"user,omitempty"`
	Phase Phase  `json:"phase"`
	// AuthError is the last user-facing authentication message, if any.
	AuthError string `json:"error,omitempty"`
}

// Authenticated reports whether the session carries a hydrated user.
func (s Session) Authenticated() bool {
	return s.Phase == PhaseAuthenticated && s.User != nil
}

// Draft is a listing as typed by a seller, before normalization. Gallery
// holds one image reference per line.
type Draft struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	Brand           string `json:"brand"`
	Model           string `json:"model"`
	Version         string `json:"version,omitempty"`
	Year            string `json:"year"`
	Price           string `json:"price"`
	Mileage         string `json:"km,omitempty"`
	Color           string `json:"color,omitempty"`
	Fuel            string `json:"fuel,omitempty"`
	Gearbox         string `json:"gearbox,omitempty"`
	Doors           string `json:"doors,omitempty"`
	Location        string `json:"location,omitempty"`
	ImageURL        string `json:"imageUrl,omitempty"`
	Gallery         string `json:"gallery,omitempty"`
	Description     string `json:"description"`
	ContactName     string `json:"contactName,omitempty"`
	ContactEmail    string `json:"contactEmail,omitempty"`
	ContactPhone    string `json:"contactPhone,omitempty"`
	ContactWhatsApp bool   `json:"contactWhatsapp,omitempty"`
}
