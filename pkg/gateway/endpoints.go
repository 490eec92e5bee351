package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/buymove/buymove-client/engine/domain"
)

// RawPage is a page of undecoded vehicle records.
type RawPage struct {
	Items []json.RawMessage `json:"items"`
	Total int               `json:"total"`
}

// UnmarshalJSON accepts both {"items": [...], "total": n} and a bare array.
func (p *RawPage) UnmarshalJSON(b []byte) error {
	if t := bytes.TrimSpace(b); len(t) > 0 && t[0] == '[' {
		if err := json.Unmarshal(t, &p.Items); err != nil {
			return err
		}
		p.Total = len(p.Items)
		return nil
	}
	var env struct {
		Items []json.RawMessage `json:"items"`
		Total *int              `json:"total"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	p.Items = env.Items
	p.Total = len(env.Items)
	if env.Total != nil {
		p.Total = *env.Total
	}
	return nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for an access token. The body is form
// encoded with the email as username.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	form := url.Values{"username": {email}, "password": {password}}
	var tok tokenResponse
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &tok)
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", &Error{Method: http.MethodPost, Path: "/auth/login", StatusCode: http.StatusBadGateway,
			Detail: []string{"resposta de login sem token"}}
	}
	return tok.AccessToken, nil
}

// Me returns the profile of the credential's owner.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var u domain.User
	err := c.do(ctx, request{method: http.MethodGet, path: "/auth/me"}, &u)
	return u, err
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error) {
	r, err := jsonRequest(http.MethodPost, "/auth/register", req)
	if err != nil {
		return domain.User{}, err
	}
	var u domain.User
	err = c.do(ctx, r, &u)
	return u, err
}

// ListVehicles searches the catalog with backend query parameters.
func (c *Client) ListVehicles(ctx context.Context, q url.Values) (RawPage, error) {
	var p RawPage
	err := c.do(ctx, request{method: http.MethodGet, path: "/vehicles", query: q}, &p)
	if p.Items == nil {
		p.Items = []json.RawMessage{}
	}
	return p, err
}

// GetVehicle fetches one vehicle.
func (c *Client) GetVehicle(ctx context.Context, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{method: http.MethodGet, path: "/vehicles/" + url.PathEscape(id)}, &raw)
	return raw, err
}

// Recommendations lists vehicles related to id.
func (c *Client) Recommendations(ctx context.Context, id string) ([]json.RawMessage, error) {
	var p RawPage
	err := c.do(ctx, request{method: http.MethodGet, path: "/vehicles/" + url.PathEscape(id) + "/recommendations"}, &p)
	if p.Items == nil {
		p.Items = []json.RawMessage{}
	}
	return p.Items, err
}

// CreateVehicle publishes a listing and returns the stored record.
func (c *Client) CreateVehicle(ctx context.Context, v any) (json.RawMessage, error) {
	r, err := jsonRequest(http.MethodPost, "/vehicles", v)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	err = c.do(ctx, r, &raw)
	return raw, err
}

// ListFavorites returns the session's favorites.
func (c *Client) ListFavorites(ctx context.Context) ([]json.RawMessage, error) {
	var p RawPage
	err := c.do(ctx, request{method: http.MethodGet, path: "/favorites"}, &p)
	if p.Items == nil {
		p.Items = []json.RawMessage{}
	}
	return p.Items, err
}

// AddFavorite marks vehicleID as a favorite and returns the server record.
func (c *Client) AddFavorite(ctx context.Context, vehicleID string) (json.RawMessage, error) {
	r, err := jsonRequest(http.MethodPost, "/favorites", map[string]string{
		"vehicle_id": vehicleID,
		"vehicleId":  vehicleID,
	})
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	err = c.do(ctx, r, &raw)
	return raw, err
}

// RemoveFavorite unmarks vehicleID.
func (c *Client) RemoveFavorite(ctx context.Context, vehicleID string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/favorites/" + url.PathEscape(vehicleID)}, nil)
}
