package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/buymove/buymove-client/engine/catalog"
	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/engine/favorites"
	"github.com/buymove/buymove-client/engine/normalize"
	"github.com/buymove/buymove-client/engine/query"
	"github.com/buymove/buymove-client/engine/session"
	"github.com/buymove/buymove-client/engine/source"
	"github.com/buymove/buymove-client/pkg/gateway"
	"github.com/buymove/buymove-client/pkg/kv"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*server, *httptest.Server) {
	t.Helper()
	seed, err := source.Seed(normalize.New(nil))
	require.NoError(t, err)
	srv, err := newServer(serverOptions{Secret: testSecret, BcryptCost: bcrypt.MinCost, Seed: seed}, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = srv.addUser(domain.RegisterRequest{Email: "alice@example.com", Password: "hunter22", FullName: "Alice"})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

// client is the full client stack wired the way cmd/buymove wires it.
type client struct {
	gw        *gateway.Client
	sessions  *session.Manager
	catalog   *catalog.Engine
	favorites *favorites.Reconciler
	store     kv.Store
}

func newClient(t *testing.T, baseURL string, store kv.Store) *client {
	t.Helper()
	var sessions *session.Manager
	gw, err := gateway.New(gateway.Config{BaseURL: baseURL, Timeout: 5 * time.Second},
		func(context.Context) string { return sessions.Token() }, nil)
	require.NoError(t, err)
	t.Cleanup(gw.Close)
	sessions = session.New(store, gw, nil, nil)

	norm := normalize.New(nil)
	local, err := source.NewLocal(store, norm, nil, nil)
	require.NoError(t, err)
	sel := source.Selector{Local: local, Remote: source.NewRemote(gw, norm)}
	return &client{
		gw:        gw,
		sessions:  sessions,
		catalog:   catalog.New(sel, norm, nil),
		favorites: favorites.New(sel, sessions, nil, nil),
		store:     store,
	}
}

func vehicleIDs(vs []domain.Vehicle) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.ID
	}
	return out
}

func TestClientEndToEnd(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()
	c := newClient(t, ts.URL, kv.NewMemory())

	// Catalog over the wire.
	page, err := c.catalog.Query(ctx, query.Spec{MinPrice: query.Price(40000), MaxPrice: query.Price(60000)})
	require.NoError(t, err)
	assert.Contains(t, vehicleIDs(page.Items), "v1")
	for _, v := range page.Items {
		assert.GreaterOrEqual(t, v.Price, 40000.0)
		assert.LessOrEqual(t, v.Price, 60000.0)
	}
	page, err = c.catalog.Query(ctx, query.Spec{MinPrice: query.Price(60000), MaxPrice: query.Price(70000)})
	require.NoError(t, err)
	assert.NotContains(t, vehicleIDs(page.Items), "v1")

	recs, err := c.catalog.Recommendations(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, recs, source.MaxRecommendations)

	// Failed login leaves nothing behind.
	err = c.sessions.Login(ctx, "alice@example.com", "wrong-password")
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Credenciais inválidas", authErr.Message)
	_, err = c.store.Get(ctx, domain.KeyToken)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	// Anonymous favorites stay local.
	v2, err := c.catalog.Get(ctx, "v2")
	require.NoError(t, err)
	out, err := c.favorites.Toggle(ctx, v2)
	require.NoError(t, err)
	assert.Equal(t, favorites.OutcomeAdded, out)

	require.NoError(t, c.sessions.Login(ctx, "alice@example.com", "hunter22"))
	assert.True(t, c.sessions.Authenticated())
	assert.Equal(t, "alice@example.com", c.sessions.Session().User.Email)

	// Remote favorites after login; the local one is only pending.
	require.NoError(t, c.favorites.Refresh(ctx))
	assert.Empty(t, c.favorites.Favorites())
	pending, err := c.favorites.LocalPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "v2", pending[0].VehicleID)

	v1, err := c.catalog.Get(ctx, "v1")
	require.NoError(t, err)
	out, err = c.favorites.Toggle(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, favorites.OutcomeAdded, out)
	favs := c.favorites.Favorites()
	require.Len(t, favs, 1)
	assert.Equal(t, v1.Title, favs[0].Vehicle.Title, "bare reference is filled from the toggled vehicle")

	require.NoError(t, c.favorites.Refresh(ctx))
	favs = c.favorites.Favorites()
	require.Len(t, favs, 1)
	assert.Equal(t, "v1", favs[0].VehicleID)
	assert.Equal(t, v1.Title, favs[0].Vehicle.Title)

	out, err = c.favorites.Toggle(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, favorites.OutcomeRemoved, out)
	require.NoError(t, c.favorites.Refresh(ctx))
	assert.Empty(t, c.favorites.Favorites())

	// Publishing a listing puts it first.
	created, err := c.catalog.SubmitDraft(ctx, domain.Draft{
		Title:        "X",
		Brand:        "Fiat",
		Model:        "Uno",
		Year:         "2015",
		Price:        "R$ 10.000,00",
		Description:  "Carro de entrada",
		ContactPhone: "(31) 99999-0000",
	})
	require.NoError(t, err)
	assert.Equal(t, 10000.0, created.Price)
	assert.Equal(t, c.sessions.Session().User.ID, created.SellerID)
	page, err = c.catalog.Query(ctx, query.Spec{})
	require.NoError(t, err)
	assert.Equal(t, created.ID, page.Items[0].ID)
	assert.Equal(t, 13, page.Total)

	// A second client restores the persisted session.
	restored := newClient(t, ts.URL, c.store)
	require.NoError(t, restored.sessions.Start(ctx))
	assert.True(t, restored.sessions.Authenticated())

	c.sessions.Logout()
	assert.False(t, c.sessions.Authenticated())
	_, err = c.store.Get(ctx, domain.KeyToken)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestRegisterThroughGateway(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()
	gw, err := gateway.New(gateway.Config{BaseURL: ts.URL}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(gw.Close)

	u, err := gw.Register(ctx, domain.RegisterRequest{Email: "Bob@Example.com", Password: "longenough"})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", u.Email)
	assert.NotEmpty(t, u.ID)

	_, err = gw.Register(ctx, domain.RegisterRequest{Email: "bob@example.com", Password: "longenough"})
	var gerr *gateway.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusBadRequest, gerr.StatusCode)
	assert.Equal(t, "E-mail já cadastrado", gerr.Message())

	_, err = gw.Register(ctx, domain.RegisterRequest{Email: "not-an-email", Password: "longenough"})
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusUnprocessableEntity, gerr.StatusCode)
	assert.Equal(t, []string{"email: invalid email"}, gerr.Detail)
}

func TestProtectedRoutes(t *testing.T) {
	srv, ts := newTestServer(t)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "whoever",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	srv.mu.RLock()
	alice := srv.byEmail["alice@example.com"].user
	srv.mu.RUnlock()
	valid, err := srv.issueToken(alice)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + forged, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/favorites", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := ts.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func get(t *testing.T, ts *httptest.Server, path string) (int, map[string]any) {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestCatalogEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := get(t, ts, "/vehicles?"+url.Values{"doors": {"4"}, "page_size": {"60"}}.Encode())
	require.Equal(t, http.StatusOK, status)
	for _, item := range body["items"].([]any) {
		assert.EqualValues(t, 4, item.(map[string]any)["doors"])
	}

	status, body = get(t, ts, "/vehicles?min_price=10&max_price=5")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.NotEmpty(t, body["detail"])

	status, body = get(t, ts, "/vehicles/nope")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Veículo não encontrado", body["detail"])

	status, _ = get(t, ts, "/vehicles/nope/recommendations")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = get(t, ts, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateVehicleValidation(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.mu.RLock()
	alice := srv.byEmail["alice@example.com"].user
	srv.mu.RUnlock()
	token, err := srv.issueToken(alice)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/vehicles", strings.NewReader(`{"description":"sem título"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body struct {
		Detail []struct {
			Msg string `json:"msg"`
		} `json:"detail"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Detail, 2)
}

func TestAddFavoriteUnknownVehicle(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()
	c := newClient(t, ts.URL, kv.NewMemory())
	require.NoError(t, c.sessions.Login(ctx, "alice@example.com", "hunter22"))

	_, err := c.gw.AddFavorite(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = c.gw.RemoveFavorite(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()
	c := newClient(t, ts.URL, kv.NewMemory())
	require.Error(t, c.sessions.Login(ctx, "alice@example.com", "wrong-password"))
	require.NoError(t, c.sessions.Login(ctx, "alice@example.com", "hunter22"))
	_, err := c.gw.AddFavorite(ctx, "v1")
	require.NoError(t, err)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `devapi_logins_total{outcome="ok"} 1`)
	assert.Contains(t, body, `devapi_logins_total{outcome="rejected"} 1`)
	assert.Contains(t, body, "devapi_accounts 1\n")
	assert.Contains(t, body, "devapi_favorites 1\n")
	assert.Contains(t, body, `http_requests_total{method="POST",status="401"} 1`)
}

func TestNewServerNeedsSecret(t *testing.T) {
	_, err := newServer(serverOptions{}, nil)
	assert.Error(t, err)
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "env-file", "addr", "demo-user"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
