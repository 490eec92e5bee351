package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/pkg/resilience"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(t *testing.T, h http.Handler, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	c, err := New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, func(context.Context) string { return token }, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		srv.Close()
	})
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url"}, nil, nil)
	assert.Error(t, err)
}

func TestBearerInjection(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, r.Header.Get("Authorization"))
		mu.Unlock()
		writeJSON(w, 200, map[string]any{"id": "u1", "email": "a@b.com"})
	})

	_, err := newTestClient(t, h, "tok123").Me(context.Background())
	require.NoError(t, err)
	_, err = newTestClient(t, h, "").Me(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer tok123", ""}, got)
}

func TestLoginIsFormEncoded(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != "ana@example.com" || r.PostForm.Get("password") != "segredo123" {
			writeJSON(w, 401, map[string]any{"detail": "Credenciais inválidas"})
			return
		}
		writeJSON(w, 200, map[string]any{"access_token": "jwt", "token_type": "bearer"})
	})
	c := newTestClient(t, h, "")

	tok, err := c.Login(context.Background(), "ana@example.com", "segredo123")
	require.NoError(t, err)
	assert.Equal(t, "jwt", tok)

	_, err = c.Login(context.Background(), "ana@example.com", "errada")
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 401, gerr.StatusCode)
	assert.Equal(t, "Credenciais inválidas", gerr.Message())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestDetailExtraction(t *testing.T) {
	tests := []struct {
		body string
		want []string
	}{
		{`{"detail":"Email já cadastrado"}`, []string{"Email já cadastrado"}},
		{`{"detail":[{"msg":"campo obrigatório"},{"msg":"email inválido"}]}`, []string{"campo obrigatório", "email inválido"}},
		{`{"detail":["a","b"]}`, []string{"a", "b"}},
		{`{"message":"boom"}`, []string{"boom"}},
		{`<html>bad gateway</html>`, nil},
		{``, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractDetail([]byte(tt.body)), tt.body)
	}
}

func TestListVehiclesSendsWireQuery(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vehicles", r.URL.Path)
		assert.Equal(t, "onix", r.URL.Query().Get("q"))
		assert.Equal(t, "50000", r.URL.Query().Get("min_price"))
		writeJSON(w, 200, map[string]any{"items": []any{map[string]any{"id": "1"}}, "total": 37})
	})
	p, err := newTestClient(t, h, "").ListVehicles(context.Background(), url.Values{"q": {"onix"}, "min_price": {"50000"}})
	require.NoError(t, err)
	assert.Len(t, p.Items, 1)
	assert.Equal(t, 37, p.Total, "total is trusted verbatim")
}

func TestRawPageAcceptsBareArray(t *testing.T) {
	var p RawPage
	require.NoError(t, json.Unmarshal([]byte(`[{"id":"1"},{"id":"2"}]`), &p))
	assert.Len(t, p.Items, 2)
	assert.Equal(t, 2, p.Total)
}

func TestGetVehicleNotFound(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vehicles/a%2Fb", r.URL.EscapedPath())
		writeJSON(w, 404, map[string]any{"detail": "Veículo não encontrado"})
	})
	_, err := newTestClient(t, h, "").GetVehicle(context.Background(), "a/b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFavoritesEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /favorites", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "v1", body["vehicle_id"])
		writeJSON(w, 201, map[string]any{"id": "f1", "vehicle_id": "v1", "vehicle": map[string]any{"id": "v1"}})
	})
	mux.HandleFunc("GET /favorites", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, []any{map[string]any{"id": "f1", "vehicle_id": "v1"}})
	})
	mux.HandleFunc("DELETE /favorites/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v1", r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, mux, "tok")
	ctx := context.Background()

	raw, err := c.AddFavorite(ctx, "v1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"f1"`)

	list, err := c.ListFavorites(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, c.RemoveFavorite(ctx, "v1"))
}

func TestTransportFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := newTestClient(t, h, "").ListFavorites(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBreakerOpensOnServerErrorsOnly(t *testing.T) {
	var status atomic.Int32
	status.Store(404)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()
	c, err := New(Config{
		BaseURL: srv.URL,
		Breaker: resilience.BreakerOpts{FailThreshold: 2, Timeout: time.Minute},
	}, nil, nil)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.GetVehicle(ctx, "x")
		require.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, resilience.StateClosed, c.BreakerState())

	status.Store(503)
	for i := 0; i < 2; i++ {
		_, _ = c.GetVehicle(ctx, "x")
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	_, err = c.GetVehicle(ctx, "x")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: base, Timeout: time.Second}, nil, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ListVehicles(context.Background(), nil)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Zero(t, gerr.StatusCode)
	assert.True(t, gerr.Temporary())
}

func TestRateLimitHonoursContext(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { writeJSON(w, 200, []any{}) })
	srv := httptest.NewServer(h)
	defer srv.Close()
	c, err := New(Config{BaseURL: srv.URL, RateLimit: 0.001, Burst: 1}, nil, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ListFavorites(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListFavorites(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestCreateVehicleSendsJSON(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		var v map[string]any
		assert.NoError(t, json.Unmarshal(b, &v))
		v["id"] = "srv-1"
		writeJSON(w, 201, v)
	})
	raw, err := newTestClient(t, h, "tok").CreateVehicle(context.Background(), domain.Vehicle{ID: "d1", Title: "Kwid"})
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "srv-1", back["id"])
	assert.Equal(t, "Kwid", back["title"])
}

func TestErrorStrings(t *testing.T) {
	e := &Error{Method: "GET", Path: "/x", Cause: errors.New("dial")}
	assert.Contains(t, e.Error(), "dial")
	e = &Error{Method: "GET", Path: "/x", StatusCode: 502}
	assert.Contains(t, e.Error(), "Bad Gateway")
	assert.True(t, e.Temporary())
	e = &Error{Method: "GET", Path: "/x", StatusCode: 400, Detail: []string{"a", "b"}}
	assert.Contains(t, e.Error(), "a b")
	assert.False(t, e.Temporary())
}
