package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/engine/normalize"
	"github.com/buymove/buymove-client/engine/query"
	"github.com/buymove/buymove-client/engine/source"
	"github.com/buymove/buymove-client/pkg/fn"
	"github.com/buymove/buymove-client/pkg/kv"
	"github.com/buymove/buymove-client/pkg/metrics"
	"github.com/buymove/buymove-client/pkg/mid"
)

const maxBody = 1 << 20

// serverOptions configures the in-memory backend.
type serverOptions struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
	CORSOrigin string
	Seed       []domain.Vehicle
}

type account struct {
	user domain.User
	hash []byte
}

// server is an in-memory buyMove backend. The catalog reuses the local data
// source over a memory store; accounts and favorites live in maps.
type server struct {
	opts    serverOptions
	log     *zap.Logger
	norm    *normalize.Normalizer
	catalog *source.LocalDataSource
	now     func() time.Time
	metrics *metrics.Registry
	logins  metrics.Counter

	mu        sync.RWMutex
	byEmail   map[string]*account
	byID      map[string]*account
	favorites map[string][]domain.Favorite // by user id
}

func newServer(opts serverOptions, log *zap.Logger) (*server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.Secret == "" {
		return nil, errors.New("devapi: jwt secret is required")
	}
	norm := normalize.New(log)
	catalog, err := source.NewLocal(kv.NewMemory(), norm, opts.Seed, log)
	if err != nil {
		return nil, err
	}
	reg := metrics.New()
	s := &server{
		opts:      opts,
		log:       log.Named("devapi"),
		norm:      norm,
		catalog:   catalog,
		now:       time.Now,
		metrics:   reg,
		logins:    reg.Counter("devapi_logins_total", "Login attempts by outcome.", "outcome"),
		byEmail:   map[string]*account{},
		byID:      map[string]*account{},
		favorites: map[string][]domain.Favorite{},
	}
	reg.GaugeFunc("devapi_accounts", "Registered accounts.", func() float64 {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return float64(len(s.byID))
	})
	reg.GaugeFunc("devapi_favorites", "Favorites across all accounts.", func() float64 {
		s.mu.RLock()
		defer s.mu.RUnlock()
		n := 0
		for _, favs := range s.favorites {
			n += len(favs)
		}
		return float64(n)
	})
	return s, nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(mid.RequestID(), mid.Recover(s.log), mid.Logger(s.log), mid.Metrics(s.metrics), mid.CORS(s.opts.CORSOrigin))

	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		mid.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)
	r.Get("/vehicles", s.handleListVehicles)
	r.Get("/vehicles/{id}", s.handleGetVehicle)
	r.Get("/vehicles/{id}/recommendations", s.handleRecommendations)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/auth/me", s.handleMe)
		r.Post("/vehicles", s.handleCreateVehicle)
		r.Get("/favorites", s.handleListFavorites)
		r.Post("/favorites", s.handleAddFavorite)
		r.Delete("/favorites/{vehicleId}", s.handleRemoveFavorite)
	})
	return mid.OTel("devapi")(r)
}

// --- Accounts ---

func (s *server) addUser(req domain.RegisterRequest) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
	if err != nil {
		return domain.User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return domain.User{}, errEmailTaken
	}
	acc := &account{
		user: domain.User{
			ID:        uuid.NewString(),
			Email:     email,
			FullName:  req.FullName,
			Phone:     req.Phone,
			Document:  req.Document,
			Roles:     []string{"buyer", "seller"},
			CreatedAt: &now,
			UpdatedAt: &now,
		},
		hash: hash,
	}
	s.byEmail[email] = acc
	s.byID[acc.user.ID] = acc
	return acc.user, nil
}

var errEmailTaken = errors.New("email already registered")

func (s *server) issueToken(u domain.User) (string, error) {
	now := s.now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   u.ID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
	}).SignedString([]byte(s.opts.Secret))
}

type userKey struct{}

func userFrom(ctx context.Context) domain.User {
	u, _ := ctx.Value(userKey{}).(domain.User)
	return u
}

// authenticate admits requests with a valid bearer token for a known user.
func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			mid.WriteError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims,
			func(*jwt.Token) (any, error) { return []byte(s.opts.Secret), nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(s.now),
		)
		if err != nil {
			s.log.Debug("rejected token", zap.Error(err))
			mid.WriteError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		s.mu.RLock()
		acc, found := s.byID[claims.Subject]
		s.mu.RUnlock()
		if !found {
			mid.WriteError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, acc.user)))
	})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseForm(); err != nil {
		mid.WriteError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(r.PostForm.Get("username")))
	password := r.PostForm.Get("password")
	if err := domain.ValidateCredentials(email, password); err != nil {
		writeValidation(w, err)
		return
	}

	s.mu.RLock()
	acc, found := s.byEmail[email]
	s.mu.RUnlock()
	if !found || bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		s.logins.Inc("rejected")
		mid.WriteError(w, http.StatusUnauthorized, "Credenciais inválidas")
		return
	}
	token, err := s.issueToken(acc.user)
	if err != nil {
		s.log.Error("signing token", zap.Error(err))
		mid.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	s.logins.Inc("ok")
	mid.WriteJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := domain.ValidateRegistration(req); err != nil {
		writeValidation(w, err)
		return
	}
	u, err := s.addUser(req)
	switch {
	case errors.Is(err, errEmailTaken):
		mid.WriteError(w, http.StatusBadRequest, "E-mail já cadastrado")
	case err != nil:
		s.log.Error("register", zap.Error(err))
		mid.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
	default:
		s.log.Info("registered", zap.String("user_id", u.ID))
		mid.WriteJSON(w, http.StatusCreated, u)
	}
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	mid.WriteJSON(w, http.StatusOK, userFrom(r.Context()))
}

// --- Catalog ---

func (s *server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	spec := query.FromWire(r.URL.Query())
	if err := spec.Validate(); err != nil {
		writeValidation(w, err)
		return
	}
	page, err := s.catalog.ListVehicles(r.Context(), spec)
	if err != nil {
		s.log.Error("list vehicles", zap.Error(err))
		mid.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	mid.WriteJSON(w, http.StatusOK, page)
}

func (s *server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := s.catalog.GetVehicle(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		mid.WriteError(w, http.StatusNotFound, "Veículo não encontrado")
		return
	case err != nil:
		s.log.Error("get vehicle", zap.Error(err))
		mid.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	mid.WriteJSON(w, http.StatusOK, v)
}

func (s *server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.catalog.GetVehicle(r.Context(), id); errors.Is(err, domain.ErrNotFound) {
		mid.WriteError(w, http.StatusNotFound, "Veículo não encontrado")
		return
	}
	recs, _ := s.catalog.Recommendations(r.Context(), id)
	mid.WriteJSON(w, http.StatusOK, recs)
}

func (s *server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var rec map[string]any
	if !decodeJSON(w, r, &rec) {
		return
	}
	if rec == nil {
		rec = map[string]any{}
	}
	if id, _ := rec["id"].(string); id == "" {
		rec["id"] = uuid.NewString()
	}
	v, ok := s.norm.Vehicle(rec)
	if !ok {
		mid.WriteError(w, http.StatusUnprocessableEntity, "invalid vehicle")
		return
	}
	var problems []string
	if v.Title == "" {
		problems = append(problems, "title: field required")
	}
	if v.Price <= 0 {
		problems = append(problems, "price: must be greater than zero")
	}
	if len(problems) > 0 {
		writeDetails(w, problems)
		return
	}

	now := s.now().UTC()
	v.SellerID = userFrom(r.Context()).ID
	v.CreatedAt, v.UpdatedAt = &now, &now
	created, err := s.catalog.CreateVehicle(r.Context(), v)
	if err != nil {
		s.log.Error("create vehicle", zap.Error(err))
		mid.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	s.log.Info("vehicle created", zap.String("vehicle_id", created.ID), zap.String("seller_id", v.SellerID))
	mid.WriteJSON(w, http.StatusCreated, created)
}

// --- Favorites ---

// favoriteRef is the POST /favorites answer: the record without its vehicle.
type favoriteRef struct {
	ID        string     `json:"id"`
	VehicleID string     `json:"vehicle_id"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (s *server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r.Context()).ID
	s.mu.RLock()
	favs := append([]domain.Favorite{}, s.favorites[uid]...)
	s.mu.RUnlock()
	mid.WriteJSON(w, http.StatusOK, favs)
}

func (s *server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VehicleID  string `json:"vehicle_id"`
		VehicleID2 string `json:"vehicleId"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	vid := body.VehicleID
	if vid == "" {
		vid = body.VehicleID2
	}
	if vid == "" {
		writeDetails(w, []string{"vehicle_id: field required"})
		return
	}
	v, err := s.catalog.GetVehicle(r.Context(), vid)
	if errors.Is(err, domain.ErrNotFound) {
		mid.WriteError(w, http.StatusNotFound, "Veículo não encontrado")
		return
	}

	uid := userFrom(r.Context()).ID
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := fn.Find(s.favorites[uid], func(f domain.Favorite) bool { return f.VehicleID == vid }); ok {
		mid.WriteJSON(w, http.StatusOK, favoriteRef{ID: f.ID, VehicleID: f.VehicleID, CreatedAt: f.CreatedAt})
		return
	}
	now := s.now().UTC()
	f := domain.Favorite{ID: uuid.NewString(), VehicleID: vid, CreatedAt: &now, Vehicle: v}
	s.favorites[uid] = append([]domain.Favorite{f}, s.favorites[uid]...)
	mid.WriteJSON(w, http.StatusCreated, favoriteRef{ID: f.ID, VehicleID: f.VehicleID, CreatedAt: f.CreatedAt})
}

func (s *server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r.Context()).ID
	vid := chi.URLParam(r, "vehicleId")

	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.favorites[uid])
	s.favorites[uid] = fn.Filter(s.favorites[uid], func(f domain.Favorite) bool { return f.VehicleID != vid })
	if len(s.favorites[uid]) == before {
		mid.WriteError(w, http.StatusNotFound, "Favorito não encontrado")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		mid.WriteError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeValidation answers 422 with a detail list, the shape validation
// frameworks produce.
func writeValidation(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeDetails(w, []string{verr.Field + ": " + verr.Wrapped.Error()})
		return
	}
	writeDetails(w, []string{err.Error()})
}

func writeDetails(w http.ResponseWriter, msgs []string) {
	type item struct {
		Msg string `json:"msg"`
	}
	mid.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": fn.Map(msgs, func(m string) item { return item{Msg: m} }),
	})
}
