// Package session owns the authentication state machine and the persisted
// credential and profile.
//
//	Unauthenticated -> Initializing   -> Authenticated | Unauthenticated
//	Unauthenticated -> Authenticating -> Authenticated | Unauthenticated
//	Authenticated   -> Unauthenticated (logout)
//
// Any doubt about a persisted credential collapses the session to
// Unauthenticated and wipes what was stored.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/engine/events"
	"github.com/buymove/buymove-client/pkg/gateway"
	"github.com/buymove/buymove-client/pkg/kv"
)

// User-facing fallbacks when the backend gave no usable detail.
const (
	MsgLoginFailed    = "Não foi possível entrar. Verifique suas credenciais."
	MsgRegisterFailed = "Não foi possível concluir o cadastro."
	MsgSessionExpired = "Sua sessão expirou. Entre novamente."
)

var errTokenExpired = errors.New("session: token expired")

// Auth is the part of the backend the session talks to.
type Auth interface {
	Login(ctx context.Context, email, password string) (string, error)
	Me(ctx context.Context) (domain.User, error)
	Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error)
}

var _ Auth = (*gateway.Client)(nil)

// Manager holds the current session.
type Manager struct {
	store  kv.Store
	auth   Auth
	pub    events.Publisher
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	mu   sync.RWMutex
	sess domain.Session
}

// New creates a Manager in the Unauthenticated phase. Call Start to pick up
// a persisted credential. pub may be nil.
func New(store kv.Store, auth Auth, pub events.Publisher, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = events.Noop{}
	}
	return &Manager{
		store:  store,
		auth:   auth,
		pub:    pub,
		log:    log.Named("session"),
		tracer: otel.Tracer("github.com/buymove/buymove-client/engine/session"),
		now:    time.Now,
		sess:   domain.Session{Phase: domain.PhaseUnauthenticated},
	}
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.sess
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Token returns the credential in use, or "". It is set while
// authenticating so the profile request carries it.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess.Token
}

// TokenSource adapts Token for the gateway.
func (m *Manager) TokenSource(context.Context) string { return m.Token() }

// Authenticated reports whether a user is logged in.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess.Authenticated()
}

// Start restores a persisted session. Without a credential it does nothing.
// With one it hydrates the profile; on failure everything persisted is
// cleared and an *domain.AuthError is returned.
func (m *Manager) Start(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "session.Start")
	defer span.End()

	token, err := kv.GetJSON[string](ctx, m.store, domain.KeyToken)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		m.log.Warn("reading persisted token", zap.Error(err))
	}
	if err != nil || token == "" {
		// A profile without a usable token is a torn write.
		if _, uerr := m.store.Get(ctx, domain.KeyUser); uerr == nil || (err != nil && !errors.Is(err, kv.ErrNotFound)) {
			m.log.Warn("clearing inconsistent persisted session")
			m.clear(ctx)
		}
		m.transition(ctx, domain.Session{Phase: domain.PhaseUnauthenticated})
		return nil
	}

	m.transition(ctx, domain.Session{Token: token, Phase: domain.PhaseInitializing})
	if err := m.hydrate(ctx, token); err != nil {
		if ctx.Err() != nil {
			// Interrupted, not rejected: keep the credential for next time.
			m.transition(context.WithoutCancel(ctx), domain.Session{Phase: domain.PhaseUnauthenticated})
			return ctx.Err()
		}
		span.SetStatus(codes.Error, err.Error())
		m.log.Info("persisted session rejected", zap.Error(err))
		m.clear(ctx)
		msg := userMessage(err, MsgSessionExpired)
		m.transition(ctx, domain.Session{Phase: domain.PhaseUnauthenticated, AuthError: msg})
		return &domain.AuthError{Message: msg, Cause: err}
	}
	return nil
}

// Login exchanges credentials for a token and hydrates the profile. On any
// failure nothing stays persisted and the returned error is a
// *domain.ValidationError (nothing was sent) or a *domain.AuthError.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if err := domain.ValidateCredentials(email, password); err != nil {
		return err
	}
	ctx, span := m.tracer.Start(ctx, "session.Login")
	defer span.End()

	m.transition(ctx, domain.Session{Phase: domain.PhaseAuthenticating})

	token, err := m.auth.Login(ctx, email, password)
	if err == nil {
		if perr := kv.SetJSON(ctx, m.store, domain.KeyToken, token); perr != nil {
			m.log.Warn("persisting token", zap.Error(perr))
		}
		m.mu.Lock()
		m.sess.Token = token
		m.mu.Unlock()
		err = m.hydrate(ctx, token)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.clear(ctx)
		msg := userMessage(err, MsgLoginFailed)
		m.transition(context.WithoutCancel(ctx), domain.Session{Phase: domain.PhaseUnauthenticated, AuthError: msg})
		m.log.Info("login failed", zap.String("email", email), zap.Error(err))
		return &domain.AuthError{Message: msg, Cause: err}
	}
	m.log.Info("logged in", zap.String("user_id", m.Session().User.ID))
	return nil
}

// Logout forgets the session. It cannot fail; storage errors are logged.
func (m *Manager) Logout() {
	ctx := context.Background()
	m.clear(ctx)
	m.transition(ctx, domain.Session{Phase: domain.PhaseUnauthenticated})
}

// Register creates an account. The session is not touched; callers usually
// follow up with Login.
func (m *Manager) Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error) {
	if err := domain.ValidateRegistration(req); err != nil {
		return domain.User{}, err
	}
	ctx, span := m.tracer.Start(ctx, "session.Register")
	defer span.End()

	u, err := m.auth.Register(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.User{}, &domain.AuthError{Message: userMessage(err, MsgRegisterFailed), Cause: err}
	}
	return u, nil
}

// hydrate loads the profile for token and enters Authenticated.
func (m *Manager) hydrate(ctx context.Context, token string) error {
	if expired(token, m.now()) {
		return errTokenExpired
	}
	u, err := m.auth.Me(ctx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := kv.SetJSON(ctx, m.store, domain.KeyUser, u); err != nil {
		m.log.Warn("persisting profile", zap.Error(err))
	}
	m.transition(ctx, domain.Session{Token: token, User: &u, Phase: domain.PhaseAuthenticated})
	return nil
}

func (m *Manager) clear(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range []string{domain.KeyToken, domain.KeyUser} {
		if err := m.store.Delete(ctx, key); err != nil {
			m.log.Warn("clearing persisted session", zap.String("key", key), zap.Error(err))
		}
	}
}

func (m *Manager) transition(ctx context.Context, s domain.Session) {
	m.mu.Lock()
	from := m.sess.Phase
	m.sess = s
	m.mu.Unlock()

	m.log.Debug("phase", zap.Stringer("from", from), zap.Stringer("to", s.Phase))
	e := events.SessionChanged{Phase: s.Phase.String(), At: m.now().UTC()}
	if s.User != nil {
		e.UserID = s.User.ID
	}
	m.pub.SessionChanged(ctx, e)
}

// expired reports whether token is a JWT whose exp has passed. Opaque
// tokens are left to the backend; a JWT with an unreadable exp counts as
// expired.
func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return true
	}
	return exp != nil && !exp.After(now)
}

// userMessage picks the message to show for err: the backend's detail,
// then the transport failure's own text, then fallback.
func userMessage(err error, fallback string) string {
	var gerr *gateway.Error
	var authErr *domain.AuthError
	switch {
	case errors.Is(err, errTokenExpired):
		return MsgSessionExpired
	case errors.As(err, &gerr):
		if msg := gerr.Message(); msg != "" {
			return msg
		}
		if gerr.Cause != nil {
			return gerr.Cause.Error()
		}
	case errors.As(err, &authErr) && authErr.Message != "":
		return authErr.Message
	}
	return fallback
}
