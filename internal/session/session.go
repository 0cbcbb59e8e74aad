// Package session keeps a signed-in shopper's identity and CMS bearer token in
// an HS256-signed cookie. Nothing is stored server side.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/keithlinneman/storefront/internal/cms"
	"github.com/keithlinneman/storefront/internal/log"
	"github.com/keithlinneman/storefront/internal/xerrors"
)

const (
	DefaultCookieName = "storefront_session"
	DefaultTTL        = 7 * 24 * time.Hour

	issuer = "storefront"
)

var (
	ErrNoSession      = errors.New("session: no session cookie")
	ErrInvalidSession = errors.New("session: invalid session")
)

// Session is the authenticated state carried by the cookie.
type Session struct {
	ID        string    `json:"id"`
	User      cms.User  `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`

	// CMSToken authorizes writes against the CMS on the user's behalf.
	CMSToken string `json:"-"`
}

// claims is the signed cookie payload.
type claims struct {
	UserID   int    `json:"uid"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	CMSToken string `json:"cms"`
	jwt.RegisteredClaims
}

type Options struct {
	// Secret is the HMAC key. Required, at least 32 bytes.
	Secret []byte

	// TTL of issued sessions, DefaultTTL when zero.
	TTL time.Duration

	// Secure sets the cookie Secure attribute.
	Secure bool

	// CookieName, DefaultCookieName when empty.
	CookieName string

	Logger log.Logger

	// Now overrides the clock used when issuing.
	Now func() time.Time
}

// Manager issues and verifies session cookies.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	name   string
	logger log.Logger
	now    func() time.Time
	parser *jwt.Parser
}

func New(opts Options) (*Manager, error) {
	if len(opts.Secret) < 32 {
		return nil, xerrors.Newf("session secret must be at least 32 bytes (got %d)", len(opts.Secret))
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		secret: opts.Secret,
		ttl:    opts.TTL,
		secure: opts.Secure,
		name:   opts.CookieName,
		logger: opts.Logger,
		now:    opts.Now,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string { return m.name }

// Issue signs a new session for a successful CMS login and sets it on w.
func (m *Manager) Issue(w http.ResponseWriter, s cms.Session) (Session, error) {
	if s.Token == "" || s.User.ID == 0 {
		return Session{}, xerrors.New("cannot issue a session without a cms token and user id")
	}
	now := m.now().UTC()
	exp := now.Add(m.ttl)
	sid := uuid.NewString()

	c := claims{
		UserID:   s.User.ID,
		Username: s.User.Username,
		Email:    s.User.Email,
		CMSToken: s.Token,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sid,
			Issuer:    issuer,
			Subject:   strconv.Itoa(s.User.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return Session{}, xerrors.Wrap(err, "sign session")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    signed,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return Session{ID: sid, User: s.User, ExpiresAt: exp, CMSToken: s.Token}, nil
}

// FromRequest verifies the session cookie on r.
func (m *Manager) FromRequest(r *http.Request) (Session, error) {
	ck, err := r.Cookie(m.name)
	if err != nil || ck.Value == "" {
		return Session{}, ErrNoSession
	}

	var c claims
	tok, err := m.parser.ParseWithClaims(ck.Value, &c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil || !tok.Valid {
		return Session{}, errors.Join(ErrInvalidSession, err)
	}
	if c.Issuer != issuer || c.UserID == 0 || c.CMSToken == "" || c.ExpiresAt == nil {
		return Session{}, ErrInvalidSession
	}
	return Session{
		ID:        c.ID,
		User:      cms.User{ID: c.UserID, Username: c.Username, Email: c.Email},
		ExpiresAt: c.ExpiresAt.Time,
		CMSToken:  c.CMSToken,
	}, nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type ctxKey struct{}

// WithContext returns ctx carrying s.
func WithContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by RequireAuth or Optional.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}

// RequireAuth rejects requests without a valid session with a 401 JSON body.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.FromRequest(r)
		if err != nil {
			if errors.Is(err, ErrInvalidSession) {
				m.logger.Debug(r.Context(), "rejected invalid session cookie", "error", err.Error())
				m.Clear(w)
			}
			Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), s)))
	})
}

// Optional attaches a valid session to the request context when there is one.
func (m *Manager) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, err := m.FromRequest(r); err == nil {
			r = r.WithContext(WithContext(r.Context(), s))
		}
		next.ServeHTTP(w, r)
	})
}

// Unauthorized writes the 401 body shared by every authenticated endpoint.
func Unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Unauthorized"})
}
