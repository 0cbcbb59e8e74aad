package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/storefront/internal/cms"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.Secret == nil {
		opts.Secret = testSecret
	}
	m, err := New(opts)
	require.NoError(t, err)
	return m
}

var testLogin = cms.Session{
	Token: "cms-jwt",
	User:  cms.User{ID: 9, Username: "ann", Email: "ann@example.com"},
}

// issueCookie runs Issue against a recorder and returns the cookie it set.
func issueCookie(t *testing.T, m *Manager) (*http.Cookie, Session) {
	t.Helper()
	rec := httptest.NewRecorder()
	s, err := m.Issue(rec, testLogin)
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0], s
}

func TestNew_ShortSecret(t *testing.T) {
	_, err := New(Options{Secret: []byte("short")})
	assert.Error(t, err)
}

func TestIssueAndFromRequest(t *testing.T) {
	m := newTestManager(t, Options{Secure: true})
	ck, issued := issueCookie(t, m)

	assert.Equal(t, DefaultCookieName, ck.Name)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	assert.Equal(t, int(DefaultTTL/time.Second), ck.MaxAge)
	assert.NotEmpty(t, issued.ID)

	r := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	r.AddCookie(ck)
	got, err := m.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
	assert.Equal(t, testLogin.User, got.User)
	assert.Equal(t, "cms-jwt", got.CMSToken)
	assert.WithinDuration(t, issued.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestIssue_UniqueSessionIDs(t *testing.T) {
	m := newTestManager(t, Options{})
	_, a := issueCookie(t, m)
	_, b := issueCookie(t, m)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestIssue_RequiresTokenAndUser(t *testing.T) {
	m := newTestManager(t, Options{})
	_, err := m.Issue(httptest.NewRecorder(), cms.Session{User: cms.User{ID: 1}})
	assert.Error(t, err)
	_, err = m.Issue(httptest.NewRecorder(), cms.Session{Token: "x"})
	assert.Error(t, err)
}

func TestFromRequest_Rejects(t *testing.T) {
	m := newTestManager(t, Options{})
	good, _ := issueCookie(t, m)

	expired := newTestManager(t, Options{Now: func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }})
	old, _ := issueCookie(t, expired)

	other := newTestManager(t, Options{Secret: []byte("ffffffffffffffffffffffffffffffff")})
	forged, _ := issueCookie(t, other)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		UserID: 9, CMSToken: "x",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
		want  error
	}{
		{"expired", old.Value, ErrInvalidSession},
		{"wrong key", forged.Value, ErrInvalidSession},
		{"alg none", none, ErrInvalidSession},
		{"tampered", tamper(good.Value), ErrInvalidSession},
		{"garbage", "not-a-jwt", ErrInvalidSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tt.value})
			_, err := m.FromRequest(r)
			assert.True(t, errors.Is(err, tt.want), "err = %v", err)
		})
	}

	_, err = m.FromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestClear(t *testing.T) {
	m := newTestManager(t, Options{})
	rec := httptest.NewRecorder()
	m.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestRequireAuth(t *testing.T) {
	m := newTestManager(t, Options{})
	ck, _ := issueCookie(t, m)

	var seen Session
	h := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = s
		w.WriteHeader(http.StatusNoContent)
	}))

	// no cookie
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Unauthorized"}`, rec.Body.String())

	// bad cookie is cleared
	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "junk"})
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, strings.Contains(rec.Header().Get("Set-Cookie"), "Max-Age=0"))

	// valid
	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	r.AddCookie(ck)
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 9, seen.User.ID)
}

func TestOptional(t *testing.T) {
	m := newTestManager(t, Options{})
	ck, _ := issueCookie(t, m)

	var present bool
	h := m.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = FromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, present)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(ck)
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.True(t, present)
}

// tamper rewrites the tail of the signature segment.
func tamper(tok string) string {
	repl := "AAAAAA"
	if strings.HasSuffix(tok, repl) {
		repl = "BBBBBB"
	}
	return tok[:len(tok)-len(repl)] + repl
}
