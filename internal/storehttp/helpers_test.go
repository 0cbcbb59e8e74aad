package storehttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/storefront/internal/cms"
	"github.com/keithlinneman/storefront/internal/navigation"
	"github.com/keithlinneman/storefront/internal/session"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

var testUser = cms.User{ID: 7, Username: "ann", Email: "ann@example.com"}

// fakeStore implements Store with canned data and records write calls.
type fakeStore struct {
	mu sync.Mutex

	items      map[cms.Kind][]cms.Item
	categories []*cms.Category
	comments   []cms.Comment
	tickets    []cms.Ticket
	orders     []cms.Order

	loginErr   error
	profileErr error
	passErr    error
	commentErr error
	ticketErr  error

	lastCategory string
	lastQuery    string
	lastToken    string
	lastComment  cms.CommentAuthor
	lastProfile  cms.ProfileUpdate
	lastTicket   cms.NewTicket
}

func newFakeStore() *fakeStore {
	price := 12.5
	return &fakeStore{
		items: map[cms.Kind][]cms.Item{
			cms.KindPost: {
				{ID: 1, Kind: cms.KindPost, Slug: "hello", Title: "Hello", Cover: &cms.Image{URL: "/uploads/hello.png"}},
			},
			cms.KindProduct: {
				{ID: 2, Kind: cms.KindProduct, Slug: "mug", Title: "Mug", Price: &price},
			},
			cms.KindPortfolio: {},
		},
		categories: []*cms.Category{{ID: 1, Name: "Apparel", Slug: "apparel"}},
	}
}

func (f *fakeStore) record(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func cloneItems(in []cms.Item) []cms.Item {
	out := make([]cms.Item, len(in))
	for i, it := range in {
		out[i] = it
		if it.Cover != nil {
			c := *it.Cover
			out[i].Cover = &c
		}
	}
	return out
}

func (f *fakeStore) FetchList(_ context.Context, kind cms.Kind, _ ...cms.Filter) []cms.Item {
	return cloneItems(f.items[kind])
}

func (f *fakeStore) FetchBySlug(_ context.Context, kind cms.Kind, slug string) (cms.Item, bool) {
	for _, it := range cloneItems(f.items[kind]) {
		if it.Slug == slug {
			return it, true
		}
	}
	return cms.Item{}, false
}

func (f *fakeStore) ProductsByCategory(_ context.Context, slug string) []cms.Item {
	f.record(func() { f.lastCategory = slug })
	if slug == "" {
		return []cms.Item{}
	}
	return cloneItems(f.items[cms.KindProduct])
}

func (f *fakeStore) FetchCategoryTree(context.Context) []*cms.Category { return f.categories }

func (f *fakeStore) Search(_ context.Context, q string) []cms.Item {
	f.record(func() { f.lastQuery = q })
	if strings.TrimSpace(q) == "" {
		return []cms.Item{}
	}
	return cloneItems(f.items[cms.KindPost])
}

func (f *fakeStore) Login(_ context.Context, identifier, password string) (cms.Session, error) {
	if f.loginErr != nil {
		return cms.Session{}, f.loginErr
	}
	if identifier != "ann" || password != "secret" {
		return cms.Session{}, cms.ErrInvalidCredentials
	}
	return cms.Session{Token: "cms-jwt", User: testUser}, nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, token string, userID int, p cms.ProfileUpdate) (cms.User, error) {
	f.record(func() { f.lastToken, f.lastProfile = token, p })
	if f.profileErr != nil {
		return cms.User{}, f.profileErr
	}
	u := testUser
	u.ID = userID
	if p.Username != "" {
		u.Username = p.Username
	}
	if p.Email != "" {
		u.Email = p.Email
	}
	return u, nil
}

func (f *fakeStore) ChangePassword(_ context.Context, token, _, _, _ string) error {
	f.record(func() { f.lastToken = token })
	return f.passErr
}

func (f *fakeStore) Comments(context.Context, string, int) []cms.Comment {
	if f.comments == nil {
		return []cms.Comment{}
	}
	return f.comments
}

func (f *fakeStore) UserComments(_ context.Context, token string) []cms.Comment {
	f.record(func() { f.lastToken = token })
	return f.Comments(context.Background(), "", 0)
}

func (f *fakeStore) CreateComment(_ context.Context, token, _ string, id int, content string, author cms.CommentAuthor) (cms.Comment, error) {
	f.record(func() { f.lastToken, f.lastComment = token, author })
	if f.commentErr != nil {
		return cms.Comment{}, f.commentErr
	}
	return cms.Comment{ID: id * 10, Content: content, Author: author}, nil
}

func (f *fakeStore) Tickets(_ context.Context, token string, _ int) []cms.Ticket {
	f.record(func() { f.lastToken = token })
	if f.tickets == nil {
		return []cms.Ticket{}
	}
	return f.tickets
}

func (f *fakeStore) CreateTicket(_ context.Context, token string, userID int, nt cms.NewTicket) (cms.Ticket, error) {
	f.record(func() { f.lastToken, f.lastTicket = token, nt })
	if f.ticketErr != nil {
		return cms.Ticket{}, f.ticketErr
	}
	return cms.Ticket{ID: 55, Title: nt.Title, Department: nt.Department, Status: cms.TicketStatusOpen, UserID: userID}, nil
}

func (f *fakeStore) Ticket(_ context.Context, _ string, ticketID, userID int) (cms.Ticket, error) {
	switch ticketID {
	case 1:
		return cms.Ticket{ID: 1, Title: "Mine", UserID: userID, Status: cms.TicketStatusOpen}, nil
	case 2:
		return cms.Ticket{}, cms.ErrForbidden
	case 3:
		return cms.Ticket{}, io.ErrUnexpectedEOF
	}
	return cms.Ticket{}, cms.ErrNotFound
}

func (f *fakeStore) Orders(_ context.Context, token string, _ int) []cms.Order {
	f.record(func() { f.lastToken = token })
	if f.orders == nil {
		return []cms.Order{}
	}
	return f.orders
}

type fakeMenu struct {
	menu *navigation.Menu
}

func (f fakeMenu) Get() (*navigation.Menu, bool) { return f.menu, f.menu != nil }

type loginCounter struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *loginCounter) IncLogin(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

type testEnv struct {
	store    *fakeStore
	sessions *session.Manager
	logins   *loginCounter
	router   chi.Router
}

func newTestEnv(t *testing.T, opts ...func(*Options)) *testEnv {
	t.Helper()
	sm, err := session.New(session.Options{Secret: testSecret})
	require.NoError(t, err)

	media, err := cms.NewMediaResolver(cms.MediaOptions{BaseURL: "https://cms.example.com"})
	require.NoError(t, err)

	env := &testEnv{store: newFakeStore(), sessions: sm, logins: &loginCounter{}}
	o := Options{
		Store:    env.store,
		Sessions: sm,
		Media:    media,
		Menu:     fakeMenu{menu: &navigation.Menu{Entries: []navigation.Entry{{Title: "Home", Link: "/"}}}},
		Metrics:  env.logins,
	}
	for _, fn := range opts {
		fn(&o)
	}
	api, err := NewAPI(o)
	require.NoError(t, err)

	r := chi.NewRouter()
	api.RegisterRoutes(r)
	env.router = r
	return env
}

// sessionCookie issues a session for testUser.
func (e *testEnv) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	_, err := e.sessions.Issue(rec, cms.Session{Token: "cms-jwt", User: testUser})
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

// do serves one request. A non-nil cookie is attached; body is sent as JSON.
func (e *testEnv) do(t *testing.T, method, target, body string, ck *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if ck != nil {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}
