package storehttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/storefront/internal/cms"
	"github.com/keithlinneman/storefront/internal/httpmw"
	"github.com/keithlinneman/storefront/internal/log"
	"github.com/keithlinneman/storefront/internal/navigation"
	"github.com/keithlinneman/storefront/internal/session"
	"github.com/keithlinneman/storefront/internal/xerrors"
)

// Store is the CMS surface served by the API. Implemented by *cms.Client.
type Store interface {
	FetchList(ctx context.Context, kind cms.Kind, filters ...cms.Filter) []cms.Item
	FetchBySlug(ctx context.Context, kind cms.Kind, slug string) (cms.Item, bool)
	ProductsByCategory(ctx context.Context, categorySlug string) []cms.Item
	FetchCategoryTree(ctx context.Context) []*cms.Category
	Search(ctx context.Context, query string) []cms.Item

	Login(ctx context.Context, identifier, password string) (cms.Session, error)
	UpdateProfile(ctx context.Context, token string, userID int, p cms.ProfileUpdate) (cms.User, error)
	ChangePassword(ctx context.Context, token, current, next, confirm string) error

	Comments(ctx context.Context, contentType string, id int) []cms.Comment
	UserComments(ctx context.Context, token string) []cms.Comment
	CreateComment(ctx context.Context, token, contentType string, id int, content string, author cms.CommentAuthor) (cms.Comment, error)

	Tickets(ctx context.Context, token string, userID int) []cms.Ticket
	CreateTicket(ctx context.Context, token string, userID int, nt cms.NewTicket) (cms.Ticket, error)
	Ticket(ctx context.Context, token string, ticketID, userID int) (cms.Ticket, error)

	Orders(ctx context.Context, token string, userID int) []cms.Order
}

// MenuProvider returns the active navigation menu. Implemented by *navigation.Manager.
type MenuProvider interface {
	Get() (*navigation.Menu, bool)
}

// LoginCounter is implemented by the metrics package.
type LoginCounter interface {
	IncLogin(outcome string)
}

type Options struct {
	Store    Store
	Sessions *session.Manager

	// Media rewrites image URLs on every returned item. Optional.
	Media *cms.MediaResolver

	// Menu serves /api/menu. Optional; the route answers 503 without it.
	Menu MenuProvider

	// LoginLimit wraps the credential endpoints (login, change password) with
	// a stricter limiter than the server-wide one. Optional.
	LoginLimit func(http.Handler) http.Handler

	Metrics LoginCounter
	Logger  log.Logger
}

// API implements the storefront JSON endpoints.
type API struct {
	store    Store
	sessions *session.Manager
	media    *cms.MediaResolver
	menu     MenuProvider
	metrics  LoginCounter
	logger   log.Logger

	loginLimit func(http.Handler) http.Handler
}

// NewAPI creates the storefront API handler.
func NewAPI(opts Options) (*API, error) {
	if opts.Store == nil {
		return nil, xerrors.New("storehttp: store is required")
	}
	if opts.Sessions == nil {
		return nil, xerrors.New("storehttp: session manager is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &API{
		store:    opts.Store,
		sessions: opts.Sessions,
		media:    opts.Media,
		menu:     opts.Menu,
		metrics:  opts.Metrics,
		logger:   opts.Logger,

		loginLimit: opts.LoginLimit,
	}, nil
}

// maxRequestBody bounds the JSON bodies accepted by write endpoints.
const maxRequestBody = 64 << 10

// RegisterRoutes attaches the storefront endpoints to the router.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httpmw.Scope("content"))

			r.Get("/posts", api.handleList(cms.KindPost))
			r.Get("/posts/{slug}", api.handleDetail(cms.KindPost))
			r.Get("/products", api.handleList(cms.KindProduct))
			r.Get("/products/category/*", api.handleProductsByCategory)
			r.Get("/products/{slug}", api.handleDetail(cms.KindProduct))
			r.Get("/portfolio", api.handleList(cms.KindPortfolio))
			r.Get("/portfolio/{slug}", api.handleDetail(cms.KindPortfolio))
			r.Get("/categories", api.handleCategories)
			r.Get("/menu", api.handleMenu)
			r.Get("/search", api.handleSearch)
			r.With(api.sessions.Optional).Get("/comments/{contentType}/{id}", api.handleComments)
		})

		r.Group(func(r chi.Router) {
			r.Use(httpmw.Scope("account"))

			r.With(api.credentialLimit).Post("/auth/login", api.handleLogin)
			r.Post("/auth/logout", api.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(noStore, api.sessions.RequireAuth)

				r.Get("/session", api.handleSession)
				r.Put("/users/me", api.handleUpdateProfile)
				r.With(api.credentialLimit).Post("/change-password", api.handleChangePassword)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(httpmw.Scope("support"), noStore, api.sessions.RequireAuth)

			r.Get("/comments/me", api.handleUserComments)
			r.Post("/comments", api.handleCreateComment)
			r.Get("/tickets", api.handleTickets)
			r.Post("/tickets", api.handleCreateTicket)
			r.Get("/tickets/{ticketID}", api.handleTicket)
			r.Get("/orders", api.handleOrders)
		})
	})
}

func (api *API) credentialLimit(next http.Handler) http.Handler {
	if api.loginLimit == nil {
		return next
	}
	return api.loginLimit(next)
}

// noStore keeps per-user responses out of shared caches.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}

func (api *API) writeNotFound(ctx context.Context, w http.ResponseWriter) {
	api.writeJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func (api *API) writeMessage(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	api.writeJSON(ctx, w, status, map[string]string{"message": msg})
}

func (api *API) writeInternal(ctx context.Context, w http.ResponseWriter) {
	api.writeMessage(ctx, w, http.StatusInternalServerError, "Internal Server Error")
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return xerrors.New("request body is empty")
		}
		return xerrors.Wrap(err, "decode request body")
	}
	return nil
}

func (api *API) resolveItems(ctx context.Context, items []cms.Item) {
	if api.media != nil {
		api.media.ResolveItems(ctx, items)
	}
}

// NotFound answers unmatched routes with the same JSON body as a missing item.
func NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":"not found"}` + "\n"))
}
