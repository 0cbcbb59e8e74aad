package storehttp

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/storefront/internal/cms"
	"github.com/keithlinneman/storefront/internal/session"
)

// maxQueryLen bounds search input forwarded to the CMS.
const maxQueryLen = 256

// canCommentHeader reports on comment reads whether the viewer is signed in.
const canCommentHeader = "X-Can-Comment"

func (api *API) handleList(kind cms.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		items := api.store.FetchList(ctx, kind)
		api.resolveItems(ctx, items)
		api.writeJSON(ctx, w, http.StatusOK, items)
	}
}

func (api *API) handleDetail(kind cms.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		item, ok := api.store.FetchBySlug(ctx, kind, chi.URLParam(r, "slug"))
		if !ok {
			api.writeNotFound(ctx, w)
			return
		}
		if api.media != nil {
			api.media.ResolveItem(ctx, &item)
		}
		api.writeJSON(ctx, w, http.StatusOK, item)
	}
}

// handleProductsByCategory serves /api/products/category/{parent}/.../{slug};
// only the last segment selects the category.
func (api *API) handleProductsByCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rest := strings.Trim(chi.URLParam(r, "*"), "/")
	slug := rest[strings.LastIndex(rest, "/")+1:]

	items := api.store.ProductsByCategory(ctx, slug)
	api.resolveItems(ctx, items)
	api.writeJSON(ctx, w, http.StatusOK, items)
}

func (api *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	api.writeJSON(ctx, w, http.StatusOK, api.store.FetchCategoryTree(ctx))
}

func (api *API) handleMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if api.menu == nil {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "menu not loaded"})
		return
	}
	m, ok := api.menu.Get()
	if !ok {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "menu not loaded"})
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, m)
}

func (api *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query().Get("q")
	if len(q) > maxQueryLen {
		api.writeJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "query too long"})
		return
	}
	items := api.store.Search(ctx, q)
	api.resolveItems(ctx, items)
	api.writeJSON(ctx, w, http.StatusOK, items)
}

func (api *API) handleComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ct, ok := cms.CommentType(chi.URLParam(r, "contentType"))
	if !ok {
		api.writeJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "unknown content type"})
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		api.writeJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	// The list is public; X-Can-Comment tells the page whether to show the
	// comment form, and it differs per viewer.
	w.Header().Add("Vary", "Cookie")
	if _, ok := session.FromContext(ctx); ok {
		w.Header().Set("Cache-Control", "private, no-store")
		w.Header().Set(canCommentHeader, "true")
	} else {
		w.Header().Set(canCommentHeader, "false")
	}
	api.writeJSON(ctx, w, http.StatusOK, api.store.Comments(ctx, ct, id))
}
