package storehttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/storefront/internal/cms"
	"github.com/keithlinneman/storefront/internal/session"
)

type createCommentRequest struct {
	Content     string `json:"content"`
	PostID      int    `json:"postId"`
	ContentType string `json:"contentType"`
}

func (api *API) handleUserComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, _ := session.FromContext(ctx)
	api.writeJSON(ctx, w, http.StatusOK, api.store.UserComments(ctx, s.CMSToken))
}

func (api *API) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, _ := session.FromContext(ctx)

	var req createCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		api.writeMessage(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ct, ok := cms.CommentType(req.ContentType)
	if strings.TrimSpace(req.Content) == "" || req.PostID <= 0 || !ok {
		api.writeMessage(ctx, w, http.StatusBadRequest, "Missing required fields.")
		return
	}

	name := s.User.Username
	if name == "" {
		name = s.User.Email
	}
	author := cms.CommentAuthor{ID: s.User.ID, Name: name, Email: s.User.Email}

	c, err := api.store.CreateComment(ctx, s.CMSToken, ct, req.PostID, req.Content, author)
	if err != nil {
		api.logger.Error(ctx, err, "create comment failed", "user_id", s.User.ID, "content_type", ct, "id", req.PostID)
		api.writeMessage(ctx, w, http.StatusInternalServerError, "Failed to post comment")
		return
	}
	api.writeJSON(ctx, w, http.StatusCreated, c)
}

func (api *API) handleTickets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, _ := session.FromContext(ctx)
	api.writeJSON(ctx, w, http.StatusOK, api.store.Tickets(ctx, s.CMSToken, s.User.ID))
}

func (api *API) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, _ := session.FromContext(ctx)

	var nt cms.NewTicket
	if err := decodeJSON(w, r, &nt); err != nil {
		api.writeMessage(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(nt.Title) == "" || strings.TrimSpace(nt.Message) == "" {
		api.writeMessage(ctx, w, http.StatusBadRequest, "Missing required fields.")
		return
	}

	t, err := api.store.CreateTicket(ctx, s.CMSToken, s.User.ID, nt)
	if err != nil {
		api.logger.Error(ctx, err, "create ticket failed", "user_id", s.User.ID)
		api.writeMessage(ctx, w, http.StatusInternalServerError, "Failed to create ticket")
		return
	}
	api.logger.Info(ctx, "support ticket opened", "user_id", s.User.ID, "ticket_id", t.ID, "department", t.Department)
	api.writeJSON(ctx, w, http.StatusCreated, t)
}

func (api *API) handleTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, _ := session.FromContext(ctx)

	id, err := strconv.Atoi(chi.URLParam(r, "ticketID"))
	if err != nil || id <= 0 {
		api.writeNotFound(ctx, w)
		return
	}

	t, err := api.store.Ticket(ctx, s.CMSToken, id, s.User.ID)
	switch {
	case err == nil:
		api.writeJSON(ctx, w, http.StatusOK, t)
	case errors.Is(err, cms.ErrNotFound):
		api.writeNotFound(ctx, w)
	case errors.Is(err, cms.ErrForbidden):
		api.logger.Warn(ctx, "ticket access denied", "user_id", s.User.ID, "ticket_id", id)
		api.writeMessage(ctx, w, http.StatusForbidden, "Forbidden")
	default:
		api.logger.Error(ctx, err, "ticket fetch failed", "ticket_id", id)
		api.writeInternal(ctx, w)
	}
}

func (api *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, _ := session.FromContext(ctx)

	orders := api.store.Orders(ctx, s.CMSToken, s.User.ID)
	for i := range orders {
		api.resolveItems(ctx, orders[i].Products)
	}
	api.writeJSON(ctx, w, http.StatusOK, orders)
}
