package storehttp

import (
	"errors"
	"net/http"

	"github.com/keithlinneman/storefront/internal/cms"
	"github.com/keithlinneman/storefront/internal/session"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (api *API) countLogin(outcome string) {
	if api.metrics != nil {
		api.metrics.IncLogin(outcome)
	}
}

func (api *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Cache-Control", "no-store")

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		api.writeMessage(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cs, err := api.store.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, cms.ErrInvalidCredentials) {
			api.countLogin("invalid")
			api.writeMessage(ctx, w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		api.countLogin("error")
		api.logger.Error(ctx, err, "login failed")
		api.writeMessage(ctx, w, http.StatusBadGateway, "Login is temporarily unavailable")
		return
	}

	s, err := api.sessions.Issue(w, cs)
	if err != nil {
		api.countLogin("error")
		api.logger.Error(ctx, err, "issue session failed", "user_id", cs.User.ID)
		api.writeInternal(ctx, w)
		return
	}
	api.countLogin("ok")
	api.logger.Info(ctx, "user logged in", "user_id", s.User.ID, "session_id", s.ID)
	api.writeJSON(ctx, w, http.StatusOK, s)
}

func (api *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Cache-Control", "no-store")
	api.sessions.Clear(w)
	api.writeJSON(ctx, w, http.StatusOK, map[string]bool{"success": true})
}

func (api *API) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, _ := session.FromContext(ctx)
	api.writeJSON(ctx, w, http.StatusOK, s)
}

// handleUpdateProfile writes the profile and reissues the cookie so the
// session carries the new username and email.
func (api *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, _ := session.FromContext(ctx)

	var p cms.ProfileUpdate
	if err := decodeJSON(w, r, &p); err != nil {
		api.writeMessage(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := api.store.UpdateProfile(ctx, s.CMSToken, s.User.ID, p)
	if err != nil {
		if errors.Is(err, cms.ErrUnauthorized) {
			api.sessions.Clear(w)
			session.Unauthorized(w)
			return
		}
		api.logger.Error(ctx, err, "profile update failed", "user_id", s.User.ID)
		api.writeInternal(ctx, w)
		return
	}
	if u.ID == 0 {
		u.ID = s.User.ID
	}
	if _, err := api.sessions.Issue(w, cms.Session{Token: s.CMSToken, User: u}); err != nil {
		api.logger.Warn(ctx, "reissue session after profile update failed", "user_id", u.ID, "error", err.Error())
	}
	api.writeJSON(ctx, w, http.StatusOK, u)
}

type changePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

// handleChangePassword passes CMS rejections through with their status and message.
func (api *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, _ := session.FromContext(ctx)

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		api.writeMessage(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" || req.ConfirmNewPassword == "" {
		api.writeJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "current password, new password and confirmation are required"})
		return
	}

	err := api.store.ChangePassword(ctx, s.CMSToken, req.CurrentPassword, req.NewPassword, req.ConfirmNewPassword)
	if err != nil {
		var apiErr *cms.APIError
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = http.StatusText(apiErr.Status)
			}
			api.logger.Info(ctx, "password change rejected", "user_id", s.User.ID, "status", apiErr.Status)
			api.writeJSON(ctx, w, apiErr.Status, map[string]string{"error": msg})
			return
		}
		api.logger.Error(ctx, err, "password change failed", "user_id", s.User.ID)
		api.writeInternal(ctx, w)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, map[string]bool{"success": true})
}
