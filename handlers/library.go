package handlers

import (
	"net/http"
	"strings"

	"Gamarr/models"
	"Gamarr/services/wishlist"
)

func (a *API) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := a.Library.ListGames(r.Context(), currentUser(r))
	if err != nil {
		a.logger.Error("failed to list games", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list games")
		return
	}
	if games == nil {
		games = []models.Game{}
	}
	writeJSON(w, http.StatusOK, games)
}

func (a *API) HideGame(w http.ResponseWriter, r *http.Request) {
	a.setHidden(w, r, true)
}

func (a *API) UnhideGame(w http.ResponseWriter, r *http.Request) {
	a.setHidden(w, r, false)
}

func (a *API) setHidden(w http.ResponseWriter, r *http.Request, hidden bool) {
	id, ok := idParam(r, "gameID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}
	found, err := a.Library.SetGameHidden(r.Context(), currentUser(r), id, hidden)
	if err != nil {
		a.logger.Error("failed to update game", "game_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update game")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) GetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := a.Library.GetUserSettings(r.Context(), currentUser(r))
	if err != nil {
		a.logger.Error("failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type settingsRequest struct {
	NotifyScene *bool   `json:"notify_scene,omitempty"`
	NotifyP2P   *bool   `json:"notify_p2p,omitempty"`
	SteamID     *string `json:"steam_id,omitempty"`
}

func (a *API) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := currentUser(r)
	st, err := a.Library.GetUserSettings(r.Context(), userID)
	if err != nil {
		a.logger.Error("failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	if req.NotifyScene != nil {
		st.NotifyScene = *req.NotifyScene
	}
	if req.NotifyP2P != nil {
		st.NotifyP2P = *req.NotifyP2P
	}
	if req.SteamID != nil {
		id := strings.TrimSpace(*req.SteamID)
		if id != "" && !wishlist.ValidSteamID(id) {
			writeError(w, http.StatusBadRequest, wishlist.ErrInvalidSteamID.Error())
			return
		}
		st.SteamID = id
	}
	st.UserID = userID

	if err := a.Library.SaveUserSettings(r.Context(), st); err != nil {
		a.logger.Error("failed to save settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SyncWishlist imports the user's storefront wishlist now.
func (a *API) SyncWishlist(w http.ResponseWriter, r *http.Request) {
	res := a.Wishlist.Sync(r.Context(), currentUser(r))
	if !res.Success {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
