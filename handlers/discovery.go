package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"Gamarr/models"
	"Gamarr/services/dispatch"
	"Gamarr/services/indexers"
	"Gamarr/services/scene"
	"Gamarr/services/scheduler"
)

// SceneSearchLimit caps the releases returned by SearchScene.
const SceneSearchLimit = 50

func (a *API) SearchReleases(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	results, err := a.Search.Search(r.Context(), q)
	a.writeSearchResults(w, results, err)
}

// GameReleases searches the indexers for one library game and keeps the
// releases whose names belong to it.
func (a *API) GameReleases(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "gameID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}
	game, err := a.Library.GetGame(r.Context(), currentUser(r), id)
	if err != nil {
		a.logger.Error("failed to load game", "game_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	if game == nil {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	results, err := a.Search.SearchForGame(r.Context(), game.Title)
	a.writeSearchResults(w, results, err)
}

func (a *API) writeSearchResults(w http.ResponseWriter, results []indexers.SearchResult, err error) {
	if err != nil {
		a.logger.Error("release search failed", "error", err)
		writeURLError(w, err)
		return
	}
	if results == nil {
		results = []indexers.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// SearchScene searches xREL for game releases. P2P releases are included
// when the user has P2P notifications enabled.
func (a *API) SearchScene(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	st, err := a.Library.GetUserSettings(r.Context(), currentUser(r))
	if err != nil {
		a.logger.Error("failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	releases, err := a.Scene.SearchReleases(r.Context(), q, scene.SearchOptions{IncludeP2P: st.NotifyP2P, Limit: SceneSearchLimit})
	var rl *scene.RateLimitError
	switch {
	case errors.As(err, &rl):
		if rl.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
		}
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		a.logger.Warn("scene search failed", "query", q, "error", err)
		writeURLError(w, err)
		return
	}
	if releases == nil {
		releases = []scene.Release{}
	}
	writeJSON(w, http.StatusOK, releases)
}

type downloadRequest struct {
	dispatch.Request
	Client string `json:"client,omitempty"`
}

func (a *API) AddDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := a.Downloads.Add(r.Context(), req.Client, req.Request)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	case errors.Is(err, dispatch.ErrEmptyURL), errors.Is(err, dispatch.ErrUnknownClient):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeURLError(w, err)
	}
}

// TriggerJob runs a scheduler job now and waits for it.
func (a *API) TriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")
	err := a.Jobs.Trigger(r.Context(), name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "finished"})
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrJobRunning):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (a *API) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := a.Notifications.List(r.Context(), currentUser(r), 0)
	if err != nil {
		a.logger.Error("failed to list notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notificationID")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	ok, err := a.Notifications.MarkRead(r.Context(), currentUser(r), id)
	if err != nil {
		a.logger.Error("failed to mark notification read", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update notification")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) NotificationsSocket(w http.ResponseWriter, r *http.Request) {
	a.Socket.ServeWS(w, r, currentUser(r))
}
