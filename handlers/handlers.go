// Package handlers exposes the discovery engine over a JSON API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"Gamarr/middleware"
	"Gamarr/models"
	"Gamarr/services/dispatch"
	"Gamarr/services/feeds"
	"Gamarr/services/indexers"
	"Gamarr/services/netguard"
	"Gamarr/services/scene"
	"Gamarr/services/wishlist"
	"Gamarr/shared/logger"
)

type FeedStore interface {
	ListFeedSources(ctx context.Context, userID int64) ([]models.FeedSource, error)
	GetFeedSource(ctx context.Context, userID, id int64) (*models.FeedSource, error)
	CreateFeedSource(ctx context.Context, src models.FeedSource) (models.FeedSource, error)
	DeleteFeedSource(ctx context.Context, userID, id int64) (bool, error)
	ListFeedItems(ctx context.Context, userID, sourceID int64, limit int) ([]models.FeedItem, error)
}

type FeedService interface {
	CheckSource(ctx context.Context, src models.FeedSource) (int, error)
	Test(ctx context.Context, url string, m feeds.Mapping) ([]models.NewFeedItem, error)
}

type LibraryStore interface {
	ListGames(ctx context.Context, userID int64) ([]models.Game, error)
	GetGame(ctx context.Context, userID, gameID int64) (*models.Game, error)
	SetGameHidden(ctx context.Context, userID, gameID int64, hidden bool) (bool, error)
	GetUserSettings(ctx context.Context, userID int64) (models.UserSettings, error)
	SaveUserSettings(ctx context.Context, st models.UserSettings) error
}

type URLChecker interface {
	Check(ctx context.Context, rawURL string) error
}

type ReleaseSearcher interface {
	Search(ctx context.Context, query string) ([]indexers.SearchResult, error)
	SearchForGame(ctx context.Context, title string) ([]indexers.SearchResult, error)
}

type SceneSearcher interface {
	SearchReleases(ctx context.Context, query string, opts scene.SearchOptions) ([]scene.Release, error)
}

type Downloader interface {
	Add(ctx context.Context, client string, req dispatch.Request) error
}

type WishlistSyncer interface {
	Sync(ctx context.Context, userID int64) wishlist.Result
}

type JobTrigger interface {
	Trigger(ctx context.Context, name string) error
}

type Notifications interface {
	List(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID int64, id string) (bool, error)
}

type NotificationSocket interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID int64)
}

// Deps wires the API to its services.
type Deps struct {
	Feeds         FeedStore
	FeedService   FeedService
	Library       LibraryStore
	Guard         URLChecker
	Search        ReleaseSearcher
	Scene         SceneSearcher
	Downloads     Downloader
	Wishlist      WishlistSyncer
	Jobs          JobTrigger
	Notifications Notifications
	Socket        NotificationSocket
	Sessions      sessions.Store
	Users         middleware.UserLookup
	Logger        *slog.Logger
}

// Scheduler job names the API can trigger.
const (
	JobFeeds    = "feeds"
	JobScene    = "scene"
	JobReleases = "releases"
	JobWishlist = "wishlist"
)

type API struct {
	Deps
	logger *slog.Logger
}

// NewRouter builds the chi router for the API.
func NewRouter(d Deps) http.Handler {
	api := &API{Deps: d, logger: logger.Component(d.Logger, "api")}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(api.logger))
	r.Use(chimw.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireUser(d.Sessions, d.Users))

		r.Route("/feeds", func(r chi.Router) {
			r.Get("/", api.ListFeeds)
			r.Post("/", api.CreateFeed)
			r.Post("/test", api.TestFeed)
			r.Route("/{feedID}", func(r chi.Router) {
				r.Delete("/", api.DeleteFeed)
				r.Get("/items", api.ListFeedItems)
				r.Post("/check", api.CheckFeed)
			})
		})

		r.Get("/games", api.ListGames)
		r.Post("/games/{gameID}/hide", api.HideGame)
		r.Post("/games/{gameID}/unhide", api.UnhideGame)
		r.Get("/games/{gameID}/releases", api.GameReleases)

		r.Get("/settings", api.GetSettings)
		r.Put("/settings", api.UpdateSettings)

		r.Get("/search", api.SearchReleases)
		r.Get("/scene/search", api.SearchScene)
		r.Post("/downloads", api.AddDownload)

		r.Post("/wishlist/sync", api.SyncWishlist)
		r.Post("/jobs/{job}", api.TriggerJob)

		r.Get("/notifications", api.ListNotifications)
		r.Post("/notifications/{notificationID}/read", api.MarkNotificationRead)
		r.Get("/notifications/ws", api.NotificationsSocket)
	})

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeURLError turns guard rejections into 400s and anything else into 502.
func writeURLError(w http.ResponseWriter, err error) {
	if errors.Is(err, netguard.ErrUnsafeURL) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func currentUser(r *http.Request) int64 {
	id, _ := middleware.UserID(r.Context())
	return id
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}
