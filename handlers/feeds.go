package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"Gamarr/models"
	"Gamarr/services/feeds"
)

const defaultItemLimit = 100

type feedRequest struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Enabled    *bool  `json:"enabled,omitempty"`
	TitleField string `json:"title_field,omitempty"`
	LinkField  string `json:"link_field,omitempty"`
}

func (a *API) ListFeeds(w http.ResponseWriter, r *http.Request) {
	sources, err := a.Feeds.ListFeedSources(r.Context(), currentUser(r))
	if err != nil {
		a.logger.Error("failed to list feeds", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list feeds")
		return
	}
	if sources == nil {
		sources = []models.FeedSource{}
	}
	writeJSON(w, http.StatusOK, sources)
}

// CreateFeed stores a new feed after the URL passes the network guard.
func (a *API) CreateFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.URL = strings.TrimSpace(req.URL)
	if req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "name and url are required")
		return
	}
	if err := a.Guard.Check(r.Context(), req.URL); err != nil {
		writeURLError(w, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	created, err := a.Feeds.CreateFeedSource(r.Context(), models.FeedSource{
		UserID:     currentUser(r),
		Name:       req.Name,
		URL:        req.URL,
		Enabled:    enabled,
		TitleField: strings.TrimSpace(req.TitleField),
		LinkField:  strings.TrimSpace(req.LinkField),
	})
	if err != nil {
		a.logger.Error("failed to create feed", "url", req.URL, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create feed")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// TestFeed previews a feed without storing it.
func (a *API) TestFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	items, err := a.FeedService.Test(r.Context(), strings.TrimSpace(req.URL), feeds.Mapping{
		TitleField: strings.TrimSpace(req.TitleField),
		LinkField:  strings.TrimSpace(req.LinkField),
	})
	if err != nil {
		writeURLError(w, err)
		return
	}
	if items == nil {
		items = []models.NewFeedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "feedID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid feed id")
		return
	}
	deleted, err := a.Feeds.DeleteFeedSource(r.Context(), currentUser(r), id)
	if err != nil {
		a.logger.Error("failed to delete feed", "feed_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete feed")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "feed not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) ListFeedItems(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "feedID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid feed id")
		return
	}
	limit := defaultItemLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	items, err := a.Feeds.ListFeedItems(r.Context(), currentUser(r), id, limit)
	if err != nil {
		a.logger.Error("failed to list feed items", "feed_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list feed items")
		return
	}
	if items == nil {
		items = []models.FeedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// CheckFeed polls one feed now. Matching of new items still runs in the
// background.
func (a *API) CheckFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "feedID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid feed id")
		return
	}
	src, err := a.Feeds.GetFeedSource(r.Context(), currentUser(r), id)
	if err != nil {
		a.logger.Error("failed to load feed", "feed_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	if src == nil {
		writeError(w, http.StatusNotFound, "feed not found")
		return
	}

	added, err := a.FeedService.CheckSource(r.Context(), *src)
	if err != nil {
		writeURLError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"new_items": added})
}
