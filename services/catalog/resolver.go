package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"Gamarr/models"
	"Gamarr/services/matcher"
	"Gamarr/shared/logger"
)

// BatchSize bounds how many ids go into one catalog request.
const BatchSize = 100

const searchLimit = 10

const coverURLTemplate = "https://images.igdb.com/igdb/image/upload/t_cover_big/%s.jpg"

// API is the subset of the catalog client the resolver needs.
type API interface {
	SearchGames(ctx context.Context, query string, limit int) ([]Game, error)
	GamesByIDs(ctx context.Context, ids []int64) ([]Game, error)
	ExternalGamesBySteamIDs(ctx context.Context, appIDs []string) ([]ExternalGame, error)
}

var _ API = (*Client)(nil)

// Resolver turns titles and ids into catalog games. Lookup failures are
// logged and reported as "no match" so ingestion keeps going when the
// catalog is unavailable.
type Resolver struct {
	api    API
	cache  *MatchCache
	group  singleflight.Group
	logger *slog.Logger
}

func NewResolver(api API, cache *MatchCache, log *slog.Logger) *Resolver {
	if cache == nil {
		cache = NewMatchCache(NewMemoryStore(), DefaultCacheTTL)
	}
	return &Resolver{
		api:    api,
		cache:  cache,
		logger: logger.Component(log, "catalog"),
	}
}

// Search returns the best catalog match for query, or nil.
func (r *Resolver) Search(ctx context.Context, query string) *Match {
	key := matcher.NormalizeTitle(query)
	if key == "" {
		return nil
	}
	if m, ok := r.cache.Get(ctx, query); ok {
		return m
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		games, err := r.api.SearchGames(ctx, query, searchLimit)
		if err != nil {
			return nil, err
		}
		m := bestMatch(query, games)
		if m != nil {
			r.cache.Put(ctx, query, *m)
		}
		return m, nil
	})
	if err != nil {
		r.logger.Warn("catalog search failed", "query", query, "error", err)
		return nil
	}
	m, _ := v.(*Match)
	return m
}

// BatchSearch resolves every query, issuing one lookup per distinct
// normalized title.
func (r *Resolver) BatchSearch(ctx context.Context, queries []string) map[string]*Match {
	results := make(map[string]*Match, len(queries))
	byKey := make(map[string]*Match)
	for _, q := range queries {
		key := matcher.NormalizeTitle(q)
		m, seen := byKey[key]
		if !seen {
			m = r.Search(ctx, q)
			byKey[key] = m
		}
		results[q] = m
	}
	return results
}

// ResolveByIDs fetches games in chunks of BatchSize. A failed chunk is
// logged and skipped.
func (r *Resolver) ResolveByIDs(ctx context.Context, ids []int64) []Game {
	ids = uniqueIDs(ids)
	games := make([]Game, 0, len(ids))
	for chunk := range slices.Chunk(ids, BatchSize) {
		batch, err := r.api.GamesByIDs(ctx, chunk)
		if err != nil {
			r.logger.Warn("catalog id lookup failed", "ids", len(chunk), "error", err)
			continue
		}
		games = append(games, batch...)
	}
	return games
}

// ResolveIDsByExternalAppIDs maps storefront app ids to catalog ids. Ids the
// catalog does not know are absent from the result.
func (r *Resolver) ResolveIDsByExternalAppIDs(ctx context.Context, appIDs []string) map[string]int64 {
	out := make(map[string]int64, len(appIDs))
	appIDs = slices.Compact(slices.Sorted(slices.Values(appIDs)))
	for chunk := range slices.Chunk(appIDs, BatchSize) {
		external, err := r.api.ExternalGamesBySteamIDs(ctx, chunk)
		if err != nil {
			r.logger.Warn("catalog external id lookup failed", "ids", len(chunk), "error", err)
			continue
		}
		for _, e := range external {
			if e.Game != 0 && e.UID != "" {
				out[e.UID] = e.Game
			}
		}
	}
	return out
}

// FormatGameMetadata maps a catalog game to the fields of a new tracked item.
func FormatGameMetadata(g Game, now time.Time) models.NewGame {
	date := ReleaseDate(g)
	return models.NewGame{
		Title:         g.Name,
		CatalogID:     g.ID,
		CoverURL:      CoverURL(g),
		Status:        models.StatusWanted,
		ReleaseDate:   date,
		ReleaseStatus: ReleaseStatusAt(date, now),
	}
}

// ReleaseDate returns the first release date, or nil when unknown.
func ReleaseDate(g Game) *time.Time {
	if g.FirstReleaseDate == 0 {
		return nil
	}
	t := time.Unix(g.FirstReleaseDate, 0).UTC()
	return &t
}

// ReleaseStatusAt classifies a release date relative to now. Unknown dates
// count as upcoming.
func ReleaseStatusAt(date *time.Time, now time.Time) string {
	if date != nil && !date.After(now) {
		return models.ReleaseReleased
	}
	return models.ReleaseUpcoming
}

func CoverURL(g Game) string {
	if g.Cover == nil || g.Cover.ImageID == "" {
		return ""
	}
	return fmt.Sprintf(coverURLTemplate, g.Cover.ImageID)
}

// bestMatch prefers an exact normalized name, then the first result that
// passes the title matcher. Anything looser is rejected.
func bestMatch(query string, games []Game) *Match {
	want := matcher.NormalizeTitle(query)
	for _, g := range games {
		if matcher.NormalizeTitle(g.Name) == want {
			return toMatch(g)
		}
	}
	for _, g := range games {
		if matcher.TitleMatches(g.Name, query) {
			return toMatch(g)
		}
	}
	return nil
}

func toMatch(g Game) *Match {
	return &Match{ID: g.ID, Name: g.Name, CoverURL: CoverURL(g)}
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
