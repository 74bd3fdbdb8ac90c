package wishlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"Gamarr/models"
	"Gamarr/services/catalog"
	"Gamarr/shared/logger"
)

// BatchSize bounds how many games are added per write.
const BatchSize = 100

// Source fetches a wishlist.
type Source interface {
	FetchWishlist(ctx context.Context, steamID string) ([]Entry, error)
}

var _ Source = (*Client)(nil)

// Resolver maps storefront ids to catalog games.
type Resolver interface {
	ResolveIDsByExternalAppIDs(ctx context.Context, appIDs []string) map[string]int64
	ResolveByIDs(ctx context.Context, ids []int64) []catalog.Game
}

var _ Resolver = (*catalog.Resolver)(nil)

// Store is the persistence the importer needs.
type Store interface {
	GetUserSettings(ctx context.Context, userID int64) (models.UserSettings, error)
	CatalogIDsForUser(ctx context.Context, userID int64) (map[int64]bool, error)
	AddGames(ctx context.Context, games []models.NewGame) (int, error)
	UsersWithSteamID(ctx context.Context) ([]int64, error)
}

// Result reports the outcome of one sync.
type Result struct {
	Success bool   `json:"success"`
	Added   int    `json:"added"`
	Skipped int    `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
	Err     error  `json:"-"`
}

func failure(err error) Result {
	return Result{Reason: err.Error(), Err: err}
}

type Importer struct {
	source   Source
	resolver Resolver
	store    Store
	logger   *slog.Logger
	now      func() time.Time
}

func NewImporter(source Source, resolver Resolver, store Store, log *slog.Logger) *Importer {
	return &Importer{
		source:   source,
		resolver: resolver,
		store:    store,
		logger:   logger.Component(log, "wishlist"),
		now:      time.Now,
	}
}

// Sync imports the user's wishlist. Games the user already tracks by
// catalog id are never added again.
func (i *Importer) Sync(ctx context.Context, userID int64) Result {
	log := i.logger.With("user_id", userID)

	settings, err := i.store.GetUserSettings(ctx, userID)
	if err != nil {
		return failure(fmt.Errorf("failed to load user settings: %w", err))
	}
	if settings.SteamID == "" {
		return failure(ErrNoStorefrontID)
	}
	if !ValidSteamID(settings.SteamID) {
		return failure(ErrInvalidSteamID)
	}

	entries, err := i.source.FetchWishlist(ctx, settings.SteamID)
	if err != nil {
		if errors.Is(err, ErrProfilePrivate) {
			return failure(ErrProfilePrivate)
		}
		return failure(fmt.Errorf("steam api error: %w", err))
	}
	if len(entries) == 0 {
		return Result{Success: true}
	}

	appIDs := make([]string, len(entries))
	for idx, e := range entries {
		appIDs[idx] = e.AppID
	}
	catalogIDs := i.resolver.ResolveIDsByExternalAppIDs(ctx, appIDs)

	existing, err := i.store.CatalogIDsForUser(ctx, userID)
	if err != nil {
		return failure(fmt.Errorf("failed to load existing games: %w", err))
	}

	var wanted []int64
	queued := make(map[int64]bool)
	skipped := 0
	for _, e := range entries {
		id, ok := catalogIDs[e.AppID]
		if !ok {
			log.Debug("wishlist entry not in catalog", "app_id", e.AppID, "title", e.Title)
			skipped++
			continue
		}
		if existing[id] || queued[id] {
			skipped++
			continue
		}
		queued[id] = true
		wanted = append(wanted, id)
	}
	if len(wanted) == 0 {
		return Result{Success: true, Skipped: skipped}
	}

	now := i.now()
	games := i.resolver.ResolveByIDs(ctx, wanted)
	additions := make([]models.NewGame, 0, len(games))
	for _, g := range games {
		if existing[g.ID] {
			continue
		}
		ng := catalog.FormatGameMetadata(g, now)
		ng.UserID = userID
		additions = append(additions, ng)
	}

	added := 0
	var writeErr error
	for chunk := range slices.Chunk(additions, BatchSize) {
		n, err := i.store.AddGames(ctx, chunk)
		if err != nil {
			log.Error("failed to add wishlist games", "count", len(chunk), "error", err)
			writeErr = err
			continue
		}
		added += n
	}
	if added == 0 && writeErr != nil {
		return failure(fmt.Errorf("failed to add games: %w", writeErr))
	}

	log.Info("wishlist synced", "entries", len(entries), "added", added, "skipped", skipped)
	return Result{Success: true, Added: added, Skipped: skipped}
}

// SyncAll syncs every user with a linked Steam account.
func (i *Importer) SyncAll(ctx context.Context) error {
	users, err := i.store.UsersWithSteamID(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users with steam ids: %w", err)
	}
	failed := 0
	for _, userID := range users {
		if res := i.Sync(ctx, userID); !res.Success {
			failed++
			i.logger.Warn("wishlist sync failed", "user_id", userID, "reason", res.Reason)
		}
	}
	i.logger.Info("wishlist sync complete", "users", len(users), "failed", failed)
	return nil
}
