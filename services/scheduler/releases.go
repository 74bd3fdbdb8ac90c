package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"Gamarr/models"
	"Gamarr/services/catalog"
	"Gamarr/shared/logger"
)

// BatchSize is the number of games resolved and written per round trip.
const BatchSize = 100

type GameStore interface {
	ListGamesWithCatalogID(ctx context.Context) ([]models.Game, error)
	UpdateReleaseInfo(ctx context.Context, updates []models.ReleaseUpdate) error
}

type CatalogResolver interface {
	ResolveByIDs(ctx context.Context, ids []int64) []catalog.Game
}

type Notifier interface {
	Send(ctx context.Context, notifications []models.Notification) error
}

// ReleaseSummary counts the outcome of one reconciliation pass.
type ReleaseSummary struct {
	Checked      int
	Updated      int
	Released     int
	FailedChunks int
}

// ReleaseChecker keeps tracked games' release status in line with the
// catalog's release dates.
type ReleaseChecker struct {
	store    GameStore
	resolver CatalogResolver
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

func NewReleaseChecker(store GameStore, resolver CatalogResolver, notifier Notifier, log *slog.Logger) *ReleaseChecker {
	return &ReleaseChecker{
		store:    store,
		resolver: resolver,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.Component(log, "release-checker"),
	}
}

// Check resolves every tracked game in chunks, writes each chunk's changes
// in one call, and sends one batch of notifications for games that just came
// out. A chunk whose write fails is skipped and the rest still run.
func (c *ReleaseChecker) Check(ctx context.Context) (ReleaseSummary, error) {
	var summary ReleaseSummary

	games, err := c.store.ListGamesWithCatalogID(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list games: %w", err)
	}
	games = slices.DeleteFunc(games, func(g models.Game) bool { return g.CatalogID == nil })
	if len(games) == 0 {
		return summary, nil
	}

	now := c.now()
	var notifications []models.Notification

	for chunk := range slices.Chunk(games, BatchSize) {
		summary.Checked += len(chunk)

		ids := make([]int64, 0, len(chunk))
		for _, g := range chunk {
			ids = append(ids, *g.CatalogID)
		}
		resolved := make(map[int64]catalog.Game, len(chunk))
		for _, cg := range c.resolver.ResolveByIDs(ctx, ids) {
			resolved[cg.ID] = cg
		}

		var updates []models.ReleaseUpdate
		var released []models.Game
		for _, g := range chunk {
			cg, ok := resolved[*g.CatalogID]
			if !ok {
				continue
			}
			date := catalog.ReleaseDate(cg)
			if date == nil {
				continue
			}
			status := catalog.ReleaseStatusAt(date, now)
			if status == g.ReleaseStatus && sameDay(date, g.ReleaseDate) {
				continue
			}
			updates = append(updates, models.ReleaseUpdate{GameID: g.ID, ReleaseDate: date, ReleaseStatus: status})
			if g.ReleaseStatus == models.ReleaseUpcoming && status == models.ReleaseReleased {
				released = append(released, g)
			}
		}
		if len(updates) == 0 {
			continue
		}

		if err := c.store.UpdateReleaseInfo(ctx, updates); err != nil {
			summary.FailedChunks++
			c.logger.Error("failed to write release updates", "count", len(updates), "error", err)
			continue
		}
		summary.Updated += len(updates)
		summary.Released += len(released)
		for _, g := range released {
			notifications = append(notifications, releasedNotification(g))
		}
	}

	if len(notifications) > 0 && c.notifier != nil {
		if err := c.notifier.Send(ctx, notifications); err != nil {
			return summary, fmt.Errorf("failed to send release notifications: %w", err)
		}
	}

	c.logger.Info("release check complete",
		"checked", summary.Checked,
		"updated", summary.Updated,
		"released", summary.Released,
		"failed_chunks", summary.FailedChunks)
	return summary, nil
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func releasedNotification(g models.Game) models.Notification {
	id := g.ID
	return models.Notification{
		UserID:  g.UserID,
		Type:    models.NotificationReleased,
		Title:   "Game released",
		Message: fmt.Sprintf("%s is now available", g.Title),
		GameID:  &id,
	}
}
