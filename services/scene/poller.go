package scene

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"Gamarr/models"
	"Gamarr/services/matcher"
	"Gamarr/shared/logger"
)

// BatchSize bounds ledger writes.
const BatchSize = 100

// ReleaseSource lists the newest releases.
type ReleaseSource interface {
	GetLatestReleases(ctx context.Context, opts LatestOptions) (*ReleaseList, error)
}

var _ ReleaseSource = (*Client)(nil)

// Store is the persistence the poller needs.
type Store interface {
	ListWantedGames(ctx context.Context) ([]models.Game, error)
	SettingsForUsers(ctx context.Context, userIDs []int64) (map[int64]models.UserSettings, error)
	ExistingNotifiedReleases(ctx context.Context, gameIDs []int64) ([]models.NotifiedRelease, error)
	// RecordNotifiedReleases inserts ledger rows and returns only the ones
	// that did not exist yet.
	RecordNotifiedReleases(ctx context.Context, records []models.NotifiedRelease) ([]models.NotifiedRelease, error)
}

// Notifier persists and pushes notifications.
type Notifier interface {
	Send(ctx context.Context, notifications []models.Notification) error
}

type Poller struct {
	releases ReleaseSource
	store    Store
	notifier Notifier
	pages    int
	logger   *slog.Logger
}

func NewPoller(releases ReleaseSource, store Store, notifier Notifier, log *slog.Logger) *Poller {
	return &Poller{
		releases: releases,
		store:    store,
		notifier: notifier,
		pages:    1,
		logger:   logger.Component(log, "scene"),
	}
}

type ledgerKey struct {
	gameID    int64
	releaseID string
}

type candidate struct {
	game    models.Game
	release Release
}

// Check fetches the latest releases and notifies each user at most once per
// (game, release) pair. It returns the number of notifications sent. Rate
// limit errors are passed up so the scheduler retries on its next tick.
func (p *Poller) Check(ctx context.Context) (int, error) {
	var releases []Release
	for page := 1; page <= p.pages; page++ {
		list, err := p.releases.GetLatestReleases(ctx, LatestOptions{Page: page, IncludeP2P: true})
		if err != nil {
			return 0, fmt.Errorf("failed to fetch latest releases: %w", err)
		}
		releases = append(releases, list.Releases...)
		if list.TotalPages <= page {
			break
		}
	}
	if len(releases) == 0 {
		return 0, nil
	}

	games, err := p.store.ListWantedGames(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load wanted games: %w", err)
	}
	if len(games) == 0 {
		return 0, nil
	}

	userIDs := make([]int64, 0, len(games))
	for _, g := range games {
		userIDs = append(userIDs, g.UserID)
	}
	slices.Sort(userIDs)
	userIDs = slices.Compact(userIDs)
	settings, err := p.store.SettingsForUsers(ctx, userIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load user settings: %w", err)
	}

	candidates := p.match(games, releases, settings)
	if len(candidates) == 0 {
		return 0, nil
	}

	gameIDs := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		gameIDs = append(gameIDs, c.game.ID)
	}
	slices.Sort(gameIDs)
	existing, err := p.store.ExistingNotifiedReleases(ctx, slices.Compact(gameIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to load notified releases: %w", err)
	}
	notified := make(map[ledgerKey]bool, len(existing))
	for _, nr := range existing {
		notified[ledgerKey{nr.GameID, nr.ReleaseID}] = true
	}

	pending := candidates[:0]
	for _, c := range candidates {
		if !notified[ledgerKey{c.game.ID, c.release.ID}] {
			pending = append(pending, c)
		}
	}

	var notifications []models.Notification
	for chunk := range slices.Chunk(pending, BatchSize) {
		records := make([]models.NotifiedRelease, len(chunk))
		byKey := make(map[ledgerKey]candidate, len(chunk))
		for i, c := range chunk {
			records[i] = models.NotifiedRelease{GameID: c.game.ID, ReleaseID: c.release.ID, Source: c.release.Source}
			byKey[ledgerKey{c.game.ID, c.release.ID}] = c
		}

		inserted, err := p.store.RecordNotifiedReleases(ctx, records)
		if err != nil {
			p.logger.Error("failed to record notified releases", "count", len(records), "error", err)
			continue
		}
		for _, nr := range inserted {
			if c, ok := byKey[ledgerKey{nr.GameID, nr.ReleaseID}]; ok {
				notifications = append(notifications, releaseNotification(c))
			}
		}
	}

	if len(notifications) == 0 {
		return 0, nil
	}
	if err := p.notifier.Send(ctx, notifications); err != nil {
		return 0, fmt.Errorf("failed to send scene notifications: %w", err)
	}
	p.logger.Info("scene releases notified", "releases", len(releases), "notifications", len(notifications))
	return len(notifications), nil
}

func (p *Poller) match(games []models.Game, releases []Release, settings map[int64]models.UserSettings) []candidate {
	seen := make(map[ledgerKey]bool)
	var out []candidate
	for _, g := range games {
		if g.Hidden || g.Status != models.StatusWanted {
			continue
		}
		prefs, ok := settings[g.UserID]
		if !ok {
			prefs = models.DefaultSettings(g.UserID)
		}
		for _, r := range releases {
			if r.Source == SourceScene && !prefs.NotifyScene {
				continue
			}
			if r.Source == SourceP2P && !prefs.NotifyP2P {
				continue
			}
			if !matcher.TitleMatches(r.ExtInfo.Title, g.Title) {
				continue
			}
			key := ledgerKey{g.ID, r.ID}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, candidate{game: g, release: r})
		}
	}
	return out
}

func releaseNotification(c candidate) models.Notification {
	gameID := c.game.ID
	kind := "Scene"
	if c.release.Source == SourceP2P {
		kind = "P2P"
	}
	msg := c.release.Dirname
	if size := DescribeSize(c.release); size != "" {
		msg = fmt.Sprintf("%s (%s)", msg, size)
	}
	return models.Notification{
		UserID:  c.game.UserID,
		Type:    models.NotificationSceneRelease,
		Title:   fmt.Sprintf("%s release: %s", kind, c.game.Title),
		Message: msg,
		GameID:  &gameID,
	}
}
