// Package feeds ingests RSS and Atom release feeds. New items are stored at
// once with no catalog match; matching runs later on the worker queue.
package feeds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed"

	"Gamarr/models"
	"Gamarr/services/catalog"
	"Gamarr/services/matcher"
	"Gamarr/services/netguard"
	"Gamarr/services/worker"
	"Gamarr/shared/format"
	"Gamarr/shared/logger"
)

// MaxFeedSize caps a single feed download.
const MaxFeedSize = 5 << 20

// TestItemLimit is how many items Test returns.
const TestItemLimit = 10

const (
	// SweepGrace is how old an unchecked item must be before the sweep
	// matches it, leaving queued matching time to run first.
	SweepGrace = 15 * time.Minute
	// SweepLimit caps the items matched by one sweep.
	SweepLimit = 500
)

// Store is the persistence the service needs.
type Store interface {
	ListEnabledFeedSources(ctx context.Context) ([]models.FeedSource, error)
	ExistingFeedGUIDs(ctx context.Context, sourceID int64, guids []string) (map[string]bool, error)
	InsertFeedItems(ctx context.Context, sourceID int64, items []models.NewFeedItem) ([]models.FeedItem, error)
	UpdateFeedItemMatch(ctx context.Context, itemID, catalogID int64, name, coverURL string) error
	UpdateFeedSourceStatus(ctx context.Context, sourceID int64, status, lastError string, checkedAt time.Time) error
	ListUncheckedFeedItems(ctx context.Context, createdBefore time.Time, limit int) ([]models.FeedItem, error)
	MarkFeedItemsChecked(ctx context.Context, ids []int64, checkedAt time.Time) error
}

// Searcher resolves a cleaned title to a catalog match.
type Searcher interface {
	Search(ctx context.Context, query string) *catalog.Match
}

// Fetcher downloads a URL through the network guard.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, limit int64) ([]byte, error)
}

var _ Fetcher = (*netguard.Guard)(nil)

// Summary describes one CheckAll pass.
type Summary struct {
	Sources  int
	Failed   int
	NewItems int
	Swept    int
}

type Service struct {
	store    Store
	fetcher  Fetcher
	resolver Searcher
	queue    *worker.Queue
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, fetcher Fetcher, resolver Searcher, queue *worker.Queue, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		fetcher:  fetcher,
		resolver: resolver,
		queue:    queue,
		logger:   logger.Component(log, "feeds"),
		now:      time.Now,
	}
}

// CheckAll ingests every enabled source. A failing source is recorded on the
// source and does not stop the others.
func (s *Service) CheckAll(ctx context.Context) (Summary, error) {
	sources, err := s.store.ListEnabledFeedSources(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list feed sources: %w", err)
	}

	summary := Summary{Sources: len(sources)}
	for _, src := range sources {
		added, err := s.CheckSource(ctx, src)
		if err != nil {
			summary.Failed++
			continue
		}
		summary.NewItems += added
	}

	swept, err := s.SweepUnchecked(ctx)
	if err != nil {
		s.logger.Warn("feed match sweep failed", "error", err)
	}
	summary.Swept = swept

	s.logger.Info("feed check complete", "sources", summary.Sources, "failed", summary.Failed,
		"new_items", summary.NewItems, "swept", summary.Swept)
	return summary, nil
}

// SweepUnchecked matches stored items that no queued task has checked, such
// as items whose task was dropped by a full queue or a restart. Only items
// older than SweepGrace are taken. It returns the number of items checked.
func (s *Service) SweepUnchecked(ctx context.Context) (int, error) {
	items, err := s.store.ListUncheckedFeedItems(ctx, s.now().Add(-SweepGrace), SweepLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list unchecked feed items: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}
	s.logger.Info("sweeping unchecked feed items", "count", len(items))
	return len(items), s.MatchItems(ctx, items)
}

// CheckSource fetches one source, stores unseen items and schedules their
// catalog matching. It returns the number of items added.
func (s *Service) CheckSource(ctx context.Context, src models.FeedSource) (int, error) {
	log := s.logger.With("feed_id", src.ID, "url", src.URL)

	added, err := s.ingest(ctx, src)
	checkedAt := s.now()
	if err != nil {
		log.Warn("feed check failed", "error", err)
		if serr := s.store.UpdateFeedSourceStatus(ctx, src.ID, models.FeedStatusError, err.Error(), checkedAt); serr != nil {
			log.Error("failed to record feed status", "error", serr)
		}
		return 0, err
	}

	if serr := s.store.UpdateFeedSourceStatus(ctx, src.ID, models.FeedStatusOK, "", checkedAt); serr != nil {
		log.Error("failed to record feed status", "error", serr)
	}
	return added, nil
}

func (s *Service) ingest(ctx context.Context, src models.FeedSource) (int, error) {
	items, err := s.fetchItems(ctx, src.URL, MappingFor(src), src.ID)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	guids := make([]string, len(items))
	for i, it := range items {
		guids[i] = it.GUID
	}
	existing, err := s.store.ExistingFeedGUIDs(ctx, src.ID, guids)
	if err != nil {
		return 0, fmt.Errorf("failed to load existing guids: %w", err)
	}

	fresh := items[:0]
	for _, it := range items {
		if !existing[it.GUID] {
			fresh = append(fresh, it)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	inserted, err := s.store.InsertFeedItems(ctx, src.ID, fresh)
	if err != nil {
		return 0, fmt.Errorf("failed to store feed items: %w", err)
	}
	s.logger.Info("stored new feed items", "feed_id", src.ID, "count", len(inserted))

	s.scheduleMatch(src.ID, inserted)
	return len(inserted), nil
}

// fetchItems downloads and parses a feed, normalizes its items and drops
// duplicate guids within the payload.
func (s *Service) fetchItems(ctx context.Context, url string, m Mapping, sourceID int64) ([]models.NewFeedItem, error) {
	body, err := s.fetcher.Fetch(ctx, url, MaxFeedSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	seen := make(map[string]bool, len(feed.Items))
	items := make([]models.NewFeedItem, 0, len(feed.Items))
	for _, raw := range feed.Items {
		item, ok := normalizeItem(raw, m)
		if !ok {
			s.logger.Debug("skipping feed item without title or link", "feed_id", sourceID, "title", format.Preview(raw.Title, 80))
			continue
		}
		if seen[item.GUID] {
			continue
		}
		seen[item.GUID] = true
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) scheduleMatch(sourceID int64, items []models.FeedItem) {
	if len(items) == 0 || s.queue == nil {
		return
	}
	err := s.queue.Submit(worker.Task{
		Name: "feed-match:" + strconv.FormatInt(sourceID, 10),
		Run: func(ctx context.Context) error {
			return s.MatchItems(ctx, items)
		},
	})
	if err != nil {
		s.logger.Warn("failed to schedule feed matching, leaving items to the sweep", "feed_id", sourceID, "items", len(items), "error", err)
	}
}

// MatchItems resolves each item's cleaned title against the catalog and
// stores the match. Items already matched are skipped. Every item looked up
// is marked checked, unless storing its match failed, so the sweep only
// retries what was never looked up.
func (s *Service) MatchItems(ctx context.Context, items []models.FeedItem) error {
	var errs []error
	matched := 0
	checked := make([]int64, 0, len(items))
	for _, item := range items {
		if item.CatalogID != nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		cleaned := matcher.CleanReleaseName(item.Title)
		m := s.resolver.Search(ctx, cleaned)
		if m != nil {
			if err := s.store.UpdateFeedItemMatch(ctx, item.ID, m.ID, m.Name, m.CoverURL); err != nil {
				errs = append(errs, fmt.Errorf("item %d: %w", item.ID, err))
				continue
			}
			matched++
		}
		checked = append(checked, item.ID)
	}
	if len(checked) > 0 {
		if err := s.store.MarkFeedItemsChecked(ctx, checked, s.now()); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Debug("feed items matched", "items", len(items), "matched", matched)
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Test fetches and parses url without storing anything.
func (s *Service) Test(ctx context.Context, url string, m Mapping) ([]models.NewFeedItem, error) {
	items, err := s.fetchItems(ctx, url, m, 0)
	if err != nil {
		return nil, err
	}
	if len(items) > TestItemLimit {
		items = items[:TestItemLimit]
	}
	return items, nil
}
