package indexers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"Gamarr/services/matcher"
	"Gamarr/services/netguard"
	"Gamarr/shared/logger"
)

// Aggregator fans a search out over every configured indexer. An indexer
// that fails is logged and left out of the results, except when the guard
// rejects its URL: that is a configuration error and fails the search.
type Aggregator struct {
	indexers []Indexer
	logger   *slog.Logger
}

func NewAggregator(indexers []Indexer, log *slog.Logger) *Aggregator {
	return &Aggregator{indexers: indexers, logger: logger.Component(log, "indexers")}
}

// Indexers returns the configured indexers.
func (a *Aggregator) Indexers() []Indexer {
	return a.indexers
}

// Search queries all indexers concurrently and returns results ordered by
// seeders, with duplicate links removed and release metadata parsed.
func (a *Aggregator) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || len(a.indexers) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		results []SearchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, idx := range a.indexers {
		g.Go(func() error {
			found, err := idx.Search(gctx, query)
			if errors.Is(err, netguard.ErrUnsafeURL) {
				a.logger.Error("indexer url rejected", "indexer", idx.Name(), "error", err)
				return fmt.Errorf("indexer %s: %w", idx.Name(), err)
			}
			if err != nil {
				a.logger.Warn("indexer search failed", "indexer", idx.Name(), "query", query, "error", err)
				return nil
			}
			mu.Lock()
			results = append(results, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results = dedupe(results)
	for i := range results {
		results[i].Release = matcher.ParseReleaseMetadata(results[i].Title)
	}
	return results, nil
}

// SearchForGame searches for title and keeps only the releases that belong
// to that game.
func (a *Aggregator) SearchForGame(ctx context.Context, title string) ([]SearchResult, error) {
	results, err := a.Search(ctx, title)
	if err != nil {
		return nil, err
	}
	out := results[:0]
	for _, r := range results {
		if matcher.ReleaseMatchesGame(r.Title, title) {
			out = append(out, r)
		}
	}
	return out, nil
}

func dedupe(results []SearchResult) []SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Seeders > results[j].Seeders
	})
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, r := range results {
		key := r.Link
		if r.InfoHash != "" {
			key = strings.ToLower(r.InfoHash)
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
