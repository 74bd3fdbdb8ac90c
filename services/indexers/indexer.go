// Package indexers searches Torznab and Prowlarr indexers and normalizes
// their results into one record shape.
package indexers

import (
	"context"
	"strings"

	"github.com/moistari/rls"

	"Gamarr/services/matcher"
)

// Newznab category ids used for game searches.
const (
	CategoryConsole = 1000
	CategoryPC      = 4000
	CategoryPCGames = 4050
)

// Normalized category names.
const (
	CategoryNameGames   = "games"
	CategoryNameConsole = "console"
	CategoryNameApps    = "apps"
)

// SearchResult is a release offered by an indexer.
type SearchResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	GUID     string `json:"guid,omitempty"`
	InfoHash string `json:"info_hash,omitempty"`
	Category string `json:"category,omitempty"`
	Size     int64  `json:"size"`
	Seeders  int    `json:"seeders"`
	Peers    int    `json:"peers"`
	Indexer  string `json:"indexer"`

	Release matcher.ReleaseMetadata `json:"release"`
}

// IsMagnet reports whether the result links to a magnet URI.
func (r SearchResult) IsMagnet() bool {
	return strings.HasPrefix(strings.ToLower(r.Link), "magnet:")
}

type Indexer interface {
	Name() string
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// categoryName maps newznab ids to normalized names.
func categoryName(id int) string {
	switch {
	case id >= 1000 && id < 2000:
		return CategoryNameConsole
	case id == CategoryPC, id == CategoryPCGames:
		return CategoryNameGames
	case id > 4000 && id < 5000:
		return CategoryNameApps
	}
	return ""
}

// classify fills in a category from the release name when the indexer gave
// none.
func classify(result *SearchResult) {
	if result.Category != "" {
		return
	}
	switch rls.ParseString(result.Title).Type {
	case rls.Game:
		result.Category = CategoryNameGames
	case rls.App:
		result.Category = CategoryNameApps
	}
}
