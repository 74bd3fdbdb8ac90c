package indexers

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"Gamarr/services/netguard"
	sharedhttp "Gamarr/shared/http"
	"Gamarr/shared/logger"
)

// TorznabIndexer implements Indexer for Torznab endpoints (Jackett, Prowlarr
// per-indexer feeds).
type TorznabIndexer struct {
	name    string
	baseURL string
	apiKey  string
	guard   *netguard.Guard
	client  *http.Client
	logger  *slog.Logger
}

// NewTorznabIndexer creates a new Torznab indexer
func NewTorznabIndexer(name, baseURL, apiKey string, guard *netguard.Guard, log *slog.Logger) *TorznabIndexer {
	return &TorznabIndexer{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		guard:   guard,
		client:  guard.Client(sharedhttp.LongTimeout),
		logger:  logger.Component(log, "torznab"),
	}
}

func (t *TorznabIndexer) Name() string {
	return t.name
}

func (t *TorznabIndexer) Search(ctx context.Context, query string) ([]SearchResult, error) {
	params := map[string]string{
		"t":   "search",
		"q":   query,
		"cat": fmt.Sprintf("%d,%d,%d", CategoryConsole, CategoryPC, CategoryPCGames),
	}
	if t.apiKey != "" {
		params["apikey"] = t.apiKey
	}
	apiURL := sharedhttp.BuildQueryURL(t.baseURL+"/api", params)

	t.logger.Info("searching torznab indexer", "name", t.name, "query", query)

	if err := t.guard.Check(ctx, apiURL); err != nil {
		return nil, err
	}
	resp, err := sharedhttp.MakeRequest(ctx, t.client, apiURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query torznab indexer %s: %w", t.name, err)
	}
	defer resp.Body.Close()

	var rss torznabRSS
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, fmt.Errorf("failed to decode torznab XML: %w", err)
	}

	results := make([]SearchResult, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		results = append(results, convertTorznabItem(item, t.name))
	}
	return results, nil
}

type torznabRSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []torznabItem `xml:"item"`
	} `xml:"channel"`
}

type torznabItem struct {
	Title      string           `xml:"title"`
	GUID       string           `xml:"guid"`
	Link       string           `xml:"link"`
	Size       int64            `xml:"size"`
	Categories []int            `xml:"category"`
	Enclosure  torznabEnclosure `xml:"enclosure"`
	Attributes []torznabAttr    `xml:"attr"`
}

type torznabEnclosure struct {
	URL    string `xml:"url,attr"`
	Length string `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func convertTorznabItem(item torznabItem, source string) SearchResult {
	result := SearchResult{
		Title:   strings.TrimSpace(item.Title),
		GUID:    item.GUID,
		Link:    item.Enclosure.URL,
		Size:    item.Size,
		Indexer: source,
	}

	category := 0
	for _, attr := range item.Attributes {
		switch attr.Name {
		case "seeders":
			if seeds, err := strconv.Atoi(attr.Value); err == nil {
				result.Seeders = seeds
			}
		case "peers":
			if peers, err := strconv.Atoi(attr.Value); err == nil {
				result.Peers = peers
			}
		case "infohash":
			result.InfoHash = attr.Value
		case "magneturl":
			if attr.Value != "" {
				result.Link = attr.Value
			}
		case "size":
			if size, err := strconv.ParseInt(attr.Value, 10, 64); err == nil {
				result.Size = size
			}
		case "category":
			if id, err := strconv.Atoi(attr.Value); err == nil && category == 0 {
				category = id
			}
		}
	}
	if category == 0 && len(item.Categories) > 0 {
		category = item.Categories[0]
	}
	result.Category = categoryName(category)

	// Use enclosure length if size not found
	if result.Size == 0 && item.Enclosure.Length != "" {
		if size, err := strconv.ParseInt(item.Enclosure.Length, 10, 64); err == nil {
			result.Size = size
		}
	}

	// Use link if enclosure URL is empty
	if result.Link == "" {
		result.Link = item.Link
	}

	classify(&result)
	return result
}
