package indexers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"Gamarr/services/netguard"
	sharedhttp "Gamarr/shared/http"
	"Gamarr/shared/logger"
)

// ProwlarrIndexer searches every indexer configured in Prowlarr through its
// aggregate JSON search API.
type ProwlarrIndexer struct {
	baseURL string
	apiKey  string
	guard   *netguard.Guard
	client  *http.Client
	logger  *slog.Logger
}

func NewProwlarrIndexer(baseURL, apiKey string, guard *netguard.Guard, log *slog.Logger) *ProwlarrIndexer {
	return &ProwlarrIndexer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		guard:   guard,
		client:  guard.Client(sharedhttp.LongTimeout),
		logger:  logger.Component(log, "prowlarr"),
	}
}

func (p *ProwlarrIndexer) Name() string {
	return "prowlarr"
}

type prowlarrResult struct {
	GUID        string `json:"guid"`
	Title       string `json:"title"`
	Size        int64  `json:"size"`
	Indexer     string `json:"indexer"`
	DownloadURL string `json:"downloadUrl"`
	MagnetURL   string `json:"magnetUrl"`
	InfoHash    string `json:"infoHash"`
	Seeders     int    `json:"seeders"`
	Leechers    int    `json:"leechers"`
	Categories  []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"categories"`
}

func (p *ProwlarrIndexer) Search(ctx context.Context, query string) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("type", "search")
	for _, cat := range []int{CategoryConsole, CategoryPC} {
		q.Add("categories", strconv.Itoa(cat))
	}
	apiURL := p.baseURL + "/api/v1/search?" + q.Encode()

	if err := p.guard.Check(ctx, apiURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", p.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", sharedhttp.UserAgent)

	p.logger.Info("searching prowlarr", "query", query)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query prowlarr: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := sharedhttp.ReadResponseBody(resp)
		return nil, &sharedhttp.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var raw []prowlarrResult
	if err := sharedhttp.DecodeJSONResponse(resp, &raw); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(raw))
	for _, r := range raw {
		result := SearchResult{
			Title:    strings.TrimSpace(r.Title),
			GUID:     r.GUID,
			Link:     r.MagnetURL,
			InfoHash: r.InfoHash,
			Size:     r.Size,
			Seeders:  r.Seeders,
			Peers:    r.Leechers,
			Indexer:  r.Indexer,
		}
		if result.Link == "" {
			result.Link = r.DownloadURL
		}
		if len(r.Categories) > 0 {
			result.Category = categoryName(r.Categories[0].ID)
		}
		classify(&result)
		results = append(results, result)
	}
	return results, nil
}
