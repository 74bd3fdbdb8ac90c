// Package scene polls the xREL scene and P2P release directory and notifies
// users when a release for one of their wanted games shows up.
package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Gamarr/services/netguard"
	"Gamarr/services/throttle"
	"Gamarr/shared/format"
	sharedhttp "Gamarr/shared/http"
)

// DefaultRequestInterval keeps the client well inside xREL's hourly quota.
const DefaultRequestInterval = 4 * time.Second

// ExtInfoGame is the ext_info type of game entries.
const ExtInfoGame = "master_game"

// Release sources
const (
	SourceScene = "scene"
	SourceP2P   = "p2p"
)

// RateLimitError is returned for 429 responses. The caller retries on its
// next scheduled run.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("xrel rate limit exceeded, retry after %s", e.RetryAfter)
	}
	return "xrel rate limit exceeded"
}

// APIError is returned for any other non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("xrel api error %d: %s", e.StatusCode, e.Message)
}

type ExtInfo struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Release is a scene or P2P release in a unified shape.
type Release struct {
	ID        string    `json:"id"`
	Dirname   string    `json:"dirname"`
	Source    string    `json:"source"`
	GroupName string    `json:"group_name"`
	Time      time.Time `json:"time"`
	SizeMB    float64   `json:"size_mb,omitempty"`
	SizeUnit  string    `json:"size_unit,omitempty"`
	ExtInfo   ExtInfo   `json:"ext_info"`
}

type sceneRelease struct {
	ID        string  `json:"id"`
	Dirname   string  `json:"dirname"`
	Time      int64   `json:"time"`
	GroupName string  `json:"group_name"`
	Size      *size   `json:"size"`
	ExtInfo   ExtInfo `json:"ext_info"`
}

type size struct {
	Number float64 `json:"number"`
	Unit   string  `json:"unit"`
}

type p2pRelease struct {
	ID      string  `json:"id"`
	Dirname string  `json:"dirname"`
	PubTime int64   `json:"pub_time"`
	SizeMB  float64 `json:"size_mb"`
	Group   struct {
		Name string `json:"name"`
	} `json:"group"`
	ExtInfo ExtInfo `json:"ext_info"`
}

func (r sceneRelease) unified() Release {
	out := Release{
		ID:        r.ID,
		Dirname:   r.Dirname,
		Source:    SourceScene,
		GroupName: r.GroupName,
		Time:      time.Unix(r.Time, 0).UTC(),
		ExtInfo:   r.ExtInfo,
	}
	if r.Size != nil {
		out.SizeMB = r.Size.Number
		out.SizeUnit = r.Size.Unit
	}
	return out
}

func (r p2pRelease) unified() Release {
	return Release{
		ID:        r.ID,
		Dirname:   r.Dirname,
		Source:    SourceP2P,
		GroupName: r.Group.Name,
		Time:      time.Unix(r.PubTime, 0).UTC(),
		SizeMB:    r.SizeMB,
		SizeUnit:  "MB",
		ExtInfo:   r.ExtInfo,
	}
}

// SearchOptions tunes SearchReleases.
type SearchOptions struct {
	IncludeP2P bool
	Limit      int
}

// LatestOptions tunes GetLatestReleases.
type LatestOptions struct {
	Page       int
	PerPage    int
	IncludeP2P bool
}

// ReleaseList is one page of releases.
type ReleaseList struct {
	Releases   []Release
	Page       int
	TotalPages int
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	guard      *netguard.Guard
	limiter    *throttle.Limiter
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithGuard routes every request through the network guard.
func WithGuard(g *netguard.Guard) Option {
	return func(c *Client) {
		c.guard = g
		c.httpClient = g.Client(sharedhttp.DefaultTimeout)
	}
}

func WithRequestInterval(d time.Duration) Option {
	return func(c *Client) {
		c.limiter = throttle.New(d)
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("xrel base url required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: sharedhttp.DefaultTimeout},
		limiter:    throttle.New(DefaultRequestInterval),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SearchReleases searches scene releases and, optionally, P2P releases.
// Only game entries are returned.
func (c *Client) SearchReleases(ctx context.Context, query string, opts SearchOptions) ([]Release, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	if opts.Limit <= 0 {
		opts.Limit = 25
	}
	params := map[string]string{
		"q":     query,
		"scene": "1",
		"p2p":   "0",
		"limit": strconv.Itoa(opts.Limit),
	}
	if opts.IncludeP2P {
		params["p2p"] = "1"
	}

	var resp struct {
		Results    []sceneRelease `json:"results"`
		P2PResults []p2pRelease   `json:"p2p_results"`
	}
	if err := c.get(ctx, "/search/releases.json", params, &resp); err != nil {
		return nil, err
	}

	releases := make([]Release, 0, len(resp.Results)+len(resp.P2PResults))
	for _, r := range resp.Results {
		releases = append(releases, r.unified())
	}
	for _, r := range resp.P2PResults {
		releases = append(releases, r.unified())
	}
	return filterGames(releases), nil
}

// GetLatestReleases returns one page of the newest releases.
func (c *Client) GetLatestReleases(ctx context.Context, opts LatestOptions) (*ReleaseList, error) {
	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.PerPage <= 0 {
		opts.PerPage = 100
	}
	params := map[string]string{
		"page":     strconv.Itoa(opts.Page),
		"per_page": strconv.Itoa(opts.PerPage),
	}

	var latest struct {
		Pagination struct {
			CurrentPage int `json:"current_page"`
			TotalPages  int `json:"total_pages"`
		} `json:"pagination"`
		List []sceneRelease `json:"list"`
	}
	if err := c.get(ctx, "/release/latest.json", params, &latest); err != nil {
		return nil, err
	}

	out := &ReleaseList{Page: latest.Pagination.CurrentPage, TotalPages: latest.Pagination.TotalPages}
	for _, r := range latest.List {
		out.Releases = append(out.Releases, r.unified())
	}

	if opts.IncludeP2P {
		var p2p struct {
			List []p2pRelease `json:"list"`
		}
		if err := c.get(ctx, "/p2p/releases.json", params, &p2p); err != nil {
			return nil, err
		}
		for _, r := range p2p.List {
			out.Releases = append(out.Releases, r.unified())
		}
	}

	out.Releases = filterGames(out.Releases)
	return out, nil
}

func filterGames(releases []Release) []Release {
	games := releases[:0]
	for _, r := range releases {
		if r.ExtInfo.Type == ExtInfoGame {
			games = append(games, r)
		}
	}
	return games
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	return c.limiter.Do(ctx, func(ctx context.Context) error {
		apiURL := sharedhttp.BuildQueryURL(c.baseURL+endpoint, params)
		if c.guard != nil {
			if err := c.guard.Check(ctx, apiURL); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", sharedhttp.UserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("xrel request failed: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return &RateLimitError{RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}

		if err := json.NewDecoder(io.LimitReader(resp.Body, sharedhttp.MaxBodySize)).Decode(out); err != nil {
			return fmt.Errorf("failed to decode xrel response: %w", err)
		}
		return nil
	})
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// DescribeSize renders a release size for notifications.
func DescribeSize(r Release) string {
	if r.SizeMB <= 0 {
		return ""
	}
	if r.SizeUnit == "" || strings.EqualFold(r.SizeUnit, "MB") {
		return format.Bytes(format.MegabytesToBytes(r.SizeMB))
	}
	return strconv.FormatFloat(r.SizeMB, 'f', -1, 64) + " " + r.SizeUnit
}
