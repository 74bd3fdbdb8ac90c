// Package wishlist imports a user's Steam wishlist as wanted games.
package wishlist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"Gamarr/services/netguard"
	"Gamarr/services/throttle"
	sharedhttp "Gamarr/shared/http"
)

// MaxPages is a safety ceiling on wishlist pagination.
const MaxPages = 50

// DefaultPageInterval spaces out page requests to the storefront.
const DefaultPageInterval = time.Second

var (
	ErrNoStorefrontID = errors.New("no linked steam account")
	ErrInvalidSteamID = errors.New("invalid steam id")
	ErrProfilePrivate = errors.New("steam profile is private or inaccessible")
)

var (
	steamIDPattern = regexp.MustCompile(`^7656119\d{10}$`)
	emptyPages     = [][]byte{[]byte("[]"), []byte("null")}
)

// ValidSteamID reports whether id is a 64-bit Steam profile id.
func ValidSteamID(id string) bool {
	return steamIDPattern.MatchString(strings.TrimSpace(id))
}

// Entry is one wishlisted app.
type Entry struct {
	AppID    string    `json:"app_id"`
	Title    string    `json:"title"`
	Added    time.Time `json:"added"`
	Priority int       `json:"priority"`
}

type wishlistItem struct {
	Name     string `json:"name"`
	Added    int64  `json:"added"`
	Priority int    `json:"priority"`
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

func WithPageInterval(d time.Duration) Option {
	return func(c *Client) {
		c.limiter = throttle.New(d)
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("steam store url required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: sharedhttp.DefaultTimeout},
		limiter:    throttle.New(DefaultPageInterval),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchWishlist pages through the wishlist until an empty page or MaxPages.
// Entries are ordered by priority, then app id.
func (c *Client) FetchWishlist(ctx context.Context, steamID string) ([]Entry, error) {
	steamID = strings.TrimSpace(steamID)
	if !ValidSteamID(steamID) {
		return nil, ErrInvalidSteamID
	}

	var entries []Entry
	for page := 0; page < MaxPages; page++ {
		items, err := c.fetchPage(ctx, steamID, page)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		for appID, item := range items {
			entries = append(entries, Entry{
				AppID:    appID,
				Title:    item.Name,
				Added:    time.Unix(item.Added, 0).UTC(),
				Priority: item.Priority,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority < entries[j].Priority
		}
		return entries[i].AppID < entries[j].AppID
	})
	return entries, nil
}

func (c *Client) fetchPage(ctx context.Context, steamID string, page int) (map[string]wishlistItem, error) {
	var items map[string]wishlistItem
	err := c.limiter.Do(ctx, func(ctx context.Context) error {
		pageURL := fmt.Sprintf("%s/wishlist/profiles/%s/wishlistdata/?p=%d", c.baseURL, steamID, page)
		if c.guard != nil {
			if err := c.guard.Check(ctx, pageURL); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", sharedhttp.UserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("steam wishlist request failed: %w", err)
		}
		body, err := sharedhttp.ReadResponseBody(resp)
		if err != nil {
			return fmt.Errorf("failed to read steam wishlist: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrProfilePrivate
		default:
			return &sharedhttp.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		items, err = decodePage(body)
		return err
	})
	return items, err
}

// decodePage handles the three shapes Steam returns: an object keyed by app
// id, an empty array for a page past the end, and {"success":2} for private
// profiles.
func decodePage(body []byte) (map[string]wishlistItem, error) {
	body = bytes.TrimSpace(body)
	for _, empty := range emptyPages {
		if bytes.Equal(body, empty) {
			return nil, nil
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode steam wishlist: %w", err)
	}
	if status, ok := raw["success"]; ok {
		if code, err := strconv.Atoi(string(status)); err == nil && code != 1 {
			return nil, ErrProfilePrivate
		}
		delete(raw, "success")
	}

	items := make(map[string]wishlistItem, len(raw))
	for appID, msg := range raw {
		var item wishlistItem
		if err := json.Unmarshal(msg, &item); err != nil {
			return nil, fmt.Errorf("failed to decode wishlist entry %s: %w", appID, err)
		}
		items[appID] = item
	}
	return items, nil
}

