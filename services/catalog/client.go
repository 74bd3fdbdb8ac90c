// Package catalog talks to the IGDB game catalog and resolves free-form
// titles and storefront ids to canonical catalog entries.
package catalog

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

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"Gamarr/services/netguard"
	"Gamarr/services/throttle"
	sharedhttp "Gamarr/shared/http"
)

// DefaultRequestInterval keeps the client under IGDB's 4 requests per second.
const DefaultRequestInterval = 250 * time.Millisecond

// SteamCategory is the IGDB external_games category for Steam app ids.
const SteamCategory = 1

// Game is the subset of an IGDB game record the resolver uses.
type Game struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Summary          string `json:"summary,omitempty"`
	FirstReleaseDate int64  `json:"first_release_date,omitempty"`
	Cover            *Image `json:"cover,omitempty"`
}

type Image struct {
	ImageID string `json:"image_id"`
}

// ExternalGame links a catalog game to a storefront id.
type ExternalGame struct {
	Game     int64  `json:"game"`
	UID      string `json:"uid"`
	Category int    `json:"category"`
}

type Client struct {
	clientID   string
	baseURL    string
	tokens     oauth2.TokenSource
	httpClient *http.Client
	guard      *netguard.Guard
	limiter    *throttle.Limiter
}

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
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

// WithClientCredentials obtains bearer tokens from the Twitch OAuth endpoint.
func WithClientCredentials(clientSecret, tokenURL string) Option {
	return func(c *Client) {
		cfg := &clientcredentials.Config{
			ClientID:     c.clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
		c.tokens = cfg.TokenSource(ctx)
	}
}

// WithStaticToken uses a fixed access token.
func WithStaticToken(token string) Option {
	return func(c *Client) {
		c.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}
}

// WithRequestInterval changes the minimum gap between requests.
func WithRequestInterval(d time.Duration) Option {
	return func(c *Client) {
		c.limiter = throttle.New(d)
	}
}

// New creates an IGDB client. Options are applied in order, so WithGuard or
// WithHTTPClient should precede WithClientCredentials.
func New(clientID, baseURL string, opts ...Option) (*Client, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, errors.New("igdb client id required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("igdb base url required")
	}
	c := &Client{
		clientID:   clientID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: sharedhttp.DefaultTimeout},
		limiter:    throttle.New(DefaultRequestInterval),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		return nil, errors.New("igdb credentials required")
	}
	return c, nil
}

// SearchGames runs a full-text search.
func (c *Client) SearchGames(ctx context.Context, query string, limit int) ([]Game, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	if limit <= 0 {
		limit = 10
	}
	body := fmt.Sprintf(`search "%s"; fields name,summary,first_release_date,cover.image_id; limit %d;`,
		escapeQuery(query), limit)

	var games []Game
	if err := c.post(ctx, "/games", body, &games); err != nil {
		return nil, err
	}
	return games, nil
}

// GamesByIDs fetches games by catalog id in a single request.
func (c *Client) GamesByIDs(ctx context.Context, ids []int64) ([]Game, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	body := fmt.Sprintf(`fields name,summary,first_release_date,cover.image_id; where id = (%s); limit %d;`,
		strings.Join(parts, ","), len(ids))

	var games []Game
	if err := c.post(ctx, "/games", body, &games); err != nil {
		return nil, err
	}
	return games, nil
}

// ExternalGamesBySteamIDs maps Steam app ids to catalog games.
func (c *Client) ExternalGamesBySteamIDs(ctx context.Context, appIDs []string) ([]ExternalGame, error) {
	if len(appIDs) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(appIDs))
	for i, id := range appIDs {
		quoted[i] = `"` + escapeQuery(id) + `"`
	}
	body := fmt.Sprintf(`fields game,uid,category; where category = %d & uid = (%s); limit %d;`,
		SteamCategory, strings.Join(quoted, ","), len(appIDs))

	var external []ExternalGame
	if err := c.post(ctx, "/external_games", body, &external); err != nil {
		return nil, err
	}
	return external, nil
}

func (c *Client) post(ctx context.Context, endpoint, query string, out any) error {
	return c.limiter.Do(ctx, func(ctx context.Context) error {
		apiURL := c.baseURL + endpoint
		if c.guard != nil {
			if err := c.guard.Check(ctx, apiURL); err != nil {
				return err
			}
		}

		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("failed to obtain igdb token: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(query))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Client-ID", c.clientID)
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set("User-Agent", sharedhttp.UserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("igdb request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("igdb %s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode igdb response: %w", err)
		}
		return nil
	})
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, ``, `"`, ``, ";", " ").Replace(s)
}
