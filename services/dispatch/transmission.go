package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"
)

const transmissionSessionHeader = "X-Transmission-Session-Id"

// TransmissionClient talks to the Transmission RPC endpoint.
type TransmissionClient struct {
	rpcURL    string
	username  string
	password  string
	fetcher   Fetcher
	client    *http.Client
	mu        sync.Mutex
	sessionID string
}

func NewTransmissionClient(baseURL, username, password string, fetcher Fetcher) *TransmissionClient {
	rpcURL := strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(rpcURL, "/transmission/rpc") {
		rpcURL += "/transmission/rpc"
	}
	return &TransmissionClient{
		rpcURL:   rpcURL,
		username: username,
		password: password,
		fetcher:  fetcher,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TransmissionClient) Name() string {
	return "transmission"
}

type rpcRequest struct {
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments"`
}

type rpcResponse struct {
	Result    string `json:"result"`
	Arguments struct {
		Added     *rpcTorrent `json:"torrent-added"`
		Duplicate *rpcTorrent `json:"torrent-duplicate"`
	} `json:"arguments"`
}

type rpcTorrent struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	HashString string `json:"hashString"`
}

// Add uses the filename field for magnets and base64 metainfo for fetched
// torrent files. The category becomes a label and a download-dir suffix.
func (t *TransmissionClient) Add(ctx context.Context, r Request) error {
	args := map[string]any{}
	if r.IsMagnet() {
		args["filename"] = r.URL
	} else {
		data, err := t.fetcher.Fetch(ctx, r.URL, MaxTorrentSize)
		if err != nil {
			return fmt.Errorf("failed to fetch torrent file: %w", err)
		}
		args["metainfo"] = base64.StdEncoding.EncodeToString(data)
	}
	if r.Category != "" {
		args["labels"] = []string{r.Category}
	}
	if dir := downloadDir(r.DownloadPath, r.Category); dir != "" {
		args["download-dir"] = dir
	}

	var resp rpcResponse
	if err := t.call(ctx, rpcRequest{Method: "torrent-add", Arguments: args}, &resp); err != nil {
		return err
	}
	if resp.Result != "success" {
		return fmt.Errorf("transmission rejected torrent %q: %s", r.Title, resp.Result)
	}
	return nil
}

func downloadDir(base, category string) string {
	if base == "" {
		return ""
	}
	if category == "" {
		return base
	}
	return path.Join(base, category)
}

// call performs an RPC, redoing it once with the session id Transmission
// hands out on 409.
func (t *TransmissionClient) call(ctx context.Context, rpc rpcRequest, out any) error {
	payload, err := json.Marshal(rpc)
	if err != nil {
		return fmt.Errorf("failed to encode rpc request: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.rpcURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if t.username != "" {
			req.SetBasicAuth(t.username, t.password)
		}
		t.mu.Lock()
		if t.sessionID != "" {
			req.Header.Set(transmissionSessionHeader, t.sessionID)
		}
		t.mu.Unlock()

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("transmission request failed: %w", err)
		}

		if resp.StatusCode == http.StatusConflict {
			t.mu.Lock()
			t.sessionID = resp.Header.Get(transmissionSessionHeader)
			t.mu.Unlock()
			resp.Body.Close()
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("transmission returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode transmission response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("transmission session negotiation failed")
}
