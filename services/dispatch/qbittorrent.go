package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	sessionTimeout = 15 * time.Minute // qBittorrent sessions typically last longer
)

type QBittorrentClient struct {
	baseURL      string
	username     string
	password     string
	fetcher      Fetcher
	client       *http.Client
	mu           sync.Mutex
	lastLogin    time.Time
	sessionValid bool
}

func NewQBittorrentClient(baseURL, username, password string, fetcher Fetcher) (*QBittorrentClient, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &QBittorrentClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		password: password,
		fetcher:  fetcher,
		client: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (q *QBittorrentClient) Name() string {
	return "qbittorrent"
}

func (q *QBittorrentClient) Login(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Check if session is still valid
	if q.sessionValid && time.Since(q.lastLogin) < sessionTimeout {
		return nil
	}

	loginURL := q.baseURL + "/api/v2/auth/login"
	data := url.Values{}
	data.Set("username", q.username)
	data.Set("password", q.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := q.client.Do(req)
	if err != nil {
		q.sessionValid = false
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) == "Fails." {
		q.sessionValid = false
		return fmt.Errorf("login failed with status %d: %s", resp.StatusCode, string(body))
	}

	q.lastLogin = time.Now()
	q.sessionValid = true
	return nil
}

func (q *QBittorrentClient) invalidate() {
	q.mu.Lock()
	q.sessionValid = false
	q.mu.Unlock()
}

// Add submits magnets through the urls field and torrent files as a
// multipart upload.
func (q *QBittorrentClient) Add(ctx context.Context, r Request) error {
	var torrent []byte
	if !r.IsMagnet() {
		data, err := q.fetcher.Fetch(ctx, r.URL, MaxTorrentSize)
		if err != nil {
			return fmt.Errorf("failed to fetch torrent file: %w", err)
		}
		torrent = data
	}

	if err := q.Login(ctx); err != nil {
		return fmt.Errorf("failed to login before adding torrent: %w", err)
	}

	resp, err := q.postAdd(ctx, r, torrent)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		// Session expired, invalidate and retry once
		q.invalidate()
		if err := q.Login(ctx); err != nil {
			return fmt.Errorf("failed to re-login after 403: %w", err)
		}
		if resp, err = q.postAdd(ctx, r, torrent); err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to add torrent: status %d, body: %s", resp.StatusCode, string(body))
	}
	if strings.TrimSpace(string(body)) == "Fails." {
		return fmt.Errorf("qbittorrent rejected torrent %q", r.Title)
	}
	return nil
}

func (q *QBittorrentClient) postAdd(ctx context.Context, r Request, torrent []byte) (*http.Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if torrent == nil {
		if err := w.WriteField("urls", r.URL); err != nil {
			return nil, err
		}
	} else {
		part, err := w.CreateFormFile("torrents", torrentFileName(r.Title))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(torrent); err != nil {
			return nil, err
		}
	}
	if r.Category != "" {
		if err := w.WriteField("category", r.Category); err != nil {
			return nil, err
		}
	}
	if r.DownloadPath != "" {
		if err := w.WriteField("savepath", r.DownloadPath); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL+"/api/v2/torrents/add", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return q.client.Do(req)
}

func torrentFileName(title string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = "download"
	}
	return name + ".torrent"
}
