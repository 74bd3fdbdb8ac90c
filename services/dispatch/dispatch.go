// Package dispatch hands releases to download clients. Magnet links pass
// through untouched; torrent file links are fetched through the network guard
// and uploaded as file content, so the download client never reaches out to a
// user-supplied URL itself.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"Gamarr/shared/logger"
)

// MaxTorrentSize caps a fetched .torrent file.
const MaxTorrentSize = 10 << 20

var (
	ErrEmptyURL      = errors.New("download url required")
	ErrUnknownClient = errors.New("unknown download client")
)

// Request is a client-agnostic "add download" call.
type Request struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	Category     string `json:"category,omitempty"`
	DownloadPath string `json:"download_path,omitempty"`
}

// IsMagnet reports whether the request links to a magnet URI.
func (r Request) IsMagnet() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.URL)), "magnet:")
}

// Downloader adds a download to one backend.
type Downloader interface {
	Name() string
	Add(ctx context.Context, req Request) error
}

// Fetcher downloads a URL through the network guard.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, limit int64) ([]byte, error)
}

// Manager routes requests to a configured client.
type Manager struct {
	clients     map[string]Downloader
	defaultName string
	defaultPath string
	logger      *slog.Logger
}

func NewManager(defaultClient, defaultPath string, log *slog.Logger, clients ...Downloader) *Manager {
	m := &Manager{
		clients:     make(map[string]Downloader, len(clients)),
		defaultName: defaultClient,
		defaultPath: defaultPath,
		logger:      logger.Component(log, "dispatch"),
	}
	for _, c := range clients {
		m.clients[c.Name()] = c
	}
	return m
}

// Clients lists the configured client names.
func (m *Manager) Clients() []string {
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	return names
}

// Add sends req to the named client, or the default when client is empty.
func (m *Manager) Add(ctx context.Context, client string, req Request) error {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return ErrEmptyURL
	}
	if client == "" {
		client = m.defaultName
	}
	d, ok := m.clients[client]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownClient, client)
	}
	if req.DownloadPath == "" {
		req.DownloadPath = m.defaultPath
	}

	if err := d.Add(ctx, req); err != nil {
		m.logger.Error("failed to add download", "client", client, "title", req.Title, "error", err)
		return err
	}
	m.logger.Info("download added", "client", client, "title", req.Title, "category", req.Category, "magnet", req.IsMagnet())
	return nil
}
