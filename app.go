package main

import (
	"context"
	"fmt"
	"log/slog"

	"Gamarr/config"
	"Gamarr/database"
	"Gamarr/handlers"
	"Gamarr/services/catalog"
	"Gamarr/services/dispatch"
	"Gamarr/services/feeds"
	"Gamarr/services/indexers"
	"Gamarr/services/netguard"
	"Gamarr/services/notify"
	"Gamarr/services/scene"
	"Gamarr/services/scheduler"
	"Gamarr/services/wishlist"
	"Gamarr/services/worker"
)

// app holds every wired service for one process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *database.Store

	guard     *netguard.Guard
	queue     *worker.Queue
	cache     catalog.Store
	resolver  *catalog.Resolver
	feeds     *feeds.Service
	xrel      *scene.Client
	scene     *scene.Poller
	wishlist  *wishlist.Importer
	releases  *scheduler.ReleaseChecker
	search    *indexers.Aggregator
	downloads *dispatch.Manager
	hub       *notify.Hub
	notify    *notify.Service
	scheduler *scheduler.Scheduler
}

// openStore connects to Postgres and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (*database.Store, error) {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return database.NewStore(db), nil
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log, store: store}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg, log := a.cfg, a.logger

	a.guard = netguard.New(
		netguard.WithAllowPrivateNetworks(cfg.AllowPrivateNetworks),
		netguard.WithLogger(log),
	)

	a.queue = worker.NewQueue(worker.DefaultWorkerCount, log)

	igdb, err := catalog.New(cfg.IGDBClientID, cfg.IGDBBaseURL,
		catalog.WithGuard(a.guard),
		catalog.WithClientCredentials(cfg.IGDBClientSecret, cfg.IGDBTokenURL),
	)
	if err != nil {
		return fmt.Errorf("failed to create catalog client: %w", err)
	}

	switch cfg.CacheBackend {
	case "redis":
		rs, err := catalog.NewRedisStoreFromURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to create redis cache: %w", err)
		}
		a.cache = rs
	default:
		a.cache = catalog.NewMemoryStore()
	}
	cache := catalog.NewMatchCache(a.cache, catalog.DefaultCacheTTL, catalog.WithCacheLogger(log))
	a.resolver = catalog.NewResolver(igdb, cache, log)

	a.hub = notify.NewHub(log)
	a.notify = notify.NewService(a.store, a.hub, log)

	a.feeds = feeds.NewService(a.store, a.guard, a.resolver, a.queue, log)

	a.xrel, err = scene.New(cfg.XRelBaseURL, scene.WithGuard(a.guard))
	if err != nil {
		return fmt.Errorf("failed to create scene client: %w", err)
	}
	a.scene = scene.NewPoller(a.xrel, a.store, a.notify, log)

	steam, err := wishlist.New(cfg.SteamStoreURL, wishlist.WithGuard(a.guard))
	if err != nil {
		return fmt.Errorf("failed to create wishlist client: %w", err)
	}
	a.wishlist = wishlist.NewImporter(steam, a.resolver, a.store, log)

	a.releases = scheduler.NewReleaseChecker(a.store, a.resolver, a.notify, log)

	var idx []indexers.Indexer
	if cfg.TorznabURL != "" {
		idx = append(idx, indexers.NewTorznabIndexer("torznab", cfg.TorznabURL, cfg.TorznabAPIKey, a.guard, log))
	}
	if cfg.ProwlarrURL != "" {
		idx = append(idx, indexers.NewProwlarrIndexer(cfg.ProwlarrURL, cfg.ProwlarrAPIKey, a.guard, log))
	}
	a.search = indexers.NewAggregator(idx, log)

	var clients []dispatch.Downloader
	if cfg.QBittorrentURL != "" {
		qb, err := dispatch.NewQBittorrentClient(cfg.QBittorrentURL, cfg.QBittorrentUser, cfg.QBittorrentPass, a.guard)
		if err != nil {
			return fmt.Errorf("failed to create qbittorrent client: %w", err)
		}
		clients = append(clients, qb)
	}
	if cfg.TransmissionURL != "" {
		clients = append(clients, dispatch.NewTransmissionClient(cfg.TransmissionURL, cfg.TransmissionUser, cfg.TransmissionPass, a.guard))
	}
	a.downloads = dispatch.NewManager(cfg.DownloadClient, cfg.DownloadPath, log, clients...)

	log.Debug("services wired",
		"cache", cfg.CacheBackend,
		"indexers", len(idx),
		"download_clients", a.downloads.Clients())
	return nil
}

// newScheduler registers the background jobs.
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(a.cfg.SchedulerLockPath, a.logger)

	if err := s.Every(handlers.JobFeeds, a.cfg.FeedCheckInterval, func(ctx context.Context) error {
		_, err := a.feeds.CheckAll(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	if err := s.Every(handlers.JobScene, a.cfg.SceneCheckInterval, func(ctx context.Context) error {
		_, err := a.scene.Check(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	if err := s.Every(handlers.JobReleases, a.cfg.ReleaseCheckInterval, func(ctx context.Context) error {
		_, err := a.releases.Check(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	if err := s.Cron(handlers.JobWishlist, a.cfg.WishlistSyncSchedule, a.wishlist.SyncAll); err != nil {
		return nil, err
	}
	a.scheduler = s
	return s, nil
}

// drainTaskErrors logs background task failures until ctx ends.
func (a *app) drainTaskErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case te, ok := <-a.queue.Errors():
			if !ok {
				return
			}
			a.logger.Warn("background task failed", "task", te.Task, "error", te.Err)
		}
	}
}

func (a *app) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.queue != nil {
		a.queue.Close()
	}
	if closer, ok := a.cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warn("failed to close cache", "error", err)
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}
