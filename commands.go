package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"Gamarr/config"
	"Gamarr/handlers"
	"Gamarr/middleware"
	"Gamarr/models"
	"Gamarr/services/indexers"
	"Gamarr/services/scheduler"
	"Gamarr/shared/format"
	"Gamarr/shared/logger"
	"Gamarr/shared/server"
)

type commandContext struct {
	once   sync.Once
	cfg    *config.Config
	err    error
	logger *slog.Logger
}

func (c *commandContext) config() (*config.Config, error) {
	c.once.Do(func() {
		c.cfg, c.err = config.Load()
		if c.err != nil {
			return
		}
		logger.Init(c.cfg.Environment, c.cfg.Debug)
		c.logger = logger.Default()
	})
	return c.cfg, c.err
}

func (c *commandContext) app(ctx context.Context) (*app, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, c.logger)
}

func newRootCommand() *cobra.Command {
	cc := &commandContext{}

	root := &cobra.Command{
		Use:           "gamarr",
		Short:         "Game release discovery and matching",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := cc.config()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(
		newServeCommand(cc),
		newJobCommand(cc, "check-feeds", "Poll every enabled feed once", handlers.JobFeeds),
		newJobCommand(cc, "check-scene", "Check the scene directory for wanted games once", handlers.JobScene),
		newJobCommand(cc, "check-releases", "Reconcile release dates with the catalog once", handlers.JobReleases),
		newSyncWishlistCommand(cc),
		newFeedsCommand(cc),
		newSearchCommand(cc),
		newUserCommand(cc),
	)
	return root
}

func newServeCommand(cc *commandContext) *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and background scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := cc.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			go a.drainTaskErrors(ctx)

			sched, err := a.newScheduler()
			if err != nil {
				return err
			}
			if !noScheduler {
				if err := sched.Start(ctx); err != nil {
					if !errors.Is(err, scheduler.ErrAlreadyLocked) {
						return err
					}
					a.logger.Warn("scheduler disabled, another instance holds the lock", "lock", a.cfg.SchedulerLockPath)
				}
			}

			router := handlers.NewRouter(handlers.Deps{
				Feeds:         a.store,
				FeedService:   a.feeds,
				Library:       a.store,
				Guard:         a.guard,
				Search:        a.search,
				Scene:         a.xrel,
				Downloads:     a.downloads,
				Wishlist:      a.wishlist,
				Jobs:          sched,
				Notifications: a.notify,
				Socket:        a.hub,
				Sessions:      middleware.NewSessionStore(a.cfg),
				Users:         a.store,
				Logger:        a.logger,
			})

			srv := server.CreateServer(server.DefaultConfig(":"+a.cfg.ServerPort), router)
			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server starting", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.logger.Info("shutting down server")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Serve the API without running background jobs")
	return cmd
}

// newJobCommand runs one scheduler job in the foreground.
func newJobCommand(cc *commandContext, use, short, job string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := cc.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			switch job {
			case handlers.JobFeeds:
				summary, err := a.feeds.CheckAll(ctx)
				if err != nil {
					return err
				}
				// let background matching finish before exiting
				a.queue.Wait()
				fmt.Fprintf(out, "Checked %d feeds: %d new items, %d failed, %d swept\n", summary.Sources, summary.NewItems, summary.Failed, summary.Swept)
			case handlers.JobScene:
				sent, err := a.scene.Check(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Sent %d scene notifications\n", sent)
			case handlers.JobReleases:
				summary, err := a.releases.Check(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Checked %d games: %d updated, %d released\n", summary.Checked, summary.Updated, summary.Released)
			}
			return nil
		},
	}
}

func newSyncWishlistCommand(cc *commandContext) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "sync-wishlist",
		Short: "Import Steam wishlists as wanted games",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := cc.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if userID == 0 {
				return a.wishlist.SyncAll(ctx)
			}
			res := a.wishlist.Sync(ctx, userID)
			if !res.Success {
				return fmt.Errorf("wishlist sync failed: %s", res.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d games, skipped %d\n", res.Added, res.Skipped)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Only sync this user id")
	return cmd
}

func newFeedsCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "feeds",
		Short: "List feed sources and their last check status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.config()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			sources, err := store.ListFeedSources(cmd.Context(), 0)
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No feeds configured")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderFeeds(sources, time.Now()))
			return nil
		},
	}
}

var feedColumns = []column{
	{title: "ID", right: true},
	{title: "Name"},
	{title: "Status"},
	{title: "Last Check", right: true},
	{title: "Error"},
}

func renderFeeds(sources []models.FeedSource, now time.Time) string {
	rows := make([]table.Row, 0, len(sources))
	for _, s := range sources {
		status := s.Status
		switch {
		case !s.Enabled:
			status = "disabled"
		case status == "":
			status = "never checked"
		}
		checked := "-"
		if s.LastCheckedAt != nil {
			checked = now.Sub(*s.LastCheckedAt).Truncate(time.Second).String() + " ago"
		}
		rows = append(rows, table.Row{s.ID, s.Name, status, checked, format.Preview(s.LastError, 60)})
	}
	return renderTable(feedColumns, rows)
}

var searchColumns = []column{
	{title: "Title"},
	{title: "Version"},
	{title: "Group"},
	{title: "Category"},
	{title: "Size", right: true},
	{title: "Seeders", right: true},
	{title: "Indexer"},
}

func newSearchCommand(cc *commandContext) *cobra.Command {
	var game bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the configured indexers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := cc.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			search := a.search.Search
			if game {
				search = a.search.SearchForGame
			}
			results, err := search(ctx, args[0])
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSearchResults(results))
			return nil
		},
	}
	cmd.Flags().BoolVar(&game, "game", false, "treat the query as a game title and keep only its releases")
	return cmd
}

func renderSearchResults(results []indexers.SearchResult) string {
	rows := make([]table.Row, 0, len(results))
	for _, r := range results {
		rows = append(rows, table.Row{
			r.Title, r.Release.Version, r.Release.Group, r.Category,
			format.Bytes(r.Size), r.Seeders, r.Indexer,
		})
	}
	return renderTable(searchColumns, rows)
}

func newUserCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <username>",
		Short: "Create a user and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.config()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.EnsureUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", id)
			return nil
		},
	})
	return cmd
}
