package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/timeline-comb/app/api"
	"github.com/lysyi3m/timeline-comb/app/authors"
	"github.com/lysyi3m/timeline-comb/app/browser"
	"github.com/lysyi3m/timeline-comb/app/cfg"
	"github.com/lysyi3m/timeline-comb/app/collector"
	"github.com/lysyi3m/timeline-comb/app/database"
	"github.com/lysyi3m/timeline-comb/app/feed"
	"github.com/lysyi3m/timeline-comb/app/metrics"
	"github.com/lysyi3m/timeline-comb/app/pace"
	"github.com/lysyi3m/timeline-comb/app/session"
	"github.com/lysyi3m/timeline-comb/app/tasks"
	"github.com/lysyi3m/timeline-comb/app/titles"
)

func main() {
	os.Exit(run())
}

func run() int {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if appCfg == nil {
		// help was shown
		return 0
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Timeline Comb", "version", appCfg.Version, "serve", appCfg.Serve)

	authorCache := authors.NewCache(appCfg.AuthorsDir, authors.Defaults{
		MaxPosts:          appCfg.MaxPosts,
		MaxScrollAttempts: appCfg.MaxScrollAttempts,
	})
	if err := authorCache.Run(); err != nil {
		slog.Error("Failed to load author settings", "dir", appCfg.AuthorsDir, "error", err)
		return 1
	}
	slog.Info("Author settings loaded", "count", authorCache.GetAuthorCount())

	var history database.HistoryRepository
	if appCfg.HistoryDB != "" {
		db, err := database.Open(appCfg.HistoryDB)
		if err != nil {
			slog.Error("Failed to open history database", "path", appCfg.HistoryDB, "error", err)
			return 1
		}
		defer db.Close()
		history = database.NewHistoryRepository(db)
	}

	store := feed.NewFileStore(appCfg.OutputDir, feed.NewGenerator(appCfg.BaseUrl, appCfg.Version))
	runMetrics := metrics.New()
	runner := newRunner(appCfg, store, history).WithMetrics(runMetrics)
	source := func() ([]authors.Author, error) {
		return authorCache.Resolve(appCfg.Authors)
	}

	if appCfg.Serve {
		return serve(appCfg, runner, source, store, authorCache, history, runMetrics)
	}
	return harvestOnce(runner, source)
}

func newRunner(appCfg *cfg.Cfg, store *feed.FileStore, history database.HistoryRepository) *tasks.Runner {
	pacer := pace.NewRandom()

	// a nil client must stay a nil interface
	var titler titles.Titler
	if appCfg.TitlesEnabled() {
		titler = titles.NewClient(appCfg.TitleAPIURL, appCfg.TitleAPIKey, appCfg.TitleModel, appCfg.TitleTimeout)
		slog.Info("Title generation enabled", "model", appCfg.TitleModel)
	}

	auth := session.NewAuthenticator(
		session.NewStore(appCfg.SessionFile),
		pacer,
		appCfg.SiteURL,
		session.Credentials{Username: appCfg.Username, Password: appCfg.Password},
		appCfg.LoginTimeout,
	)

	launch := func(context.Context) (browser.Page, error) {
		chrome, err := browser.Launch(browser.ChromeOptions{
			ExecPath:  appCfg.ChromeBin,
			Headless:  !appCfg.ShowBrowser,
			UserAgent: appCfg.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		return chrome, nil
	}

	return tasks.NewRunner(launch, auth, pacer,
		collector.NewExtractor(appCfg.SiteURL, nil),
		feed.NewMerger(store, titler, appCfg.SiteURL),
		store, history,
		tasks.RunnerOptions{
			SiteURL:        appCfg.SiteURL,
			EmbedURL:       appCfg.EmbedURL,
			ElementTimeout: appCfg.ElementTimeout,
			CooldownMin:    appCfg.CooldownMin,
			CooldownMax:    appCfg.CooldownMax,
		})
}

func harvestOnce(runner *tasks.Runner, source tasks.AuthorSource) int {
	list, err := source()
	if err != nil {
		slog.Error("Failed to resolve authors", "error", err)
		return 1
	}
	if len(list) == 0 {
		slog.Error("No authors to harvest, pass --author or add files to the authors directory")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Run(ctx, list)
	if err != nil {
		slog.Error("Harvest aborted", "run_id", summary.ID, "error", err)
		return 1
	}

	for _, result := range summary.Authors {
		if result.State == tasks.StateFailed {
			slog.Warn("Author not harvested", "author", result.Handle, "state", result.FailedIn, "error", result.Error)
		}
	}
	return 0
}

func serve(appCfg *cfg.Cfg, runner *tasks.Runner, source tasks.AuthorSource, store *feed.FileStore,
	authorCache *authors.Cache, history database.HistoryRepository, runMetrics *metrics.Metrics) int {
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if _, err := os.Stat(appCfg.AuthorsDir); err == nil {
		if err := authorCache.Watch(watchCtx); err != nil {
			slog.Warn("Author settings will not be reloaded", "error", err)
		}
	}

	scheduler := tasks.NewScheduler(runner.Run, source, appCfg.HarvestInterval)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(store, authorCache, history, scheduler, appCfg.Version).
		WithMetrics(runMetrics.Handler())
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig)
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
		exitCode = 1
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return exitCode
}
