// main is the entry point of sampquery.
// Without arguments it runs the tracker service; with host arguments it
// queries those servers once and prints the result.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/sampquery/internal/config"
	"github.com/woozymasta/sampquery/internal/fake"
	"github.com/woozymasta/sampquery/internal/game"
	"github.com/woozymasta/sampquery/internal/geoip"
	"github.com/woozymasta/sampquery/internal/logger"
	"github.com/woozymasta/sampquery/internal/maintenance"
	"github.com/woozymasta/sampquery/internal/metrics"
	"github.com/woozymasta/sampquery/internal/server"
	"github.com/woozymasta/sampquery/internal/storage"
	"github.com/woozymasta/sampquery/internal/vars"
	"github.com/woozymasta/sampquery/internal/watchlist"
)

func main() {
	cfg := config.Parse()

	logCloser := logger.Setup(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var code int
	switch cfg.Mode() {
	case config.ModeQuery:
		code = runQuery(ctx, cfg, os.Stdout)
	case config.ModeFakeServer:
		code = runFakeServer(ctx, cfg)
	default:
		code = runService(ctx, cfg)
	}

	stop()
	_ = logCloser.Close()
	os.Exit(code)
}

// runFakeServer answers SA-MP queries with the default scenario until ctx is done.
func runFakeServer(ctx context.Context, cfg *config.Config) int {
	srv, err := fake.Listen(cfg.FakeServer, fake.DefaultScenario())
	if err != nil {
		log.Error().Err(err).Msg("Failed to start fake server")
		return 1
	}
	srv.Start()
	log.Info().Str("address", srv.Addr().String()).Msg("Fake SA-MP server listening")

	<-ctx.Done()

	if err := srv.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing fake server")
	}

	return 0
}

func runService(ctx context.Context, cfg *config.Config) int {
	log.Info().Str("version", vars.Version).Msg("Starting sampquery service...")

	// GeoIP Update
	log.Info().Msg("Checking GeoIP database...")
	if err := geoip.EnsureDB(ctx, cfg.GeoIP.Path, cfg.GeoIP.URL, cfg.GeoIP.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to download GeoIP database")
	}

	var countries server.CountryResolver
	geoProvider, err := geoip.Open(cfg.GeoIP.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
	} else {
		countries = geoProvider
		defer func() {
			if err := geoProvider.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing GeoIP provider")
			}
		}()
	}

	// Database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize database")
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	client, err := game.NewSAMPClient(cfg.Query, metrics.ObserveExchange)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create query client")
		return 1
	}
	querier := game.New(client, cfg.A2S)

	// data generation or database maintenance
	if cfg.Storage.GenerateCount > 0 {
		n := fake.GenerateData(store, cfg.Storage.GenerateCount)
		log.Info().Int("generated", n).Msg("Fake data generated")
		return 0
	} else if maintenance.Run(ctx, cfg, store, querier) {
		return 0
	}

	metrics.Register()

	// Init server
	srv := server.New(store, countries, querier, client, cfg)

	// Background queue
	srv.StartWorkers()

	if cfg.Watchlist != "" {
		enqueueWatchlist(ctx, cfg.Watchlist, querier, srv)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv.Run(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful Shutdown
	code := 0
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		log.Error().Err(err).Msg("Server failed")
		code = 1
	}

	log.Info().Msg("Shutting down server...")

	// Shut down HTTP
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop workers (wait queue done)
	srv.StopWorkers()

	log.Info().Msg("Server exited")

	return code
}

// enqueueWatchlist resolves the watchlist entries and queues them for their first query.
func enqueueWatchlist(ctx context.Context, path string, querier *game.Querier, srv *server.Server) {
	entries, err := watchlist.Load(path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load watchlist")
		return
	}

	queued := 0
	for _, e := range entries {
		node, err := querier.Resolve(ctx, e)
		if err != nil {
			log.Warn().Err(err).Str("host", e.Host).Msg("Skipping watchlist entry")
			continue
		}
		if !srv.Enqueue(node, "watchlist") {
			log.Warn().Str("host", e.Host).Msg("Queue full, watchlist entry dropped")
			continue
		}
		queued++
	}

	log.Info().Int("queued", queued).Int("total", len(entries)).Msg("Watchlist loaded")
}
