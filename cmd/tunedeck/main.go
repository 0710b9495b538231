package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"tunedeck/internal/cache"
	"tunedeck/internal/catalog"
	"tunedeck/internal/config"
	"tunedeck/internal/database"
	"tunedeck/internal/library"
	"tunedeck/internal/metadata"
	"tunedeck/internal/metrics"
	"tunedeck/internal/notify"
	"tunedeck/internal/player"
	"tunedeck/internal/scanner"
	"tunedeck/internal/server"
	"tunedeck/internal/tunnel"

	"github.com/sirupsen/logrus"
)

// store is what the catalog and the health check need from persistence.
type store interface {
	catalog.Store
	server.Pinger
	io.Closer
}

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	flag.Parse()

	// Basic logger until the configured one exists
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}

	logger, logCloser, err := cfg.NewLogger()
	if err != nil {
		logrus.WithError(err).Fatal("Error configuring logging")
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := notify.NewFeed(cfg.Notices.Retain)
	notifier := notify.Multi{notify.NewLogSink(logger), feed}
	m := metrics.NewMetrics()

	db := openStore(cfg, notifier, logger)
	defer db.Close()

	cat := catalog.New(db, notifier, logger, catalog.WithMetrics(m))
	if err := cat.Init(ctx); err != nil {
		// The catalog already fell back to empty collections.
		logger.WithError(err).Warn("Library starts empty")
	}

	artwork := cache.NewArtworkCache()
	extractor := metadata.NewExtractor(cfg.Music.SupportedFormats, artwork, logger)

	provider, err := scanner.SelectProvider(cfg.Music.Provider, cfg.Music.LibraryPath, cfg.Music.Files, cfg.Music.SupportedFormats)
	if err != nil {
		logger.WithError(err).Fatal("Error selecting music provider")
	}
	if provider.Capability() == scanner.CapabilityDirectory {
		if _, err := os.Stat(cfg.Music.LibraryPath); os.IsNotExist(err) {
			logger.WithField("library_path", cfg.Music.LibraryPath).Warn("Music directory does not exist. Create it and add your music files, then rescan.")
		}
	}

	scn := scanner.New(provider, extractor, logger,
		scanner.WithMinSize(cfg.MinSizeBytes()),
		scanner.WithMinDuration(cfg.Music.MinDurationSeconds),
		scanner.WithWorkers(cfg.Music.Workers),
		scanner.WithMetrics(m),
	)

	lib := library.New(cat, scn, notifier, player.NewStateManager(), logger, library.WithMetrics(m))

	tun, err := tunnel.NewService(cfg.Tunnel, os.LookupEnv, notifier, logger)
	if err != nil {
		logger.WithError(err).Warn("Tunnel disabled")
	}

	musicServer := server.NewMusicServer(cfg, server.Deps{
		Library:   lib,
		Catalog:   cat,
		Extractor: extractor,
		Artwork:   artwork,
		Notices:   feed,
		Notifier:  notifier,
		Metrics:   m,
		Store:     db,
		Tunnel:    tun,
		Logger:    logger,
	})

	if cfg.Music.ScanOnStartup {
		go func() {
			summary, err := musicServer.ScanMusicLibrary(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.WithError(err).Warn("Startup scan failed")
				}
				return
			}
			if summary.Found == 0 {
				logger.WithField("supported_formats", cfg.Music.SupportedFormats).Warn("No supported audio files found")
			}
		}()
	} else {
		logger.Info("Skipping library scan (disabled in config)")
	}

	if err := tun.Start(ctx, cfg.GetAddress()); err != nil {
		logger.WithError(err).Warn("Could not open tunnel; serving locally only")
	}
	defer func() {
		if err := tun.Stop(); err != nil {
			logger.WithError(err).Debug("Tunnel close")
		}
	}()

	if err := musicServer.Start(ctx); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		os.Exit(1)
	}
	logger.Info("Goodbye")
}

// openStore opens the sqlite database, falling back to memory so the
// library stays usable for the session.
func openStore(cfg *config.Config, notifier notify.Sink, logger *logrus.Logger) store {
	if cfg.Storage.InMemory {
		logger.Info("Using in-memory storage; nothing will be saved")
		return database.NewMemory()
	}

	db, err := database.NewDatabase(cfg.Storage.Path, logger)
	if err != nil {
		logger.WithError(err).WithField("path", cfg.Storage.Path).Error("Error opening database")
		notifier.Notify(notify.Warning, "Library storage is unavailable; changes will not be saved")
		return database.NewMemory()
	}
	return db
}
