package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audiotour/internal/api"
	"audiotour/pkg/config"
	"audiotour/pkg/db"
	"audiotour/pkg/db/maintenance"
	"audiotour/pkg/location"
	"audiotour/pkg/logging"
	"audiotour/pkg/metrics"
	"audiotour/pkg/playback"
	"audiotour/pkg/probe"
	"audiotour/pkg/session"
	"audiotour/pkg/store"
	"audiotour/pkg/tour"
	"audiotour/pkg/version"
)

const defaultConfigPath = "configs/audiotour.yaml"

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
)

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Audiotour Started", "version", version.Version)

	content, err := tour.LoadFile(appCfg.Tour.Path)
	if err != nil {
		return fmt.Errorf("failed to load tour: %w", err)
	}
	seq, err := tour.Build(content)
	if err != nil {
		var incomplete *tour.IncompleteContentError
		if errors.As(err, &incomplete) {
			slog.Error("Tour content incomplete", "missing", incomplete.Missing)
		}
		return fmt.Errorf("failed to build tour: %w", err)
	}

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, appCfg.Tour.Path, seq.ID(), appCfg.DB.EventRetention.Std()); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	// Startup Probes
	probes := []probe.Probe{
		probe.Database(dbConn),
		probe.Media(appCfg.Audio.MediaRoot, probe.MediaRefs(seq, appCfg.Audio.ApproachingClip, appCfg.Audio.ArrivedClip)),
	}
	if err := probe.AnalyzeResults(probe.Run(ctx, probes)); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	// Runtime overrides from the state store apply from here on
	cfgProv := config.NewProvider(appCfg, st)
	effCfg := cfgProv.Effective(ctx)

	var collector *metrics.Collector
	var observer playback.Observer
	if appCfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		observer = collector
	}

	src, err := initLocation(effCfg, seq, collector)
	if err != nil {
		return err
	}

	sess, err := session.Open(ctx, session.Options{
		Config:   effCfg,
		Content:  content,
		Store:    st,
		Source:   src,
		Observer: observer,
	})
	if err != nil {
		return fmt.Errorf("failed to open tour: %w", err)
	}
	defer sess.Close()

	handlers := buildHandlers(appCfg, sess, collector)
	handlers.Config = api.NewConfigHandler(st, cfgProv)
	srv := api.NewServer(appCfg.Server.Address, handlers, cancel)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	return runServerLifecycle(ctx, srv, quit)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

// initLocation creates the configured source. Preview sessions take no location.
func initLocation(appCfg *config.Config, seq *tour.Sequence, collector *metrics.Collector) (location.Source, error) {
	if appCfg.Tour.Preview {
		return nil, nil
	}
	src, err := location.NewSource(appCfg.Location, session.Route(seq))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize location source: %w", err)
	}
	slog.Info("Location Source", "provider", appCfg.Location.Provider)
	if ns, ok := src.(*location.NATSSource); ok && collector != nil {
		ns.ConnectedChanged = collector.SetNATSConnected
	}
	return src, nil
}

func buildHandlers(appCfg *config.Config, sess *session.Session, collector *metrics.Collector) api.Handlers {
	h := api.Handlers{
		Tour:     api.NewTourHandler(sess.Sequence()),
		Playback: api.NewPlaybackHandler(sess.Machine()),
		Trip:     api.NewTripHandler(sess),
		Stats:    api.NewStatsHandler(sess.Machine(), sess.StartedAt()),
		WebRoot:  appCfg.Server.WebRoot,
	}
	if m, ok := sess.Manual(); ok {
		h.Location = api.NewLocationHandler(m)
	}

	var onVolume func(float64)
	if collector != nil {
		h.Metrics = collector.Handler()
		onVolume = collector.SetVolume
	}
	if deck := sess.Deck(); deck != nil {
		h.Audio = api.NewAudioHandler(deck, sess.Machine().Snapshot, onVolume)
		if onVolume != nil {
			onVolume(deck.Volume())
		}
	}
	return h
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
