package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/joshp123/godaikin/internal/auth"
	"github.com/joshp123/godaikin/internal/bridge"
	"github.com/joshp123/godaikin/internal/cloud"
	"github.com/joshp123/godaikin/internal/config"
	"github.com/joshp123/godaikin/internal/coordinator"
	"github.com/joshp123/godaikin/internal/energy"
	"github.com/joshp123/godaikin/internal/metrics"
	"github.com/joshp123/godaikin/internal/moldproof"
	"github.com/joshp123/godaikin/internal/server"
	"github.com/joshp123/godaikin/internal/store"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		logger.Fatal().Err(err).Msg("creating state directory")
	}

	var authMirror, moldMirror store.Store
	if cfg.BlobConfigured() {
		if authMirror, err = blobMirror(cfg, "godaikin/auth_state.json"); err != nil {
			logger.Fatal().Err(err).Msg("configuring auth state mirror")
		}
		if moldMirror, err = blobMirror(cfg, "godaikin/mold_proof.json"); err != nil {
			logger.Fatal().Err(err).Msg("configuring mold-proof mirror")
		}
	}

	manager, err := auth.NewManager(ctx, auth.Config{
		Region:    cfg.Region,
		ClientID:  cfg.ClientID,
		Username:  cfg.Username,
		Password:  cfg.Password,
		StatePath: cfg.AuthStatePath(),
		Mirror:    authMirror,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuring credentials")
	}

	client := cloud.NewClient(cfg.BaseURL, cfg.Username, manager, logger)
	meter := energy.NewMeter()
	coord := coordinator.New(client, meter, cfg.RefreshInterval, logger)

	moldFile, err := store.NewFileStore(cfg.MoldProofSettingsPath())
	if err != nil {
		logger.Fatal().Err(err).Msg("configuring mold-proof store")
	}
	var moldStore store.Store = moldFile
	if moldMirror != nil {
		moldStore = store.Mirror(moldFile, moldMirror, logger)
	}
	scheduler := moldproof.New(client, coord, moldStore, moldproof.WallClock(), cfg.MoldProofDuration(), logger)
	if err := scheduler.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("loading mold-proof settings")
	}

	var br *bridge.Bridge
	if cfg.MQTTURL != "" {
		conn, err := bridge.Dial(bridge.ConnOptions{
			URL:               cfg.MQTTURL,
			Username:          cfg.MQTTUsername,
			Password:          cfg.MQTTPassword,
			AvailabilityTopic: bridge.AvailabilityTopic(cfg.MQTTPrefix),
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connecting to mqtt broker")
		}
		br = bridge.New(conn, client, coord, scheduler, meter, bridge.Config{
			Prefix:          cfg.MQTTPrefix,
			DiscoveryPrefix: cfg.DiscoveryPrefix,
		}, logger)
		coord.OnUpdate(br.HandleUpdate)
	} else {
		logger.Info().Msg("no mqtt broker configured, bridge disabled")
	}

	registry := prometheus.NewRegistry()
	for _, group := range [][]prometheus.Collector{
		auth.MetricsCollectors(),
		coordinator.MetricsCollectors(),
		moldproof.MetricsCollectors(),
		bridge.MetricsCollectors(),
	} {
		for _, collector := range group {
			registry.MustRegister(collector)
		}
	}
	registry.MustRegister(metrics.NewFleetCollector(coord, meter, scheduler))
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "godaikin_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/health", server.HealthHandler)
	httpMux.Handle("/metrics", server.MetricsHandler(registry))
	httpMux.Handle("/diagnostics", server.DiagnosticsHandler(cfg.Redacted(), coord, meter, scheduler, logger))

	httpServer := server.NewHTTPServer(cfg.HTTPAddr, httpMux)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http serve")
		}
	}()

	logger.Info().
		Str("addr", cfg.HTTPAddr).
		Dur("interval", cfg.RefreshInterval).
		Msg("godaikin started")

	runErr := coord.Run(ctx)
	stop()

	if br != nil {
		br.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	cancel()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Fatal().Err(runErr).Msg("sync stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)

	console := cfg.LogFormat == "console"
	if cfg.LogFormat == "auto" {
		console = isTerminal(os.Stderr)
	}

	var out io.Writer = os.Stderr
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func blobMirror(cfg config.Config, key string) (store.Store, error) {
	return store.NewS3Store(store.S3Options{
		Endpoint:      cfg.BlobEndpoint,
		Bucket:        cfg.BlobBucket,
		Key:           key,
		AccessKeyFile: cfg.BlobAccessKeyFile,
		SecretKeyFile: cfg.BlobSecretKeyFile,
	})
}
