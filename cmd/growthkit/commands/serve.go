package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TimurManjosov/growthkit/internal/api"
	"github.com/TimurManjosov/growthkit/internal/config"
	"github.com/TimurManjosov/growthkit/internal/db"
	"github.com/TimurManjosov/growthkit/internal/telemetry"
	"github.com/TimurManjosov/growthkit/repository"
	"github.com/TimurManjosov/growthkit/stickybucket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the evaluation sidecar",
	Long: `Run a long-lived HTTP sidecar that keeps the definitions payload fresh
and evaluates features server-side.

Configuration comes from environment variables (or a .env file); see
config package for the full list. Example:

  PAYLOAD_URL=https://cdn.example.com CLIENT_KEY=sdk-abc123 growthkit serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runServe(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cfg *config.Config) error {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.AppEnv == "dev" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	telemetry.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var source repository.Source
	if cfg.PayloadFile != "" {
		source = &repository.FileSource{Path: cfg.PayloadFile}
	} else {
		source = repository.NewHTTPSource(cfg.PayloadURL, cfg.ClientKey)
	}
	repo := repository.New(repository.Options{
		Source: source,
		TTL:    cfg.RefreshTTL,
		Logger: &log,
	})
	if _, err := repo.Refresh(ctx, true); err != nil {
		return err
	}
	log.Info().Str("etag", repo.ETag()).
		Int("features", len(repo.CurrentPayload().Features)).
		Msg("definitions loaded")

	if fs, ok := source.(*repository.FileSource); ok {
		go func() {
			if err := fs.Watch(ctx, repo); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("file watch stopped")
			}
		}()
	}
	if cfg.SSE {
		stream := &repository.SSEStream{URL: cfg.PayloadURL + "/sub/" + cfg.ClientKey}
		go func() {
			if err := stream.Run(ctx, repo); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("event stream stopped")
			}
		}()
	}

	sticky, cleanup, err := newStickyService(ctx, cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	srvAPI := api.NewServer(api.Options{
		Repository:           repo,
		StickyBucketService:  sticky,
		DefaultHashAttribute: cfg.HashAttribute,
		IdentifierAttributes: cfg.IdentifierAttributes,
		Logger:               log,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srvAPI.Router(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShut()
	_ = srv.Shutdown(ctxShut)
	_ = metricsSrv.Shutdown(ctxShut)
	log.Info().Msg("stopped")
	return nil
}

// newStickyService builds the configured sticky-bucket backend. The cleanup
// function releases backend resources and may be nil.
func newStickyService(ctx context.Context, cfg *config.Config) (stickybucket.Service, func(), error) {
	switch cfg.StickyStore {
	case "none":
		return nil, nil, nil
	case "memory":
		return stickybucket.NewMemoryService(), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return stickybucket.NewRedisService(client, ""), func() { _ = client.Close() }, nil
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		svc := stickybucket.NewPostgresService(pool)
		if err := svc.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return svc, pool.Close, nil
	default:
		return nil, nil, config.ValidationError{Field: "STICKY_STORE", Message: "unknown sticky store"}
	}
}
