package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"blogpilot/internal/auth"
	"blogpilot/internal/bootstrap"
	"blogpilot/internal/http/handlers"
	"blogpilot/internal/http/httpapi"
	"blogpilot/internal/infra"
	"blogpilot/internal/infra/geoip"
	"blogpilot/internal/ratelimit"
	"blogpilot/internal/storage"
	"blogpilot/internal/upload"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to release resources")
		}
	}()

	verifier, err := newVerifier(ctx, rt)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init auth")
	}

	objects, staticDir, err := newObjectStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init storage")
	}

	userLimiter, publicLimiter := newLimiters(ctx, rt, logger)

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	if resolver != nil {
		rt.OnClose(resolver.Close)
	}

	app := handlers.NewApp(handlers.Deps{
		Store:     rt.Store,
		Ledger:    rt.Ledger,
		Posts:     rt.Posts,
		WordPress: rt.WordPress,
		Threads:   rt.Threads,
		APIKeys:   rt.APIKeys,
		Uploads:   upload.NewService(objects, logger.With().Str("component", "upload").Logger()),
		Country:   geoip.Lookup(resolver),
		Logger:    logger,
	})

	router := httpapi.NewRouter(app, httpapi.Options{
		Verifier:       verifier,
		UserLimiter:    userLimiter,
		PublicLimiter:  publicLimiter,
		Registry:       rt.Registry,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		StaticDir:      staticDir,
		Logger:         logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("store", cfg.StoreBackend).Str("auth", cfg.AuthMode).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newVerifier(ctx context.Context, rt *bootstrap.Runtime) (auth.Verifier, error) {
	if rt.Config.AuthMode == infra.AuthJWT {
		return auth.NewJWTVerifier(rt.Config.JWTSecret)
	}
	return auth.NewFirebaseVerifier(ctx, rt.Firebase)
}

// newObjectStore prefers S3 and falls back to the local disk, which the
// router then serves under /static.
func newObjectStore(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (storage.ObjectStore, string, error) {
	if cfg.S3Enabled() {
		s3, err := storage.NewS3Store(storage.S3Config{
			Endpoint:      cfg.S3Endpoint,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Region:        cfg.S3Region,
			UseSSL:        cfg.S3UseSSL,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, "", err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s3.Ping(pingCtx); err != nil {
			logger.Warn().Err(err).Str("bucket", cfg.S3Bucket).Msg("s3 bucket not reachable yet")
		}
		return s3, "", nil
	}
	fs, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, "", err
	}
	return fs, fs.BasePath(), nil
}

// newLimiters shares counters through Redis when configured and falls back
// to per-process token buckets.
func newLimiters(ctx context.Context, rt *bootstrap.Runtime, logger zerolog.Logger) (ratelimit.Limiter, ratelimit.Limiter) {
	cfg := rt.Config
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err == nil {
			rt.OnClose(client.Close)
			return ratelimit.NewRedisLimiter(client, cfg.RateLimitPerMin, time.Minute, "rl:user:"),
				ratelimit.NewRedisLimiter(client, cfg.PublicRatePerMin, time.Minute, "rl:public:")
		}
		logger.Warn().Err(err).Msg("redis unavailable, using in-process rate limits")
	}
	return ratelimit.NewLocalLimiter(cfg.RateLimitPerMin), ratelimit.NewLocalLimiter(cfg.PublicRatePerMin)
}
