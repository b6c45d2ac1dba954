package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/fugitive/assets"
	"github.com/robalobadob/fugitive/internal/atlas"
	"github.com/robalobadob/fugitive/internal/database"
	"github.com/robalobadob/fugitive/internal/game"
	"github.com/robalobadob/fugitive/internal/httpserver"
	"github.com/robalobadob/fugitive/internal/remote"
	"github.com/robalobadob/fugitive/internal/store"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

// run wires the server and blocks until ctx is cancelled. Every resource it
// opens is released before it returns.
func run(ctx context.Context) error {
	db, err := database.Open(getEnv("DB_PATH", "./data/fugitive.db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(db, assets.Migrations()); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	sessions := store.NewMemoryStore()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		sessions, err = store.NewRedisStore(pingCtx, addr, os.Getenv("REDIS_PASSWORD"), 0, store.DefaultTTL)
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		log.Info().Str("addr", addr).Msg("sessions stored in redis")
	}

	cfg := httpserver.Config{
		ClockInterval: envDuration("CLOCK_INTERVAL", game.DefaultClockInterval),
		IdleTTL:       envDuration("SESSION_IDLE_TTL", httpserver.DefaultIdleTTL),
	}
	if url := os.Getenv("REMOTE_URL"); url != "" {
		cfg.Remote = remote.New(url, remoteTimeout())
		log.Info().Str("url", url).Msg("using remote atlas")
	} else {
		a := atlas.New(db)
		cfg.Remote, cfg.Atlas = a, a
	}

	srv := httpserver.New(sessions, db, cfg)
	port := getEnv("PORT", "5175")
	log.Info().Str("port", port).Msg("starting fugitive server")
	return srv.Run(ctx, ":"+port)
}

// envDuration parses k as a time.Duration, falling back to def.
func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring bad duration")
		return def
	}
	return d
}

// remoteTimeout reads REMOTE_TIMEOUT_MS, falling back to remote.DefaultTimeout.
func remoteTimeout() time.Duration {
	if n, err := strconv.Atoi(os.Getenv("REMOTE_TIMEOUT_MS")); err == nil && n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return remote.DefaultTimeout
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
