package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lukasbauer/speechio/internal/cache"
	"github.com/lukasbauer/speechio/internal/eventlog"
	"github.com/lukasbauer/speechio/internal/httpapi"
	"github.com/lukasbauer/speechio/internal/store"
)

type App struct {
	cfg      Config
	logger   *log.Logger
	db       *pgxpool.Pool
	redis    *redis.Client
	store    *store.Store
	eventLog *eventlog.Logger
	cache    cache.Store
}

// New wires the shared infrastructure. The database and Redis are both
// optional: without DATABASE_URL usage is not persisted, and without
// REDIS_ADDR synthesis caching falls back to an in-process map.
func New(cfg Config, logger *log.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
	}

	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		a.store = store.New(db)
		a.eventLog = eventlog.New(db)
	} else {
		logger.Printf("app: DATABASE_URL not set, usage persistence disabled")
		a.eventLog = eventlog.New(nil)
	}

	// Migrations are applied externally by the CI deploy job (docker exec psql).
	// No automatic migration runner at startup.

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.cache = cache.NewRedis(a.redis)
	} else {
		a.cache = cache.NewMemory()
	}

	return a, nil
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		PublicBaseURL:     a.cfg.PublicBaseURL,
		ElevenLabsAPIKey:  a.cfg.ElevenLabsAPIKey,
		AzureSpeechKey:    a.cfg.AzureSpeechKey,
		AzureSpeechRegion: a.cfg.AzureSpeechRegion,

		SynthVoiceID:    a.cfg.SynthVoiceID,
		SynthModelID:    a.cfg.SynthModelID,
		SynthFormat:     a.cfg.SynthFormat,
		SynthStability:  a.cfg.SynthStability,
		SynthSimilarity: a.cfg.SynthSimilarity,

		TranscribeLanguage: a.cfg.TranscribeLanguage,
		TranscribeEncoding: a.cfg.TranscribeEncoding,
		SampleRate:         a.cfg.SampleRate,

		JWTSecret: a.cfg.JWTSecret,
		JWTExpiry: a.cfg.JWTExpiry,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.store, a.eventLog, a.cache)
}

func (a *App) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
