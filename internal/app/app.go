package app

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mesepith/voice-avatar-heygen/internal/eventlog"
	"github.com/mesepith/voice-avatar-heygen/internal/httpapi"
	"github.com/mesepith/voice-avatar-heygen/internal/store"
)

type App struct {
	cfg        Config
	logger     *log.Logger
	db         *pgxpool.Pool
	store      *store.Store
	eventLog   *eventlog.Logger
	httpClient *http.Client // Shared HTTP client with connection pooling for provider calls
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
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

	// Migrations are applied externally by the deploy job; no automatic
	// migration runner at startup.

	// Keeps TCP connections alive across repeated OpenAI and HeyGen calls.
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		store:      store.New(db),
		eventLog:   eventlog.New(db),
		httpClient: httpClient,
	}, nil
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		PublicBaseURL:     a.cfg.PublicBaseURL,
		DeepgramAPIKey:    a.cfg.DeepgramAPIKey,
		OpenAIAPIKey:      a.cfg.OpenAIAPIKey,
		HeyGenAPIKey:      a.cfg.HeyGenAPIKey,
		OpenAIModel:       a.cfg.OpenAIModel,
		AvatarID:          a.cfg.AvatarID,
		VoiceID:           a.cfg.VoiceID,
		STTEndpointingMs:  a.cfg.STTEndpointingMs,
		UtteranceFallback: time.Duration(a.cfg.UtteranceFallbackMs) * time.Millisecond,
		JWTSecret:         a.cfg.JWTSecret,
		RelayTokenTTL:     a.cfg.RelayTokenTTL,
		AllowedOrigins:    a.cfg.AllowedOrigins,
		HTTPClient:        a.httpClient,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.store, a.eventLog)
}

func (a *App) Close() error {
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
