package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talentsim/backend/internal/config"
	"github.com/talentsim/backend/internal/handler"
	"github.com/talentsim/backend/internal/model/interview"
	"github.com/talentsim/backend/internal/model/persona"
	"github.com/talentsim/backend/internal/service/completion"
	"github.com/talentsim/backend/internal/service/results"
	"github.com/talentsim/backend/internal/service/scoring"
	sessionService "github.com/talentsim/backend/internal/service/session"
	"github.com/talentsim/backend/internal/store"
	"github.com/talentsim/backend/internal/timer"
	"github.com/talentsim/backend/internal/transcript"
	"github.com/talentsim/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	defer log.Sync()

	if envErr != nil {
		log.Warn("no .env file loaded, using system environment only", "error", envErr)
	}

	// Primary store: Postgres when configured, in-memory otherwise.
	var st store.Store
	if cfg.Database.Enabled() {
		pg, err := store.NewPostgres(cfg.Database.DSN, log)
		if err != nil {
			log.Fatal("failed to connect to postgres", "error", err)
		}
		st = pg
		log.Info("postgres store initialized")
	} else {
		st = store.NewMemory()
		log.Warn("POSTGRES_HOST not set, using in-memory store (data is lost on restart)")
	}

	// Transcript cache substrate: Redis when configured.
	var kv transcript.KV
	if cfg.Redis.Enabled() {
		redisKV, err := transcript.NewRedisKV(cfg.Redis.Addr, log)
		if err != nil {
			log.Fatal("failed to connect to redis", "error", err)
		}
		defer redisKV.Close()
		kv = redisKV
		log.Info("redis transcript cache initialized", "addr", cfg.Redis.Addr)
	} else {
		kv = transcript.NewMemoryKV()
		log.Warn("REDIS_ADDR not set, using in-memory transcript cache")
	}

	transcripts := transcript.NewCache(st, kv, interview.DefaultConversationSlots, log)

	// Scoring: LLM grader when Ark credentials are present, pure
	// heuristics otherwise.
	scoringCfg := scoring.Config{Enabled: cfg.AI.Enabled(), TurnLimit: cfg.AI.TurnLimit}
	var scorer scoring.Scorer
	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Warn("failed to initialize ark model, falling back to heuristic scoring", "error", err)
			scoringCfg.Enabled = false
			chatModel = nil
		}
		scorer, err = scoring.NewService(ctx, chatModel, scoringCfg, log)
		if err != nil {
			log.Fatal("failed to initialize scoring service", "error", err)
		}
	} else {
		log.Info("ark credentials not configured, scoring uses heuristics only")
		scorer, err = scoring.NewService(ctx, nil, scoringCfg, log)
		if err != nil {
			log.Fatal("failed to initialize scoring service", "error", err)
		}
	}

	resultStore := results.New(st, log)
	authority := timer.NewAuthority(st, log, nil)
	coordinator := completion.New(st, transcripts, scorer, resultStore, log)
	authority.SetExpiryHandler(coordinator)

	personaStore := persona.NewMemoryStore(persona.Seed())

	sessions := sessionService.New(
		st,
		authority,
		coordinator,
		transcripts,
		resultStore,
		personaStore,
		cfg.Timer.SessionDurationSeconds,
		log,
	)

	router := handler.NewRouter(personaStore, sessions, authority, cfg.Timer.Clock, log)

	startServer(ctx, cfg.Server, router, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *logger.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("talentsim backend listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatal("server error", "error", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
