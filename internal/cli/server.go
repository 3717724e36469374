package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"battle-room-service/internal/app"
	"battle-room-service/internal/config"
	"battle-room-service/internal/infra/memory"
	pginfra "battle-room-service/internal/infra/postgres"
	redisinfra "battle-room-service/internal/infra/redis"
	transport "battle-room-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the battle room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	service := app.NewRoomService(deps.store, deps.presence, deps.questions,
		app.WithLogger(logger.Named("rooms")),
		app.WithSettings(settingsFrom(cfg)),
		app.WithResultRecorder(deps.results),
	)
	heartbeat := config.TTLDuration(cfg.Presence.Heartbeat, 10*time.Second)
	wsHandler := transport.NewWSHandler(service, logger.Named("ws"), heartbeat)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, wsHandler, logger.Named("http")),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting battle room service", zap.String("addr", server.Addr), zap.String("store", deps.kind))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweepEvery := config.TTLDuration(cfg.Retention.Sweep, time.Minute)
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := service.Sweep(gctx); err != nil {
					logger.Warn("sweep failed", zap.Error(err))
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type dependencies struct {
	kind      string
	store     app.RoomStore
	presence  app.PresenceTracker
	questions app.QuestionSource
	results   app.ResultRecorder
}

// buildDependencies picks Redis for shared room state when configured and
// Postgres for questions and results when configured; memory fills the gaps.
func buildDependencies(ctx context.Context, cfg config.Config, logger *zap.Logger) (dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	retention := app.Retention{
		Finished: config.TTLDuration(cfg.Retention.Finished, 10*time.Minute),
		Idle:     config.TTLDuration(cfg.Retention.Idle, time.Hour),
	}
	presenceTTL := config.TTLDuration(cfg.Presence.TTL, 30*time.Second)
	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	var results app.ResultRecorder = memory.NewResultArchive()
	if cfg.Postgres.URL != "" {
		db := openBun(cfg.Postgres.URL)
		closers = append(closers, func() { _ = db.Close() })
		if err := migrateDB(ctx, db, logger); err != nil {
			cleanup()
			return dependencies{}, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return dependencies{}, nil, err
		}
		closers = append(closers, pool.Close)
		loader = pginfra.NewQuestionLoader(pool)
		results = pginfra.NewResultArchive(db)
	}

	deps := dependencies{results: results}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			cleanup()
			return dependencies{}, nil, err
		}
		deps.kind = "redis"
		deps.store = redisinfra.NewRoomStore(client, retention, logger.Named("store"))
		deps.presence = redisinfra.NewPresence(client, presenceTTL)
		deps.questions = redisinfra.NewQuestionRepository(client, loader, questionTTL)
	} else {
		deps.kind = "memory"
		deps.store = memory.NewRoomStore(retention)
		deps.presence = memory.NewPresence(presenceTTL)
		deps.questions = memory.NewQuestionRepository(loader, questionTTL)
	}
	return deps, cleanup, nil
}

func settingsFrom(cfg config.Config) app.Settings {
	s := app.DefaultSettings()
	if cfg.Battle.QuestionCount > 0 {
		s.QuestionCount = cfg.Battle.QuestionCount
	}
	if cfg.Battle.CodeAttempts > 0 {
		s.CodeAttempts = cfg.Battle.CodeAttempts
	}
	s.TimeLimit = config.TTLDuration(cfg.Battle.TimeLimit, s.TimeLimit)
	s.AutoStartDelay = config.TTLDuration(cfg.Battle.AutoStartDelay, s.AutoStartDelay)
	s.MatchmakingTimeout = config.TTLDuration(cfg.Battle.MatchmakingTimeout, s.MatchmakingTimeout)
	s.DefaultScope = cfg.Questions.Scope
	return s
}
