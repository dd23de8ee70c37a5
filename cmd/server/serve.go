package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalith-99/huddle/internal/api"
	"github.com/lalith-99/huddle/internal/auth"
	"github.com/lalith-99/huddle/internal/blob"
	"github.com/lalith-99/huddle/internal/channels"
	"github.com/lalith-99/huddle/internal/config"
	"github.com/lalith-99/huddle/internal/db/migrations"
	"github.com/lalith-99/huddle/internal/messages"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/repository/memory"
	"github.com/lalith-99/huddle/internal/repository/postgres"
	"github.com/lalith-99/huddle/internal/transfer"
)

// stores is the document store the services run on.
type stores struct {
	accounts repository.AccountRepository
	users    repository.UserRepository
	channels repository.ChannelRepository
	messages repository.MessageRepository
	health   func(context.Context) error
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger, autoMigrate bool) (*stores, error) {
	if cfg.StoreBackend == "memory" {
		logger.Warn("using the in-memory store; nothing survives a restart")
		return &stores{
			accounts: memory.NewAccountStore(nil),
			users:    memory.NewUserStore(nil),
			channels: memory.NewChannelStore(nil),
			messages: memory.NewMessageStore(nil),
			close:    func() {},
		}, nil
	}

	database, err := openPostgres(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sqlDB := migrations.OpenDB(database.Pool())
	if autoMigrate {
		if err := migrations.MigrateUp(sqlDB); err != nil {
			database.Close()
			return nil, fmt.Errorf("migrate up: %w", err)
		}
	}
	status, err := migrations.CheckStatus(sqlDB)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("check schema: %w", err)
	}
	if !status.UpToDate() {
		database.Close()
		return nil, fmt.Errorf("database schema is %s; run `huddle migrate up`", status)
	}
	logger.Info("database schema checked", zap.Uint("version", status.Current))

	pool := database.Pool()
	return &stores{
		accounts: postgres.NewAccountStore(pool),
		users:    postgres.NewUserStore(pool),
		channels: postgres.NewChannelStore(pool),
		messages: postgres.NewMessageStore(pool),
		health:   database.Health,
		close:    database.Close,
	}, nil
}

// connectRedis returns nil when no Redis URL is configured. Redis backs the
// realtime bus (when selected), token revocation and the send rate limiter.
func connectRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		if cfg.RealtimeBackend == realtime.BackendRedis {
			return nil, errors.New("REDIS_URL is required for the redis realtime backend")
		}
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	logger.Info("redis connection established", zap.String("addr", opts.Addr))
	return client, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, autoMigrate bool) error {
	st, err := openStores(ctx, cfg, logger, autoMigrate)
	if err != nil {
		return err
	}
	defer st.close()

	redisClient, err := connectRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	prefix := "huddle:" + cfg.AppID + ":"
	bus, err := realtime.New(realtime.Options{
		Backend: cfg.RealtimeBackend,
		Prefix:  prefix,
		Redis:   redisClient,
		NATSURL: cfg.NATSURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("create realtime bus: %w", err)
	}
	defer bus.Close()

	blobs, err := blob.NewFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}
	files, _ := blobs.(*blob.FileSystemStore)

	var (
		revocations auth.Revocations = auth.NewMemoryRevocations(nil)
		limiter     *middleware.Limiter
	)
	if redisClient != nil {
		revocations = auth.NewRedisRevocations(redisClient, prefix)
		limiter = middleware.NewLimiter(redisClient, prefix, nil)
	} else {
		logger.Warn("no redis configured; token revocation is per-process and sends are not rate limited")
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
		logger.Warn("JWT_SECRET not set; using a random secret, tokens will not survive a restart")
	}
	provider := auth.NewProvider(st.accounts, revocations, auth.ProviderOptions{
		Secret:   secret,
		TokenTTL: cfg.TokenTTL,
	}, logger)

	adapter := transfer.NewAdapter(blobs, transfer.Options{
		AppID:    cfg.AppID,
		MaxBytes: cfg.MaxUploadBytes,
	}, logger)

	hub := api.NewHub()
	router := api.NewRouter(api.Deps{
		Provider:  provider,
		Users:     st.users,
		Directory: channels.NewDirectory(st.channels, bus, logger),
		Membership: channels.NewMembership(st.channels, st.users, bus, channels.MembershipOptions{
			RetainAdminOnLeave: cfg.RetainAdminOnLeave,
			OnLeave:            hub.ChannelLeft,
		}, logger),
		Stream: messages.NewStream(st.messages, st.channels, adapter, bus, messages.Options{
			HistoryLimit: cfg.HistoryLimit,
		}, logger),
		Transfer:       adapter,
		Hub:            hub,
		Files:          files,
		Limiter:        limiter,
		SendRateLimit:  cfg.SendRateLimit,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Health:         st.health,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
		"websockets": func(context.Context) error {
			hub.Close()
			return nil
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting huddle",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreBackend),
			zap.String("realtime", cfg.RealtimeBackend),
			zap.String("blobs", cfg.BlobBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case code := <-wait:
			if code != 0 {
				return fmt.Errorf("shutdown finished with exit code %d", code)
			}
			logger.Info("shutdown complete")
			return nil
		case <-gctx.Done():
			hub.Close()
			return nil
		}
	})
	return g.Wait()
}
