package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/swapmeet/marketplace/backend/internal/auth"
	"github.com/swapmeet/marketplace/backend/internal/chat"
	"github.com/swapmeet/marketplace/backend/internal/config"
	"github.com/swapmeet/marketplace/backend/internal/items"
	"github.com/swapmeet/marketplace/backend/internal/logging"
	"github.com/swapmeet/marketplace/backend/internal/metrics"
	"github.com/swapmeet/marketplace/backend/internal/middleware"
	"github.com/swapmeet/marketplace/backend/internal/server"
	"github.com/swapmeet/marketplace/backend/internal/store"
)

// backend is satisfied by both store drivers.
type backend interface {
	auth.UserStore
	items.Store
	chat.MessageStore
}

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty; using an insecure development secret")
		cfg.JWTSecret = "dev-secret-change-me"
	}
	ctx := context.Background()

	// ── Relational store ─────────────────────────────────────
	var db backend
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.WithError(err).Fatal("postgres connect")
		}
		defer pgPool.Close()
		pgStore := store.NewPostgresStore(pgPool)
		if err := pgStore.Migrate(ctx); err != nil {
			log.WithError(err).Fatal("postgres migrate")
		}
		db = pgStore
	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		db = store.NewMemoryStore()
	}

	// ── MongoDB relay journal (optional) ─────────────────────
	var (
		journal       chat.Journal
		journalReader chat.JournalReader
	)
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.WithError(err).Fatal("mongo connect")
		}
		defer mongoClient.Disconnect(context.Background())
		mj := store.NewMongoJournal(mongoClient.Database(cfg.MongoDB))
		if err := mj.EnsureIndexes(ctx); err != nil {
			log.WithError(err).Warn("mongo journal indexes")
		}
		journal, journalReader = mj, mj
	}

	// ── Redis fan-out (optional) ─────────────────────────────
	fanout := chat.Fanout(chat.NewLocalFanout())
	if cfg.RelayFanout == config.FanoutRedis {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.WithError(err).Fatal("redis connect")
		}
		defer rdb.Close()
		fanout = chat.NewRedisFanout(rdb, chat.DefaultChannel, log)
	}

	// ── MinIO item images (optional) ─────────────────────────
	var images items.ImageStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := store.NewMinioStore(
			ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
			cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
		)
		if err != nil {
			log.WithError(err).Fatal("minio connect")
		}
		images = minioStore
	}

	// ── Services ─────────────────────────────────────────────
	m := metrics.New()
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn)
	authSvc := auth.NewService(db, tokens, auth.WithAdminEmails(cfg.AdminEmails...))
	itemSvc := items.NewService(db, images, cfg.PublicURL, log)

	relayOpts := []chat.Option{chat.WithFanout(fanout), chat.WithMetrics(m), chat.WithLogger(log)}
	if journal != nil {
		relayOpts = append(relayOpts, chat.WithJournal(journal))
	}
	relay, err := chat.NewRelay(db, relayOpts...)
	if err != nil {
		log.WithError(err).Fatal("relay start")
	}

	stop := make(chan struct{})
	limiter := middleware.NewRateLimiter(cfg.AuthRateLimitRPS, cfg.AuthRateLimitBurst, log)
	limiter.StartCleanup(time.Minute, stop)

	// ── Router ───────────────────────────────────────────────
	handler := server.NewRouter(server.Deps{
		Log:              log,
		Metrics:          m,
		Debug:            cfg.IsDevelopment(),
		CORSOrigins:      cfg.CORSOrigins,
		Auth:             authSvc,
		Tokens:           tokens,
		Items:            itemSvc,
		Relay:            relay,
		Journal:          journalReader,
		RelayRequireAuth: cfg.RelayRequireAuth,
		AuthLimiter:      limiter,
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"store":  cfg.StoreDriver,
			"fanout": cfg.RelayFanout,
			"env":    cfg.Env,
		}).Info("backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	close(stop)
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := relay.Close(); err != nil {
		log.WithError(err).Warn("relay shutdown")
	}
}
