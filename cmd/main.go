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

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"uchef.app/cart-api/internal/router"
	"uchef.app/cart-api/pkg/cart"
	"uchef.app/cart-api/pkg/events"
	"uchef.app/cart-api/pkg/global"
	"uchef.app/cart-api/pkg/mongo"
	"uchef.app/cart-api/pkg/redis"
	"uchef.app/cart-api/pkg/session"
	"uchef.app/cart-api/pkg/sqlite"
)

// durableStorage is what every backend offers besides the cart.Storage port
type durableStorage interface {
	cart.Storage
	router.Pinger
	io.Closer
}

func setupLogger(cfg global.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Production() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "cart-api").Logger()
		return
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func openStorage(cfg global.Config) (cart.Storage, router.Pinger, func(), error) {
	ctx, cancel := global.GetDefaultTimer()
	defer cancel()

	var storage durableStorage
	switch cfg.Storage {
	case global.StorageMemory:
		log.Warn().Msg("using in-memory cart storage, carts are lost on restart")
		return cart.NewMemoryStorage(), nil, func() {}, nil
	case global.StorageRedis:
		client, err := redis.Connect(ctx, redis.Options{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		storage = redis.NewCartStorage(client, cfg.CartTTL)
	case global.StorageMongo:
		db, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			return nil, nil, nil, err
		}
		storage = mongo.NewCartStorage(db)
	case global.StorageSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		storage = s
	}

	closeFn := func() {
		if err := storage.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close cart storage")
		}
	}
	return storage, storage, closeFn, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using process environment")
	}

	cfg, err := global.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogger(cfg)

	storage, pinger, closeStorage, err := openStorage(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("storage", cfg.Storage).Msg("failed to open cart storage")
	}
	defer closeStorage()
	log.Info().Str("storage", cfg.Storage).Msg("cart storage ready")

	sessions := session.NewManager(storage)
	defer sessions.Close()

	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is not set, session login endpoints will reject every token")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RabbitMQURL != "" {
		conn, err := events.Dial(cfg.RabbitMQURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer conn.Close()

		consumerLog := log.With().Str("component", "auth-consumer").Logger()
		if err := events.StartAuthConsumer(ctx, conn, events.AuthHandlers(sessions, consumerLog), consumerLog); err != nil {
			log.Fatal().Err(err).Msg("failed to start auth consumer")
		}
		log.Info().Str("queue", events.AuthQueue).Msg("auth consumer started")
	}

	engine := router.NewEngine(cfg)
	router.InitializeRoutes(engine, router.NewHandler(sessions, pinger), cfg.JWTSecret)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to run server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := global.GetDefaultTimer()
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
