package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"ms-payments/internal/auth"
	"ms-payments/internal/capture"
	"ms-payments/internal/catalog"
	"ms-payments/internal/checkout"
	"ms-payments/internal/click"
	"ms-payments/internal/completion"
	"ms-payments/internal/config"
	"ms-payments/internal/database"
	"ms-payments/internal/database/migrations"
	"ms-payments/internal/fiscal"
	"ms-payments/internal/kafka"
	"ms-payments/internal/lock"
	"ms-payments/internal/logger"
	"ms-payments/internal/lookup"
	"ms-payments/internal/payme"
	"ms-payments/internal/sse"
	"ms-payments/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, ".env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Close()
	log.SetLevel(cfg.Log.Level)

	log.Info("APP", "Starting payment gateway initialization")
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.Options{MigrationsDir: cfg.Database.MigrationsDir, AutoMigrate: true}, log)
		if err := runner.Up(); err != nil {
			log.Fatal("MIGRATION", fmt.Sprintf("Migration failed: %v", err))
		}
	}
	db := store.New(bunDB)

	var (
		locker      lock.Locker        = lock.NewLocal()
		tokens      catalog.TokenStore = &catalog.MemoryTokenStore{}
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
		}
		defer redisClient.Close()
		locker = lock.NewRedis(redisClient, cfg.Redis.LockTTL)
		tokens = catalog.NewRedisTokenStore(redisClient)
		log.Info("REDIS", "✅ Redis connection successful to "+cfg.Redis.Addr)
	} else {
		log.Warn("REDIS", "Redis disabled, per-transaction locks are local to this instance")
	}

	var publisher kafka.Publisher = kafka.LogPublisher{Log: log}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		publisher = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, events are only logged")
	}

	emitter := sse.NewCheckoutEventEmitter()
	completer := completion.NewReconciler(db, publisher, cfg.Kafka.Topics.OrderCompleted, cfg.Completion, log)
	capturer := capture.NewCapturer(sse.Tee{Next: publisher, Emitter: emitter}, cfg.Kafka.Topics, completer, log)

	var resolver fiscal.CodeResolver
	if cfg.Catalog.Enabled() {
		resolver = catalog.NewClient(cfg.Catalog, tokens, log)
	}
	receipts := fiscal.NewReconciler(cfg.Fiscal.Tolerance, cfg.Fiscal.Policy, resolver, db, log)

	orders := lookup.NewResolver(lookup.DefaultStrategies(db), cfg.Redirect.PollInterval, cfg.Redirect.Timeout, log)

	paymeHandler := payme.NewHandler(payme.NewService(db, locker, capturer, receipts, cfg.Payme, log), cfg.Payme.Key, log)
	clickHandler := &click.Handler{
		Service:  click.NewService(db, locker, capturer, cfg.Click, log),
		Resolver: orders,
		Redirect: cfg.Redirect,
		Logger:   log,
	}
	checkoutHandler := checkout.NewHandler(checkout.NewService(db, cfg.Payme, cfg.Click, log), orders, log)
	checkoutHandler.Events = emitter
	checkoutHandler.StreamTimeout = cfg.Redirect.Timeout

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(log.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := bunDB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Provider callbacks authenticate with their own credentials.
	r.Post("/payme", paymeHandler.ServeHTTP)
	r.Route("/click", func(r chi.Router) {
		r.Post("/prepare", clickHandler.Prepare)
		r.Post("/complete", clickHandler.Complete)
		r.Get("/return", clickHandler.Return)
		r.Post("/return", clickHandler.Return)
	})
	log.Info("ROUTER", "Provider routes registered under /payme and /click")

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.JWTSecret, log))
		r.Route("/api/checkout", checkoutHandler.Routes)
	})
	log.Info("ROUTER", "Checkout routes registered under /api/checkout")

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var workers sync.WaitGroup
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.OrderStatus, cfg.Kafka.GroupID, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			defer consumer.Close()
			if err := consumer.Run(ctx, completer.HandleMessage); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Status consumer stopped: %v", err))
			}
		}()
	}
	workers.Add(1)
	go func() {
		defer workers.Done()
		completer.RunSweeper(ctx, cfg.Completion.SweepInterval)
	}()

	go func() {
		log.Info("HTTP", "🚀 Payment gateway running on "+cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	workers.Wait()
	completer.Stop()
	capturer.Wait()
	log.Info("APP", "✅ Payment gateway shutdown complete")
}
