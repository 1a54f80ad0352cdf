package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/gigflow/gigflow-api/internal/config"
	"github.com/gigflow/gigflow-api/internal/db"
	"github.com/gigflow/gigflow-api/internal/events"
	"github.com/gigflow/gigflow-api/internal/handlers"
	"github.com/gigflow/gigflow-api/internal/middleware"
	"github.com/gigflow/gigflow-api/internal/mq"
	"github.com/gigflow/gigflow-api/internal/notify"
	"github.com/gigflow/gigflow-api/internal/obs"
	"github.com/gigflow/gigflow-api/internal/realtime"
	"github.com/gigflow/gigflow-api/internal/services/bidding"
	"github.com/gigflow/gigflow-api/internal/services/gigs"
	"github.com/gigflow/gigflow-api/internal/services/hiring"
	"github.com/gigflow/gigflow-api/internal/services/stats"
	"github.com/gigflow/gigflow-api/internal/store"
	"github.com/gigflow/gigflow-api/internal/store/gormstore"
	"github.com/gigflow/gigflow-api/internal/store/memstore"
)

const serviceName = "gigflow-api"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(serviceName, cfg.OTLPEndpoint, cfg.AppEnv)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	hub := realtime.NewHub()
	var channel notify.Channel = hub
	var presence handlers.PresenceTracker
	if cfg.RedisAddr != "" {
		rdb := realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		bridge := realtime.NewBridge(rdb, hub)
		go bridge.Run(ctx)
		channel = bridge
		presence = realtime.NewPresence(rdb)
		log.Println("Redis connected, realtime bridge active")
	}

	var publisher events.Publisher = events.Discard{}
	if cfg.RabbitURL != "" {
		p, err := mq.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer p.Close()
		publisher = p
		log.Printf("Publishing domain events to exchange %s", cfg.RabbitExchange)
	}

	dispatcher := notify.NewDispatcher(channel)
	statsSvc := stats.NewStatsService(st)
	gigSvc := gigs.NewService(st, statsSvc, dispatcher, publisher)
	ledger := bidding.NewLedger(st, statsSvc, dispatcher, publisher)
	coord := hiring.NewCoordinator(st, statsSvc, dispatcher, publisher)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins(),
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))

	requireAuth := middleware.RequireAuth(cfg.JWTSecret)
	api := app.Group("/api")

	handlers.NewAuthHandler(st, cfg.JWTSecret, cfg.JWTExpiresMin).Routes(api, requireAuth)
	if cfg.GoogleEnabled() {
		googleH := &handlers.GoogleOAuthHandler{
			Store:           st,
			JWTSecret:       cfg.JWTSecret,
			Expires:         cfg.JWTExpiresMin,
			GoogleClientID:  cfg.GoogleClientID,
			GoogleSecret:    cfg.GoogleSecret,
			GoogleRedirect:  cfg.GoogleRedirect,
			FrontendBaseURL: cfg.FrontendBaseURL,
		}
		googleH.Routes(api)
	}
	api.Get("/categories", handlers.NewCategoryHandler().GetCategories)
	handlers.NewGigHandler(gigSvc).Routes(api, requireAuth)
	handlers.NewBidHandler(ledger, coord).Routes(api, requireAuth)

	realtimeH := handlers.NewRealtimeHandler(hub, presence, cfg.JWTSecret)
	realtimeH.APIRoutes(api)
	realtimeH.Routes(app)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Printf("listen: %v", err)
	}
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Println("Using in-memory store")
		return memstore.New(), nil
	}
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, err
	}
	return gormstore.New(gdb, cfg.TxTimeout), nil
}
