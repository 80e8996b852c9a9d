package main // Entry point package

import (
	"context"
	"errors"
	"log" // Logging library
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"                    // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // Echo's stock logger/recover/body limit

	"github.com/iliyamo/collectible-requests/internal/access"
	"github.com/iliyamo/collectible-requests/internal/config" // Internal config loader
	"github.com/iliyamo/collectible-requests/internal/database"
	"github.com/iliyamo/collectible-requests/internal/handler"
	"github.com/iliyamo/collectible-requests/internal/middleware"
	"github.com/iliyamo/collectible-requests/internal/notify"
	"github.com/iliyamo/collectible-requests/internal/queue"
	"github.com/iliyamo/collectible-requests/internal/realtime"
	"github.com/iliyamo/collectible-requests/internal/repository"
	"github.com/iliyamo/collectible-requests/internal/router" // Internal router setup
	"github.com/iliyamo/collectible-requests/internal/service"
	"github.com/iliyamo/collectible-requests/internal/storage"
)

func main() {
	cfg := config.Load() // Load environment config
	notifyCfg := config.LoadNotifyConfig()
	storeCfg := config.LoadStorageConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.Migrate(ctx, db)
		cancel()
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	// The chat feed rides on Redis pub/sub, so unlike the cache and the
	// limiter it cannot run without it.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Fatal("redis: unreachable; the chat feed requires redis")
	}
	defer rdb.Close()

	objects, err := storage.New(storeCfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	{
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := objects.EnsureBuckets(ctx)
		cancel()
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
	}

	gate := access.NewGate(cfg.AdminEmails...)
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)

	requestRepo := repository.NewRequestRepo(db)
	requests := service.NewRequestService(requestRepo, gate, cache)
	chat := service.NewChatService(requestRepo, repository.NewMessageRepo(db), realtime.NewBroker(rdb, ""),
		dispatcher(notifyCfg), gate, cache, notifyCfg.Timeout)
	showcase := service.NewShowcaseService(repository.NewShowcaseRepo(db), objects, gate, cache)
	uploads := service.NewUploadService(objects, gate, storeCfg.RequestBucket, storeCfg.ShowcaseBucket)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	// Four 20MB reference images plus multipart framing.
	e.Use(echomw.BodyLimit("90M"))

	chatHandler := handler.NewChatHandler(chat, 0)
	// Open SSE streams never go idle; end them as soon as Shutdown starts.
	e.Server.RegisterOnShutdown(chatHandler.Shutdown)

	router.Register(e, router.Handlers{
		Auth:         handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db), gate),
		Requests:     handler.NewRequestHandler(requests),
		AdminRequest: handler.NewAdminRequestHandler(requests),
		Chat:         chatHandler,
		Showcase:     handler.NewShowcaseHandler(showcase),
		Uploads:      handler.NewUploadHandler(uploads),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		Gate:      gate,
		Cache:     cache.Middleware(),
		Limiter:   middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	})

	addr := ":" + cfg.Port                                                            // Address string with port
	log.Printf("listening on %s (env=%s, notify=%s)", addr, cfg.Env, notifyCfg.Mode) // Print startup info

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) { // Start HTTP server
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	// Notifications get their own budget, whatever Shutdown used up.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), notifyCfg.Timeout+5*time.Second)
	defer cancelDrain()
	if err := chat.Drain(drainCtx); err != nil {
		log.Printf("shutdown: pending notifications dropped: %v", err)
	}
}

// dispatcher picks where chat notifications go.  Queue mode hands them to
// cmd/notifier; direct mode pushes to LINE from this process.
func dispatcher(cfg config.NotifyConfig) notify.Dispatcher {
	switch cfg.Mode {
	case config.NotifyQueue:
		return queue.NewPublisher(cfg.AMQPURL, cfg.Queue)
	case config.NotifyDirect:
		return notify.NewLinePusher(cfg.LineAccessToken, cfg.LineUserID, cfg.LineEndpoint, cfg.Timeout)
	default:
		return notify.Discard{}
	}
}
