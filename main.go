package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/yeremiapane/omnipos/broker"
	"github.com/yeremiapane/omnipos/config"
	"github.com/yeremiapane/omnipos/database"
	"github.com/yeremiapane/omnipos/kds"
	"github.com/yeremiapane/omnipos/ledger"
	"github.com/yeremiapane/omnipos/middlewares"
	"github.com/yeremiapane/omnipos/notify"
	"github.com/yeremiapane/omnipos/reconcile"
	"github.com/yeremiapane/omnipos/router"
	"github.com/yeremiapane/omnipos/services"
	"github.com/yeremiapane/omnipos/utils"
)

func main() {
	utils.InitLogger()

	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("Invalid configuration: %v", err)
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		utils.ErrorLogger.Printf("Ignoring LOG_LEVEL: %v", err)
	}
	utils.SetJWTSecret(cfg.JWTSecret)
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
	}

	dispatcher := notify.NewDispatcher(db)
	engine := reconcile.NewEngine(ledger.New(db), dispatcher, cfg.NodeID)
	hub := kds.NewHub()

	// the broker is optional; without it notifications only reach screens
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		mq, err := broker.Dial(cfg.AMQPURL)
		if err != nil {
			utils.ErrorLogger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer mq.Close()
		if err := mq.DeclareAll(); err != nil {
			utils.ErrorLogger.Fatalf("Failed to declare RabbitMQ topology: %v", err)
		}
		publisher = mq
		utils.InfoLogger.Printf("Publishing notifications to exchange %s", broker.NotificationsExchange)
	}

	monitor := services.NewChangeMonitor(db, hub, publisher)
	monitor.Interval = cfg.RelayInterval
	if err := monitor.Start(); err != nil {
		utils.ErrorLogger.Fatalf("Failed to start notification relay: %v", err)
	}
	defer monitor.Stop()

	r := router.SetupRouter(router.Deps{
		Engine:      engine,
		Dispatcher:  dispatcher,
		Hub:         hub,
		SyncLimiter: middlewares.NewRateLimiter(cfg.SyncRateLimit, cfg.SyncBurst),
		CORSOrigin:  cfg.CORSOrigin,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.InfoLogger.Printf("Listening on port %s (node %s)", cfg.Port, engine.NodeID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		utils.InfoLogger.Println("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		utils.ErrorLogger.Fatal(err)
	}
}
