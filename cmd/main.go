package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/lmpstore-backend/internal/db"
	"github.com/yungbote/lmpstore-backend/internal/http/handlers"
	"github.com/yungbote/lmpstore-backend/internal/observability"
	"github.com/yungbote/lmpstore-backend/internal/pkg/logger"
	"github.com/yungbote/lmpstore-backend/internal/realtime/bus"
	"github.com/yungbote/lmpstore-backend/internal/repos"
	"github.com/yungbote/lmpstore-backend/internal/server"
	"github.com/yungbote/lmpstore-backend/internal/services"
	"github.com/yungbote/lmpstore-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOtel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "lmpstore",
		Environment: utils.GetEnv("DEPLOY_ENV", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
	})
	if shutdownOtel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	unitRepo := repos.NewProgramUnitRepo(thePG, log)
	invocationRepo := repos.NewInvocationRepo(thePG, log)

	// Publisher
	log.Info("Setting up event bus from main...")
	var eventBus bus.Bus
	if os.Getenv("REDIS_ADDR") != "" {
		eventBus, err = bus.NewRedisBus(log)
		if err != nil {
			log.Warn("Redis bus init failed, falling back to noop publisher", "error", err)
			eventBus = bus.NewNoopBus()
		}
	} else {
		log.Info("REDIS_ADDR not set, using noop publisher")
		eventBus = bus.NewNoopBus()
	}
	defer eventBus.Close()

	// Services
	log.Info("Setting up Services from main...")
	storeService := services.NewStoreService(thePG, log, unitRepo, invocationRepo, eventBus)

	// Handlers
	log.Info("Setting up handlers from main...")
	unitHandler := handlers.NewUnitHandler(log, storeService)
	invocationHandler := handlers.NewInvocationHandler(log, storeService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		UnitHandler:       unitHandler,
		InvocationHandler: invocationHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
