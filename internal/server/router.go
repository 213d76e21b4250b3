package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/lmpstore-backend/internal/http/handlers"
)

type RouterConfig struct {
	UnitHandler       *handlers.UnitHandler
	InvocationHandler *handlers.InvocationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("lmpstore"))

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	// Program units
	router.POST("/lmp", cfg.UnitHandler.Write)
	router.GET("/lmp/:id", cfg.UnitHandler.Get)
	router.GET("/lmp/:id/uses", cfg.UnitHandler.GetUses)
	router.GET("/lmp/:id/invocations", cfg.UnitHandler.GetInvocations)
	router.GET("/lmps", cfg.UnitHandler.List)

	// Invocations
	router.POST("/invocation", cfg.InvocationHandler.Write)
	router.GET("/invocation/:id", cfg.InvocationHandler.Get)

	return router
}
