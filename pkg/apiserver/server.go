package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stageflow/stageflow/pkg/apiserver/handlers"
	"github.com/stageflow/stageflow/pkg/apiserver/middleware"
	"github.com/stageflow/stageflow/pkg/auth"
	"github.com/stageflow/stageflow/pkg/config"
	"github.com/stageflow/stageflow/pkg/consumer"
	"github.com/stageflow/stageflow/pkg/store"
)

type Server struct {
	router *gin.Engine
	cfg    *config.Config
	logger *zap.Logger
}

func NewServer(queue store.EventQueue, cons *consumer.Consumer, evaluator consumer.Evaluator, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
	}
	s.setupRouter(queue, cons, evaluator)
	return s
}

func (s *Server) setupRouter(queue store.EventQueue, cons *consumer.Consumer, evaluator consumer.Evaluator) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	automationHandler := handlers.NewAutomationHandler(queue, cons, evaluator, s.logger)
	tokens := auth.NewServiceTokenManager([]byte(s.cfg.Auth.JWTSecret), s.cfg.Auth.TokenTTL)

	api := r.Group("/api/v1/automations")
	{
		// Tick entrypoint for the external scheduler; bearer cron secret.
		api.POST("/tick", middleware.CronAuth(s.cfg.Auth.CronSecret, false), automationHandler.Tick)
		// Scheduler-facing wrapper: same handler, also accepts the secret
		// via the X-Cron-Key header and forwards the result verbatim.
		api.POST("/cron", middleware.CronAuth(s.cfg.Auth.CronSecret, true), automationHandler.Tick)

		producer := api.Group("")
		producer.Use(middleware.ServiceAuth(tokens))
		producer.POST("/events", automationHandler.Enqueue)
		producer.POST("/evaluate", automationHandler.Evaluate)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
