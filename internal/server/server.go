package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/config"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/handler"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/middleware"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/moderation"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/reports"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/repository"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/telegram_bot"
)

type Server struct {
	router *gin.Engine
	cfg    *config.Config
	log    *logrus.Logger
}

func NewServer(
	cfg *config.Config,
	comments repository.CommentRepository,
	moderationSvc *moderation.Service,
	reportsSvc *reports.Service,
	bot *telegram_bot.Bot,
	logger *zap.Logger,
	log *logrus.Logger,
) *Server {
	router := gin.Default()

	s := &Server{
		router: router,
		cfg:    cfg,
		log:    log,
	}

	moderationHandler := handler.NewModerationHandler(moderationSvc, comments, logger)
	reportHandler := handler.NewReportHandler(reportsSvc, logger)

	// Ping route for health check
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// Telegram delivers updates here when a webhook URL is configured. The
	// route authenticates via the webhook secret token, not a JWT.
	if bot != nil && cfg.TelegramBot.WebhookURL != "" {
		webhookHandler := handler.NewWebhookHandler(bot, cfg.TelegramBot.WebhookSecret, logger)
		router.POST("/api/webhook/telegram", webhookHandler.TelegramWebhook)
	}

	// Operator API
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg.Server.JWTSecret, logger))
	{
		api.GET("/comments/pending", moderationHandler.ListPending)
		api.GET("/comments/:id", moderationHandler.GetComment)
		api.PUT("/comments/:id", moderationHandler.UpdateContent)
		api.POST("/comments/:id/status", moderationHandler.UpdateStatus)

		api.POST("/reports", reportHandler.CreateReport)
		api.GET("/reports/:id", reportHandler.GetReport)
		api.POST("/reports/:id/status", reportHandler.UpdateReportStatus)
	}

	return s
}

func (s *Server) Run(addr string) {
	s.log.Infof("Server starting on port %s...", addr)
	if err := s.router.Run(addr); err != nil {
		s.log.Fatalf("Server failed to start: %v", err)
	}
}
