package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/crypto"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/telegram_bot"
)

type WebhookHandler interface {
	TelegramWebhook(c *gin.Context)
}

type webhookHandler struct {
	bot    *telegram_bot.Bot
	secret string
	logger *zap.Logger
}

func NewWebhookHandler(bot *telegram_bot.Bot, secret string, logger *zap.Logger) WebhookHandler {
	return &webhookHandler{
		bot:    bot,
		secret: secret,
		logger: logger,
	}
}

// TelegramWebhook handles POST /telegram/webhook. Telegram echoes the
// secret configured at setWebhook time in a header; anything else is not
// Telegram.
func (h *webhookHandler) TelegramWebhook(c *gin.Context) {
	if h.secret != "" {
		token := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
		if !crypto.SecretsEqual(token, h.secret) {
			h.logger.Warn("Rejected webhook call with bad secret token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret token"})
			return
		}
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Error("Failed to bind webhook update", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.bot.HandleUpdate(c.Request.Context(), update)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
