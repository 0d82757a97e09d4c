package telegram_bot

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/callback"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/config"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/moderation"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/reports"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/repository"
)

// Bot drives the human review loop: it posts pending comments and new
// reports to the review channel with inline actions, and applies the
// decoded callback actions when a reviewer presses a button.
type Bot struct {
	api            *tgbotapi.BotAPI
	logger         *zap.Logger
	comments       repository.CommentRepository
	moderation     *moderation.Service
	reports        *reports.Service
	channelID      int64
	callbackSecret string
	callbackMaxAge time.Duration
	webhookMode    bool
}

// NewBot creates a new Telegram bot instance. Returns nil when the bot is
// disabled; callers fall back to the no-op notifier.
func NewBot(cfg *config.Config, comments repository.CommentRepository, logger *zap.Logger) (*Bot, error) {
	if !cfg.TelegramBot.Enabled || cfg.TelegramBot.Token == "" {
		logger.Info("Telegram bot is disabled (telegram_bot.enabled=false or token is empty)")
		return nil, nil
	}

	botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramBot.Token, tgbotapi.APIEndpoint, &http.Client{
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))

	return &Bot{
		api:            botAPI,
		logger:         logger,
		comments:       comments,
		channelID:      cfg.TelegramBot.ChannelID,
		callbackSecret: cfg.Moderation.CallbackSecret,
		callbackMaxAge: cfg.Moderation.CallbackMaxAge,
		webhookMode:    cfg.TelegramBot.WebhookURL != "",
	}, nil
}

// Attach wires the services the callback handler dispatches into. Must be
// called before Start; the services in turn use the bot as their notifier.
func (b *Bot) Attach(mod *moderation.Service, rep *reports.Service) {
	b.moderation = mod
	b.reports = rep
}

// Start begins consuming updates. In webhook mode the HTTP layer feeds
// updates through HandleUpdate instead and this just waits for shutdown.
func (b *Bot) Start(ctx context.Context) error {
	if b == nil {
		return nil
	}

	if b.webhookMode {
		b.logger.Info("Telegram bot running in webhook mode")
		<-ctx.Done()
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Telegram bot started, waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram bot shutting down...")
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes one update from either the polling loop or the
// webhook route.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	} else if update.Message != nil {
		b.handleMessage(update.Message)
	}
}

// handleCallbackQuery decodes and applies an inline action.
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	b.logger.Info("Received callback query",
		zap.Int("data_length", len(query.Data)),
		zap.Int64("user_id", query.From.ID),
	)

	raw, err := base64.RawURLEncoding.DecodeString(query.Data)
	if err != nil {
		b.logger.Warn("Callback data is not valid base64", zap.Error(err))
		b.answerCallback(query.ID, "Invalid action")
		return
	}

	action, err := callback.Decode(raw, b.callbackSecret)
	if err != nil {
		b.logger.Warn("Failed to decode callback action", zap.Error(err))
		b.answerCallback(query.ID, "Invalid action")
		return
	}

	if err := action.CheckFreshness(time.Now(), b.callbackMaxAge); err != nil {
		b.logger.Warn("Rejecting stale callback action", zap.Error(err))
		b.answerCallback(query.ID, "This action has expired")
		return
	}

	if callback.IsReportAction(action.Kind) {
		b.applyReportAction(ctx, query, action)
		return
	}
	b.applyCommentAction(ctx, query, action)
}

func (b *Bot) applyCommentAction(ctx context.Context, query *tgbotapi.CallbackQuery, action callback.Action) {
	var status string
	switch action.Kind {
	case callback.KindApproveComment:
		status = models.ModerationStatusApproved
	case callback.KindRejectComment:
		status = models.ModerationStatusRejected
	case callback.KindPendingComment:
		status = models.ModerationStatusPending
	default:
		b.answerCallback(query.ID, "Unknown action")
		return
	}

	commentID := strings.ToLower(action.CommentID.Hex())
	revision := int(action.Revision)

	_, err := b.moderation.SetStatus(ctx, commentID, status, &revision)
	switch {
	case err == nil:
		b.answerCallback(query.ID, "Comment "+status)
	case errors.Is(err, repository.ErrSameStatus):
		b.answerCallback(query.ID, "Comment is already "+status)
	case errors.Is(err, repository.ErrStaleRevision):
		b.answerCallback(query.ID, "Superseded by a newer action")
	case errors.Is(err, repository.ErrStatusNotFound):
		b.answerCallback(query.ID, "Moderation record not found")
	default:
		b.logger.Error("Failed to apply moderation action",
			zap.String("comment_id", commentID), zap.String("status", status), zap.Error(err))
		b.answerCallback(query.ID, "Failed to update status")
	}
}

func (b *Bot) applyReportAction(ctx context.Context, query *tgbotapi.CallbackQuery, action callback.Action) {
	var status string
	switch action.Kind {
	case callback.KindResolveReport:
		status = models.ReportStatusResolved
	case callback.KindCloseReport:
		status = models.ReportStatusClosed
	default:
		b.answerCallback(query.ID, "Unknown action")
		return
	}

	report, err := b.reports.SetStatus(ctx, action.ReportID, status)
	switch {
	case err == nil:
		b.answerCallback(query.ID, "Report "+status)
	case errors.Is(err, repository.ErrSameStatus):
		b.answerCallback(query.ID, "Report is already "+status)
	case errors.Is(err, repository.ErrReportNotFound):
		b.answerCallback(query.ID, "Report not found")
	default:
		b.logger.Error("Failed to apply report action",
			zap.String("report_id", action.ReportID.String()), zap.String("status", status), zap.Error(err))
		b.answerCallback(query.ID, "Failed to update report")
		return
	}

	// Reports carry no stored message id, so reflect the outcome on the
	// message the button was pressed on.
	if err == nil && query.Message != nil {
		edit := tgbotapi.NewEditMessageText(
			query.Message.Chat.ID,
			query.Message.MessageID,
			query.Message.Text+"\n\n"+reportStatusLine(report.Status),
		)
		if _, serr := b.api.Send(edit); serr != nil && !isNotModified(serr) {
			b.logger.Error("Failed to edit report message", zap.Error(serr))
		}
	}
}

// handleMessage processes incoming messages.
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	if !message.IsCommand() {
		return
	}
	switch message.Command() {
	case "start":
		b.sendMessage(message.Chat.ID,
			"👋 Hi! I post comments awaiting moderation and new reports to the review channel. "+
				"Use the inline buttons on those messages to approve or reject.")
	case "help":
		b.sendMessage(message.Chat.ID,
			"📚 Help:\n\n"+
				"/start - Welcome message\n"+
				"/help - This message\n\n"+
				"Pending comments and reports appear in the review channel with action buttons.")
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help.")
	}
}

// NotifyPendingComment posts the one-time review notice for a newly pending
// comment and records the message id for later status edits.
func (b *Bot) NotifyPendingComment(ctx context.Context, c *models.Comment, rec *models.ModerationStatusRecord) error {
	text, err := renderModerationNotice(c, rec)
	if err != nil {
		// Cannot fit even a minimal header; drop the notification rather
		// than fail the underlying state change.
		b.logger.Warn("Omitting unrenderable review notification",
			zap.String("comment_id", c.ID), zap.Error(err))
		return nil
	}

	keyboard, err := b.moderationKeyboard(c.ID, rec.Status, rec.Revision)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(b.channelID, text)
	msg.ReplyMarkup = keyboard

	sent, err := b.api.Send(msg)
	if err != nil {
		return err
	}

	if err := b.comments.SetNotificationMessageID(ctx, c.ID, sent.MessageID); err != nil {
		b.logger.Error("Failed to store review message id",
			zap.String("comment_id", c.ID), zap.Error(err))
	}
	return nil
}

// NotifyStatusChanged refreshes the review message after a status change.
// A provider report of unchanged content counts as success.
func (b *Bot) NotifyStatusChanged(ctx context.Context, c *models.Comment, rec *models.ModerationStatusRecord) error {
	return b.editReviewMessage(c, rec)
}

// NotifyClassificationUpdated refreshes the displayed classification after
// an edit was reclassified. Independent of the pending-creation path.
func (b *Bot) NotifyClassificationUpdated(ctx context.Context, c *models.Comment, rec *models.ModerationStatusRecord) error {
	return b.editReviewMessage(c, rec)
}

// NotifyReportCreated posts a new report to the review channel.
func (b *Bot) NotifyReportCreated(ctx context.Context, report *models.Report, c *models.Comment) error {
	text, err := renderReportNotice(report, c)
	if err != nil {
		b.logger.Warn("Omitting unrenderable report notification",
			zap.String("report_id", report.ID.String()), zap.Error(err))
		return nil
	}

	keyboard, err := b.reportKeyboard(report.ID)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(b.channelID, text)
	msg.ReplyMarkup = keyboard

	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) editReviewMessage(c *models.Comment, rec *models.ModerationStatusRecord) error {
	if rec.MessageID == nil {
		return nil
	}

	text, err := renderModerationNotice(c, rec)
	if err != nil {
		b.logger.Warn("Omitting unrenderable review message edit",
			zap.String("comment_id", c.ID), zap.Error(err))
		return nil
	}

	keyboard, err := b.moderationKeyboard(c.ID, rec.Status, rec.Revision)
	if err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageTextAndMarkup(b.channelID, *rec.MessageID, text, keyboard)
	if _, err := b.api.Send(edit); err != nil && !isNotModified(err) {
		return err
	}
	return nil
}

// isNotModified matches Telegram's response to an edit that changes
// nothing; for us that outcome is an idempotent success.
func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func (b *Bot) answerCallback(queryID, text string) {
	cb := tgbotapi.NewCallback(queryID, text)
	if _, err := b.api.Request(cb); err != nil {
		b.logger.Error("Failed to answer callback query", zap.Error(err))
	}
}

// sendMessage is a helper to send a simple text message.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
