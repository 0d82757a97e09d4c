package telegram_bot

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/callback"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
)

const (
	// Telegram's hard limit for message text.
	maxMessageLen = 4096

	// How much of the comment content a review notice quotes at most.
	contentBudget = 1000

	// Labels scoring below this are not worth showing a reviewer.
	labelDisplayThreshold = 0.5
)

var errNoticeTooLong = errors.New("notice header alone exceeds message limit")

// renderModerationNotice builds the review channel message for a comment.
// The header always fits or the notice is unrenderable; the quoted content
// is truncated to whatever budget remains.
func renderModerationNotice(c *models.Comment, rec *models.ModerationStatusRecord) (string, error) {
	var sb strings.Builder
	sb.WriteString(statusLine(rec.Status))
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("Id: %s\n", c.ID))
	sb.WriteString(fmt.Sprintf("Author: %s\n", shortAddress(c.Author)))
	sb.WriteString(fmt.Sprintf("App: %s\n", shortAddress(c.AppSigner)))
	sb.WriteString(fmt.Sprintf("Target: %s\n", c.TargetURI))
	sb.WriteString(fmt.Sprintf("Score: %.2f", rec.ClassifierScore))
	if labels := renderLabels(rec.ClassifierLabels); labels != "" {
		sb.WriteString(" (" + labels + ")")
	}
	sb.WriteString("\n\n")

	header := sb.String()
	if len(header) >= maxMessageLen {
		return "", errNoticeTooLong
	}

	budget := contentBudget
	if remaining := maxMessageLen - len(header); remaining < budget {
		budget = remaining
	}
	return header + truncateText(c.Content, budget), nil
}

// renderReportNotice builds the review channel message for a new report.
func renderReportNotice(report *models.Report, c *models.Comment) (string, error) {
	var sb strings.Builder
	sb.WriteString("🚩 New report\n\n")
	sb.WriteString(fmt.Sprintf("Report: %s\n", report.ID))
	sb.WriteString(fmt.Sprintf("Comment: %s\n", report.CommentID))
	sb.WriteString(fmt.Sprintf("Reportee: %s\n", shortAddress(report.Reportee)))
	if report.Message != "" {
		sb.WriteString("Reason: ")
		sb.WriteString(truncateText(report.Message, 500))
		sb.WriteString("\n")
	}

	header := sb.String()
	if len(header) >= maxMessageLen {
		return "", errNoticeTooLong
	}

	if c != nil && c.Content != "" {
		budget := contentBudget
		if remaining := maxMessageLen - len(header) - 1; remaining < budget {
			budget = remaining
		}
		if budget > 0 {
			return header + "\n" + truncateText(c.Content, budget), nil
		}
	}
	return header, nil
}

func statusLine(status string) string {
	switch status {
	case models.ModerationStatusApproved:
		return "✅ Comment approved"
	case models.ModerationStatusRejected:
		return "❌ Comment rejected"
	default:
		return "🆕 Comment pending review"
	}
}

func reportStatusLine(status string) string {
	switch status {
	case models.ReportStatusResolved:
		return "✅ Report resolved"
	case models.ReportStatusClosed:
		return "🚫 Report closed"
	default:
		return "🚩 Report pending"
	}
}

// renderLabels lists the classifier labels worth surfacing, highest score
// first.
func renderLabels(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var labels map[string]float64
	if err := json.Unmarshal(raw, &labels); err != nil {
		return ""
	}

	var names []string
	for name, score := range labels {
		if score >= labelDisplayThreshold {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if labels[names[i]] != labels[names[j]] {
			return labels[names[i]] > labels[names[j]]
		}
		return names[i] < names[j]
	})
	return strings.Join(names, ", ")
}

// moderationKeyboard offers the transitions away from the current status.
// Each button embeds the revision it was issued against, so a button from a
// superseded message cannot flip the state back.
func (b *Bot) moderationKeyboard(commentID, status string, revision int) (tgbotapi.InlineKeyboardMarkup, error) {
	var buttons []tgbotapi.InlineKeyboardButton

	add := func(label string, kind byte) error {
		data, err := b.encodeCommentAction(kind, commentID, revision)
		if err != nil {
			return err
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(label, data))
		return nil
	}

	type transition struct {
		label string
		kind  byte
	}
	var transitions []transition
	switch status {
	case models.ModerationStatusApproved:
		transitions = []transition{
			{"❌ Reject", callback.KindRejectComment},
			{"⏳ Back to pending", callback.KindPendingComment},
		}
	case models.ModerationStatusRejected:
		transitions = []transition{
			{"✅ Approve", callback.KindApproveComment},
			{"⏳ Back to pending", callback.KindPendingComment},
		}
	default:
		transitions = []transition{
			{"✅ Approve", callback.KindApproveComment},
			{"❌ Reject", callback.KindRejectComment},
		}
	}
	for _, t := range transitions {
		if err := add(t.label, t.kind); err != nil {
			return tgbotapi.InlineKeyboardMarkup{}, err
		}
	}

	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(buttons...)), nil
}

func (b *Bot) reportKeyboard(reportID uuid.UUID) (tgbotapi.InlineKeyboardMarkup, error) {
	resolve, err := b.encodeReportAction(callback.KindResolveReport, reportID)
	if err != nil {
		return tgbotapi.InlineKeyboardMarkup{}, err
	}
	closeData, err := b.encodeReportAction(callback.KindCloseReport, reportID)
	if err != nil {
		return tgbotapi.InlineKeyboardMarkup{}, err
	}
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Resolve", resolve),
		tgbotapi.NewInlineKeyboardButtonData("🚫 Close", closeData),
	)), nil
}

func (b *Bot) encodeCommentAction(kind byte, commentID string, revision int) (string, error) {
	raw, err := callback.Encode(callback.Action{
		Kind:      kind,
		CommentID: common.HexToHash(commentID),
		IssuedAt:  time.Now(),
		Revision:  uint16(revision),
	}, b.callbackSecret)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func (b *Bot) encodeReportAction(kind byte, reportID uuid.UUID) (string, error) {
	raw, err := callback.Encode(callback.Action{
		Kind:     kind,
		ReportID: reportID,
		IssuedAt: time.Now(),
	}, b.callbackSecret)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// truncateText cuts s down to at most max bytes without splitting a rune,
// appending an ellipsis when anything was cut.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - len("…")
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// shortAddress renders a 0x address in the compact 0xabcd…ef01 form.
func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
