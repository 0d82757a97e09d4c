package telegram_bot

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecp-eth/comments-monorepo-sub003/internal/callback"
	"github.com/ecp-eth/comments-monorepo-sub003/internal/models"
)

func testBot() *Bot {
	return &Bot{
		logger:         zap.NewNop(),
		channelID:      -100,
		callbackSecret: "review-channel-secret",
		callbackMaxAge: 24 * time.Hour,
	}
}

func pendingRecord() *models.ModerationStatusRecord {
	return &models.ModerationStatusRecord{
		Status:           models.ModerationStatusPending,
		ClassifierScore:  0.82,
		ClassifierLabels: []byte(`{"spam":0.82,"toxic":0.1}`),
		Revision:         5,
	}
}

func TestRenderModerationNotice(t *testing.T) {
	c := &models.Comment{
		ID:        "0x" + strings.Repeat("ab", 32),
		Author:    "0x1234567890abcdef1234567890abcdef12345678",
		AppSigner: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		TargetURI: "https://example.com/post/1",
		Content:   "short content",
	}

	text, err := renderModerationNotice(c, pendingRecord())
	require.NoError(t, err)
	assert.Contains(t, text, c.ID)
	assert.Contains(t, text, "short content")
	assert.Contains(t, text, "0.82")
	assert.Contains(t, text, "spam", "labels above the display threshold are shown")
	assert.NotContains(t, text, "toxic", "labels below the threshold are hidden")
	assert.Contains(t, text, "pending review")
}

func TestRenderModerationNoticeTruncatesContent(t *testing.T) {
	c := &models.Comment{
		ID:      "0x" + strings.Repeat("ab", 32),
		Content: strings.Repeat("ф", 4000),
	}

	text, err := renderModerationNotice(c, pendingRecord())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(text), maxMessageLen)
	assert.True(t, utf8.ValidString(text))
	assert.Contains(t, text, "…")
}

func TestRenderReportNotice(t *testing.T) {
	report := &models.Report{
		ID:        uuid.New(),
		CommentID: "0x" + strings.Repeat("cd", 32),
		Reportee:  "0x1234567890abcdef1234567890abcdef12345678",
		Message:   "this is spam",
		Status:    models.ReportStatusPending,
	}
	c := &models.Comment{ID: report.CommentID, Content: "reported content"}

	text, err := renderReportNotice(report, c)
	require.NoError(t, err)
	assert.Contains(t, text, report.ID.String())
	assert.Contains(t, text, "this is spam")
	assert.Contains(t, text, "reported content")
}

func TestModerationKeyboardEncodesDecodableActions(t *testing.T) {
	b := testBot()
	commentID := "0x" + strings.Repeat("ef", 32)

	keyboard, err := b.moderationKeyboard(commentID, models.ModerationStatusPending, 5)
	require.NoError(t, err)
	require.Len(t, keyboard.InlineKeyboard, 1)
	require.Len(t, keyboard.InlineKeyboard[0], 2, "pending offers approve and reject")

	for _, button := range keyboard.InlineKeyboard[0] {
		require.NotNil(t, button.CallbackData)
		data := *button.CallbackData
		assert.LessOrEqual(t, len(data), 64, "callback data must fit Telegram's limit")

		raw, err := base64.RawURLEncoding.DecodeString(data)
		require.NoError(t, err)
		action, err := callback.Decode(raw, b.callbackSecret)
		require.NoError(t, err)
		assert.Equal(t, common.HexToHash(commentID), action.CommentID)
		assert.Equal(t, uint16(5), action.Revision)
		assert.NoError(t, action.CheckFreshness(time.Now(), b.callbackMaxAge))
	}
}

func TestReportKeyboardEncodesDecodableActions(t *testing.T) {
	b := testBot()
	reportID := uuid.New()

	keyboard, err := b.reportKeyboard(reportID)
	require.NoError(t, err)
	require.Len(t, keyboard.InlineKeyboard, 1)
	require.Len(t, keyboard.InlineKeyboard[0], 2)

	for _, button := range keyboard.InlineKeyboard[0] {
		require.NotNil(t, button.CallbackData)
		raw, err := base64.RawURLEncoding.DecodeString(*button.CallbackData)
		require.NoError(t, err)
		action, err := callback.Decode(raw, b.callbackSecret)
		require.NoError(t, err)
		assert.True(t, callback.IsReportAction(action.Kind))
		assert.Equal(t, reportID, action.ReportID)
	}
}

func TestTruncateTextRuneBoundary(t *testing.T) {
	s := strings.Repeat("ю", 50) // 2 bytes per rune
	out := truncateText(s, 21)
	assert.LessOrEqual(t, len(out), 21)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasSuffix(out, "…"))

	assert.Equal(t, "short", truncateText("short", 100))
}
