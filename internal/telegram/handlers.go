package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/samtjhia/SamsStudyTracker/internal/admin"
	"github.com/samtjhia/SamsStudyTracker/internal/store"
)

// --- Generic helpers ---

func (r *Router) sendText(chatID int64, text string) {
	_, _ = r.bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) answerCallback(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallback(id, text))
	return err
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return id, err == nil && id > 0
}

// --- Commands ---

func (r *Router) handleStart(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, startText)
	msg.ReplyMarkup = mainMenuKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleUsers(ctx context.Context, chatID int64) {
	rows, err := r.admin.Overview(ctx)
	if err != nil {
		r.log.Error("overview failed", zap.Error(err))
		r.sendText(chatID, "Could not load users.")
		return
	}
	if len(rows) == 0 {
		r.sendText(chatID, noUsersText)
		return
	}
	for _, row := range rows {
		msg := tgbotapi.NewMessage(chatID, formatUser(row))
		msg.ReplyMarkup = userActionsKeyboard(row)
		_, _ = r.bot.Send(msg)
	}
}

func (r *Router) handleTrigger(ctx context.Context, chatID int64, arg string) {
	id, ok := parseID(arg)
	if !ok {
		r.sendText(chatID, "Invalid user id. Example: /trigger 3")
		return
	}
	ack, err := r.admin.Trigger(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.sendText(chatID, fmt.Sprintf("User %d not found.", id))
	case err != nil:
		r.log.Error("trigger failed", zap.Error(err), zap.Int64("user_id", id))
		r.sendText(chatID, "Could not trigger the report.")
	default:
		r.sendText(chatID, "▶️ "+ack)
	}
}

func (r *Router) handleReset(ctx context.Context, chatID int64, arg string) {
	id, ok := parseID(arg)
	if !ok {
		r.sendText(chatID, "Invalid recipient id. Example: /reset 7")
		return
	}
	err := r.admin.ResetRecipient(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.sendText(chatID, fmt.Sprintf("Recipient %d not found.", id))
	case err != nil:
		r.log.Error("reset failed", zap.Error(err), zap.Int64("recipient_id", id))
		r.sendText(chatID, "Could not reset the recipient.")
	default:
		r.sendText(chatID, fmt.Sprintf("♻️ Recipient %d reset. The next run will send again.", id))
	}
}

// --- Free-form dispatcher (for commands sent without an argument) ---

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	switch r.getPending(chatID) {
	case pendingTrigger:
		r.clearPending(chatID)
		r.handleTrigger(ctx, chatID, text)
	case pendingReset:
		r.clearPending(chatID)
		r.handleReset(ctx, chatID, text)
	default:
		// No pending flow: ignore free-form message
	}
}

func formatUser(row admin.UserOverview) string {
	u := row.User
	state := "✅ Active"
	if u.EmailServicePaused {
		state = "⏸ Paused"
	}
	var b strings.Builder
	fmt.Fprintf(&b, userFmt, u.ID, u.DisplayName(), u.Email, u.DailyTargetMin, u.DailyEmailTime, state)
	if len(row.Recipients) == 0 {
		b.WriteString(noRecipientsText)
		return b.String()
	}
	for _, rc := range row.Recipients {
		last := "never"
		if rc.LastSentDate != nil {
			last = *rc.LastSentDate
		}
		fmt.Fprintf(&b, recipientFmt, rc.ID, rc.Email, last)
	}
	return b.String()
}
