// Package telegram is the operator bot: it lists users, triggers reports,
// resets recipients and receives delivery-failure alerts. Only the configured
// admin chat is served.
package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/samtjhia/SamsStudyTracker/internal/admin"
)

// Pending state keys used when a command arrives without its argument.
const (
	pendingTrigger = "await_trigger_user_id"
	pendingReset   = "await_reset_recipient_id"
)

// BotAPI is the part of *tgbotapi.BotAPI the router uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Admin is the operator facade. *admin.Service implements it.
type Admin interface {
	Overview(ctx context.Context) ([]admin.UserOverview, error)
	Trigger(ctx context.Context, userID int64) (string, error)
	ResetRecipient(ctx context.Context, recipientID int64) error
}

// Router wires Telegram updates to handlers and holds minimal in-memory state.
type Router struct {
	bot         BotAPI
	log         *zap.Logger
	admin       Admin
	adminChatID int64

	state map[int64]string // chatID -> pending state
	mu    sync.RWMutex
}

// NewRouter creates a router serving adminChatID only.
func NewRouter(bot BotAPI, log *zap.Logger, adm Admin, adminChatID int64) *Router {
	return &Router{
		bot:         bot,
		log:         log,
		admin:       adm,
		adminChatID: adminChatID,
		state:       make(map[int64]string),
	}
}

func (r *Router) setPending(chatID int64, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = s
}

func (r *Router) getPending(chatID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[chatID]
}

func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		msg := upd.Message
		chatID := msg.Chat.ID
		if !r.allowed(chatID) {
			return
		}
		text := strings.TrimSpace(msg.Text)
		arg := commandArg(text)

		switch {
		case strings.HasPrefix(text, "/start"), strings.HasPrefix(text, "/help"):
			r.handleStart(chatID)
		case strings.HasPrefix(text, "/users"):
			r.handleUsers(ctx, chatID)
		case strings.HasPrefix(text, "/trigger"):
			if arg == "" {
				r.sendText(chatID, askUserIDText)
				r.setPending(chatID, pendingTrigger)
				return
			}
			r.handleTrigger(ctx, chatID, arg)
		case strings.HasPrefix(text, "/reset"):
			if arg == "" {
				r.sendText(chatID, askRecipientIDText)
				r.setPending(chatID, pendingReset)
				return
			}
			r.handleReset(ctx, chatID, arg)
		default:
			r.handleFreeForm(ctx, chatID, text)
		}
		return
	}

	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		if cb.Message == nil || !r.allowed(cb.Message.Chat.ID) {
			return
		}
		chatID := cb.Message.Chat.ID
		_ = r.answerCallback(cb.ID, "")

		switch data := cb.Data; {
		case strings.HasPrefix(data, "trigger:"):
			r.handleTrigger(ctx, chatID, strings.TrimPrefix(data, "trigger:"))
		case strings.HasPrefix(data, "reset:"):
			r.handleReset(ctx, chatID, strings.TrimPrefix(data, "reset:"))
		default:
			// Unknown callback: ignore silently
		}
	}
}

func (r *Router) allowed(chatID int64) bool {
	if chatID == r.adminChatID {
		return true
	}
	r.log.Warn("ignoring update from non-admin chat", zap.Int64("chat_id", chatID))
	return false
}

// SendMessage sends a plain text message to the given chat.
func (r *Router) SendMessage(chatID int64, text string) error {
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func commandArg(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}
