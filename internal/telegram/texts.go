package telegram

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/samtjhia/SamsStudyTracker/internal/admin"
)

// UI texts in English
const (
	startText = "📚 Study report admin.\n\n" +
		"/users: list users, their accountability emails and last-sent dates\n" +
		"/trigger <userID>: send today's report now (already-sent emails are skipped)\n" +
		"/reset <recipientID>: clear the last-sent date so the next run sends again\n\n" +
		"Failed deliveries are reported here."
	askUserIDText      = "Send the user id to trigger:"
	askRecipientIDText = "Send the recipient id to reset:"
	noUsersText        = "No users yet."
	noRecipientsText   = "• No accountability emails\n"
	userFmt            = "👤 #%d %s <%s>\n• Target: %dm at %s\n• Email service: %s\n"
	recipientFmt       = "• ✉️ #%d %s (last sent: %s)\n"
)

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/users"),
			tgbotapi.NewKeyboardButton("/help"),
		),
	)
}

// userActionsKeyboard offers a trigger button and one reset button per
// recipient that has a last-sent date.
func userActionsKeyboard(row admin.UserOverview) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("▶️ Send report now", "trigger:"+strconv.FormatInt(row.User.ID, 10)),
		),
	}
	for _, rc := range row.Recipients {
		if rc.LastSentDate == nil {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("♻️ Reset %s", rc.Email), "reset:"+strconv.FormatInt(rc.ID, 10)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
