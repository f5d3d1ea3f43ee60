package notify

import (
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callbacks bundles the handlers StartListener dispatches commands to.
// Any field left nil is simply skipped.
type Callbacks struct {
	Status func() string
	Stop   func()
	Report func() string
}

// StartListener polls Telegram long-poll updates and dispatches /status,
// /stop, /report commands, auto-capturing and persisting the chat ID on
// first contact.
func (n *Notifier) StartListener(cb Callbacks) {
	if n == nil || n.bot == nil {
		return
	}
	log.Println("[notify] listening for telegram events")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := n.bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		if n.chatID == 0 {
			n.chatID = update.Message.Chat.ID
			n.saveChatID(n.chatID)
			log.Printf("[notify] captured chat id %d", n.chatID)
			n.Send("Bot connected. Monitoring movers and managed positions.")
		}

		if !update.Message.IsCommand() {
			continue
		}

		switch update.Message.Command() {
		case "status":
			if cb.Status != nil {
				n.Send(cb.Status())
			}
		case "stop":
			if cb.Stop != nil {
				n.Send("*EMERGENCY STOP RECEIVED* — flattening managed positions.")
				cb.Stop()
			}
		case "report":
			if cb.Report != nil {
				n.Send(cb.Report())
			}
		}
	}
}
