// Package notify delivers cycle summaries and position alerts to a
// Telegram chat, paging long messages at line boundaries and pacing sends
// since a full top-20 movers report routinely exceeds Telegram's
// 4096-character limit.
package notify

import (
	"fmt"
	"io/ioutil"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxMessageLength = 4000
	minSendInterval  = 400 * time.Millisecond
	chatIDFile       = "chat_id.txt"
)

// Notifier sends paced, length-bounded messages to one Telegram chat. A
// nil *Notifier is valid and every method on it is a no-op, so callers can
// run with notifications disabled without special-casing every send site.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64

	mu       sync.Mutex
	lastSent time.Time

	pending sync.Map // sigID -> interface{}
}

// New builds a Notifier from a bot token. An empty token is not an error:
// it yields a nil Notifier so the caller can keep calling Send
// unconditionally.
func New(token string, chatID int64) (*Notifier, error) {
	if token == "" {
		log.Println("[notify] TELEGRAM_BOT_TOKEN not set, notifications disabled")
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	log.Printf("[notify] authorized as %s", bot.Self.UserName)

	n := &Notifier{bot: bot, chatID: chatID}
	if n.chatID == 0 {
		n.chatID = n.loadChatID()
	}
	if n.chatID != 0 {
		log.Printf("[notify] using persisted chat id %d", n.chatID)
	}
	return n, nil
}

func (n *Notifier) loadChatID() int64 {
	data, err := ioutil.ReadFile(chatIDFile)
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (n *Notifier) saveChatID(id int64) {
	if err := ioutil.WriteFile(chatIDFile, []byte(fmt.Sprintf("%d", id)), 0644); err != nil {
		log.Printf("[notify] failed to persist chat id: %v", err)
	}
}

// Send queues text for delivery, splitting it into ≤4000-char chunks on
// line boundaries and pacing sends at least 400ms apart so a long report
// never trips Telegram's rate limit.
func (n *Notifier) Send(text string) {
	if n == nil || n.bot == nil || n.chatID == 0 {
		return
	}
	go n.sendPaced(text)
}

func (n *Notifier) sendPaced(text string) {
	for _, chunk := range splitMessage(text, maxMessageLength) {
		n.pace()
		msg := tgbotapi.NewMessage(n.chatID, chunk)
		msg.ParseMode = "Markdown"
		if _, err := n.bot.Send(msg); err != nil {
			log.Printf("[notify] send failed: %v", err)
		}
	}
}

func (n *Notifier) pace() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if wait := minSendInterval - time.Since(n.lastSent); wait > 0 {
		time.Sleep(wait)
	}
	n.lastSent = time.Now()
}

// splitMessage breaks text into chunks of at most limit characters,
// breaking only on "\n" boundaries. A single line longer than limit is
// hard-split as a last resort.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		for len(line) > limit {
			flush()
			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}
		if cur.Len()+len(line)+1 > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}
