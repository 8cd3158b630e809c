package sink

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vantablack-labs/arbengine"
)

// errorCooldown is the anti-spam window both bots apply to repeated
// error alerts, matching send_telegram_alert's "skip duplicate error
// alerts within 5-minute cooldown".
const errorCooldown = 300 * time.Second

// errorKeyLen truncates a message to its first 100 characters before
// using it as a dedup key, matching send_telegram_alert's
// error_key = msg[:100].
const errorKeyLen = 100

// WebhookSink posts best-effort alerts to Telegram and/or Discord.
// Every send runs on its own goroutine and swallows its own errors —
// grounded on both bots wrapping send_telegram_alert/send_discord_alert
// in a bare `except Exception: pass`, since a notification failure must
// never interrupt scanning or execution.
type WebhookSink struct {
	httpClient *http.Client

	telegramBotToken string
	telegramChatID   string
	discordWebhook   string

	mu         sync.Mutex
	lastErrors map[string]time.Time
}

// NewWebhookSink builds a WebhookSink. Empty strings disable the
// corresponding channel, matching both bots' "if not TOKEN or not
// CHAT_ID: return" guard.
func NewWebhookSink(telegramBotToken, telegramChatID, discordWebhook string) *WebhookSink {
	return &WebhookSink{
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		telegramBotToken: telegramBotToken,
		telegramChatID:   telegramChatID,
		discordWebhook:   discordWebhook,
		lastErrors:       make(map[string]time.Time),
	}
}

// Record alerts on execution and error events only — spreads and
// state changes are too frequent to page a human over, matching every
// bot's alert call sites (only execute_* and top-level exception
// handlers call send_telegram_alert/send_discord_alert).
func (w *WebhookSink) Record(evt arbengine.Event) {
	switch evt.Kind {
	case arbengine.EventExecution:
		w.alert(evt.Message, false)
	case arbengine.EventError:
		w.alert(evt.Message, true)
	}
}

func (w *WebhookSink) alert(msg string, isError bool) {
	if isError && w.isCoolingDown(msg) {
		return
	}
	go w.sendTelegram(msg)
	go w.sendDiscord(msg, isError)
}

func (w *WebhookSink) isCoolingDown(msg string) bool {
	key := msg
	if len(key) > errorKeyLen {
		key = key[:errorKeyLen]
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if last, ok := w.lastErrors[key]; ok && now.Sub(last) < errorCooldown {
		return true
	}
	w.lastErrors[key] = now
	return false
}

func (w *WebhookSink) sendTelegram(msg string) {
	if w.telegramBotToken == "" || w.telegramChatID == "" {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"chat_id":    w.telegramChatID,
		"text":       msg,
		"parse_mode": "HTML",
	})
	if err != nil {
		return
	}
	url := "https://api.telegram.org/bot" + w.telegramBotToken + "/sendMessage"
	w.post(url, payload)
}

func (w *WebhookSink) sendDiscord(msg string, isError bool) {
	if w.discordWebhook == "" {
		return
	}
	color := 0x00ff00
	if isError {
		color = 0xff0000
	}
	payload, err := json.Marshal(map[string]interface{}{
		"embeds": []map[string]interface{}{{
			"title":       "arbengine",
			"description": msg,
			"color":       color,
		}},
	})
	if err != nil {
		return
	}
	w.post(w.discordWebhook, payload)
}

func (w *WebhookSink) post(url string, payload []byte) {
	resp, err := w.httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("sink: webhook post failed")
		return
	}
	defer resp.Body.Close()
}
