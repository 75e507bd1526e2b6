package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier posts alerts to a chat through the Bot API sendMessage
// method, formatted as MarkdownV2. Sends are paced to stay under the
// per-chat limit of about one message per second.
type TelegramNotifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewTelegramNotifier creates a notifier for bot token and chat id.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

type sendMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// apiReply is the envelope of every Bot API response.
type apiReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	body, err := json.Marshal(sendMessage{
		ChatID:    t.chatID,
		Text:      telegramText(alert),
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := t.baseURL + "/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	var reply apiReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil || resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, reply.Description)
	}
	if !reply.OK {
		return fmt.Errorf("telegram: rejected: %s", reply.Description)
	}

	slog.Debug("[telegram] alert sent", slog.String("title", alert.Title))
	return nil
}

func telegramText(a Alert) string {
	icon := "ℹ️"
	switch a.Level {
	case AlertWarning:
		icon = "⚠️"
	case AlertCritical:
		icon = "🚨"
	}
	return icon + " *" + escapeMarkdown(a.Title) + "*\n\n" + escapeMarkdown(a.Message)
}

// MarkdownV2 reserves these characters everywhere outside entities.
const markdownReserved = "_*[]()~`>#+-=|{}.!\\"

func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownReserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
