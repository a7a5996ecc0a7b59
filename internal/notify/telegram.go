package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const telegramAPIURL = "https://api.telegram.org/bot"

// TelegramChannel delivers notifications via the Telegram Bot API.
type TelegramChannel struct {
	botToken   string
	chatID     string
	baseURL    string
	httpClient *http.Client
}

// NewTelegramChannel creates a Telegram notification channel.
func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPIURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewTelegramChannelWithBaseURL creates a channel with a custom API base
// URL, used in tests.
func NewTelegramChannelWithBaseURL(botToken, chatID, baseURL string) *TelegramChannel {
	ch := NewTelegramChannel(botToken, chatID)
	ch.baseURL = baseURL
	return ch
}

// Name returns the channel identifier.
func (c *TelegramChannel) Name() string { return "telegram" }

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

// Send posts the notification as a Markdown message to the configured chat.
func (c *TelegramChannel) Send(ctx context.Context, n Notification) error {
	text := fmt.Sprintf("%s *%s*\n\n%s", urgencyIcon(n.Urgency), n.Title, n.Message)

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    c.chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := c.baseURL + c.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var parsed sendMessageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram API error (code %d): %s", parsed.ErrorCode, parsed.Description)
	}

	return nil
}

func urgencyIcon(u Urgency) string {
	switch u {
	case UrgencyUrgent:
		return "🚨"
	case UrgencyWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
