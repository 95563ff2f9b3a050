// Package notify delivers OTP records to Telegram chats via the Bot API and
// renders them for display. The poll loop only sees the Notifier contract:
// a nil return is an acknowledged delivery, an error leaves the record
// unsent.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/otpwatch/go-otp-forwarder/internal/domain"
)

const defaultAPIBase = "https://api.telegram.org"

// TelegramClient sends formatted OTP notifications to a fixed set of admin
// chats.
type TelegramClient struct {
	token   string
	chatIDs []int64
	apiBase string
	client  *http.Client
}

// NewTelegramClient constructs a client for the given bot token and admin
// chat IDs.
func NewTelegramClient(token string, chatIDs []int64) *TelegramClient {
	return &TelegramClient{
		token:   token,
		chatIDs: chatIDs,
		apiBase: defaultAPIBase,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify renders msg and sends it to every configured admin chat. Delivery
// counts as acknowledged only when all chats accepted the message, so a
// partial failure keeps the record unsent and the next cycle retries the
// whole fan-out (duplicate sends to chats that already got it are possible;
// the at-most-once guarantee covers storage, not the downstream channel).
func (c *TelegramClient) Notify(ctx context.Context, msg domain.OTPMessage) error {
	text := FormatMessage(msg)
	for _, chatID := range c.chatIDs {
		if err := c.send(ctx, chatID, text); err != nil {
			return fmt.Errorf("chat %d: %w", chatID, err)
		}
	}
	log.Debug().Str("otp_id", msg.ID).Int("chats", len(c.chatIDs)).Msg("otp forwarded")
	return nil
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// send posts one message to one chat.
func (c *TelegramClient) send(ctx context.Context, chatID int64, text string) error {
	reqBody, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram status %d body=%q", resp.StatusCode, string(body))
	}

	var sr sendMessageResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return fmt.Errorf("decode telegram response: %w body=%q", err, string(body))
	}
	if !sr.OK {
		return fmt.Errorf("telegram rejected message: %s", sr.Description)
	}
	return nil
}
