package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"paperbill/go_backend/internal/domain/billing"
)

// TelegramDispatcher posts reminders to a Telegram chat over the Bot API.
// The recipient in the payload is the chat id.
type TelegramDispatcher struct {
	BaseURL  string
	BotToken string
	HTTP     *http.Client
}

func NewTelegramDispatcher(baseURL, botToken string, httpClient *http.Client) *TelegramDispatcher {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &TelegramDispatcher{BaseURL: baseURL, BotToken: botToken, HTTP: httpClient}
}

func (d *TelegramDispatcher) Send(ctx context.Context, r Reminder) error {
	text := r.Subject
	if strings.TrimSpace(r.Body) != "" {
		text = r.Subject + "\n\n" + r.Body
	}
	base := strings.TrimRight(d.BaseURL, "/")
	urlStr := fmt.Sprintf("%s/bot%s/sendMessage", base, d.BotToken)
	payload := map[string]interface{}{
		"chat_id": r.Recipient,
		"text":    text,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.HTTP.Do(req)
	if err != nil {
		log.Printf("notify: telegram send failed invoice_id=%s err=%v", r.InvoiceID, err)
		return billing.NewError(billing.CodeDispatchFailed, "telegram send: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.Printf("notify: telegram send status=%d invoice_id=%s body=%s", resp.StatusCode, r.InvoiceID, strings.TrimSpace(string(msg)))
		return billing.NewError(billing.CodeDispatchFailed, "telegram status %d", resp.StatusCode)
	}
	return nil
}
