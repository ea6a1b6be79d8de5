package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"paperbill/go_backend/internal/domain/billing"
)

// Client pulls payment events from the processor's poll endpoint. Network
// failures and 5xx responses are transient (GATEWAY_UNAVAILABLE) and
// retried with exponential backoff; a timed-out call is retried rather
// than assumed failed because money may already have moved externally.
type Client struct {
	BaseURL  string
	APIKey   string
	HTTP     *http.Client
	MaxTries uint
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{BaseURL: baseURL, APIKey: apiKey, HTTP: httpClient, MaxTries: 4}
}

// PollEvents fetches events recorded after the given cursor. The cursor
// is the last processed external payment ref, empty for a full fetch.
func (c *Client) PollEvents(ctx context.Context, cursor string) ([]PaymentEvent, error) {
	operation := func() ([]PaymentEvent, error) {
		events, err := c.fetch(ctx, cursor)
		if err != nil && !billing.IsCode(err, billing.CodeGatewayUnavailable) {
			return nil, backoff.Permanent(err)
		}
		return events, err
	}
	events, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.MaxTries))
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) fetch(ctx context.Context, cursor string) ([]PaymentEvent, error) {
	urlStr := strings.TrimRight(c.BaseURL, "/") + "/v1/payment-events"
	if cursor != "" {
		urlStr += "?after=" + cursor
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		log.Printf("gateway: poll request failed err=%v", err)
		return nil, billing.NewError(billing.CodeGatewayUnavailable, "gateway poll: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.Printf("gateway: poll status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return nil, billing.NewError(billing.CodeGatewayUnavailable, "gateway status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Events []PaymentEvent `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, billing.NewError(billing.CodeValidation, "malformed gateway response: %v", err)
	}
	return out.Events, nil
}
