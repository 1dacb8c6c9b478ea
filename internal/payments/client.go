package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUpstreamUnavailable is returned when the payment processor cannot be
// reached or answers with a server error. The current operation aborts;
// recovery is the caller's next attempt, no queue is kept.
var ErrUpstreamUnavailable = errors.New("payment processor unavailable")

// Client calls the payment processor's refund API. Requests are
// form-encoded and keyed by payment-intent id, authenticated with a
// bearer key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient constructs a Client with a standard network timeout.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// RequestRefund asks the processor to refund the full captured amount for
// a payment intent.
func (c *Client) RequestRefund(ctx context.Context, paymentIntentID string, amountCents int64) error {
	if paymentIntentID == "" {
		return fmt.Errorf("request refund: missing payment intent id")
	}

	form := url.Values{}
	form.Set("payment_intent", paymentIntentID)
	form.Set("amount", strconv.FormatInt(amountCents, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/refunds", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build refund request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: refund returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("refund rejected (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
