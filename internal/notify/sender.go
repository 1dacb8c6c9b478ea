// Package notify dispatches fire-and-forget notifications. Failures are
// logged, never retried synchronously; at-least-once delivery is handled
// by the callers' periodic cycles.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/classops/registrar/internal/log"
)

// Message is one notification to dispatch.
type Message struct {
	To       string `json:"to"`
	Template string `json:"template"`
	ClassID  string `json:"class_id,omitempty"`
}

// Sender dispatches messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// HTTPSender posts messages to a mail-dispatch endpoint.
type HTTPSender struct {
	endpoint string
	http     *http.Client
}

// NewHTTPSender constructs an HTTPSender with a standard network timeout.
func NewHTTPSender(endpoint string) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts a single message. Non-2xx responses are errors; the caller
// decides whether to try again on a later cycle.
func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	buf, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// LogSender logs messages instead of delivering them. Used when no
// dispatch endpoint is configured.
type LogSender struct{}

// Send logs the message.
func (LogSender) Send(ctx context.Context, msg Message) error {
	log.WithComponent("notify").Info().
		Str("to", msg.To).
		Str("template", msg.Template).
		Str("class_id", msg.ClassID).
		Msg("notification (log only, no endpoint configured)")
	return nil
}
