package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// EventRoomScraped is sent after every successful scrape.
const EventRoomScraped = "room.scraped"

// SignatureHeader carries "sha256=<hex HMAC of the body>" when a secret is set.
const SignatureHeader = "X-Livebox-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent creates an event with a fresh id.
func NewEvent(eventType, requestID string, data any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Notifier delivers events to one endpoint.
type Notifier struct {
	url    string
	secret string
	http   *resty.Client
	logger *slog.Logger
	delays []time.Duration

	wg sync.WaitGroup
}

// New creates a Notifier posting to url. A nil Notifier is returned for an
// empty url; its methods are no-ops.
func New(url, secret string, logger *slog.Logger) *Notifier {
	if url == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		url:    url,
		secret: secret,
		http: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("User-Agent", "Livebox-Webhook/1.0"),
		logger: logger.With("component", "webhook"),
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// Deliver sends an event synchronously.
func (n *Notifier) Deliver(ctx context.Context, event *Event) error {
	if n == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req := n.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if n.secret != "" {
		req.SetHeader(SignatureHeader, Sign(n.secret, body))
	}

	resp, err := req.Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode())
	}
	return nil
}

// DeliverAsync sends an event in the background, retrying after 1s, 5s and 30s.
func (n *Notifier) DeliverAsync(event *Event) {
	if n == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for attempt, delay := range n.delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := n.Deliver(ctx, event)
			cancel()
			if err == nil {
				n.logger.Info("webhook delivered",
					"event", event.Type,
					"event_id", event.ID,
					"attempt", attempt+1,
				)
				return
			}
			n.logger.Warn("webhook delivery failed",
				"event", event.Type,
				"event_id", event.ID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		n.logger.Error("webhook delivery exhausted all retries",
			"event", event.Type,
			"event_id", event.ID,
		)
	}()
}

// Wait blocks until background deliveries finish or ctx ends, in which
// case the deliveries still pending are abandoned.
func (n *Notifier) Wait(ctx context.Context) error {
	if n == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
