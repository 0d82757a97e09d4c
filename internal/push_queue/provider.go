package push_queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Payload limits enforced by the external push provider.
const (
	MaxTitleLen     = 32
	MaxBodyLen      = 128
	MaxTargetURLLen = 256

	// SubscriberBatchCeiling is the provider's hard per-call limit; the
	// worker never hands more than this to one dispatch.
	SubscriberBatchCeiling = 100
)

var ErrPayloadTooLarge = errors.New("push notification payload exceeds provider limits")

// Notification is one rendered push notification body.
type Notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	TargetURL string `json:"target_url"`
}

// Provider delivers one notification to a bounded batch of subscribers.
type Provider interface {
	Notify(ctx context.Context, subscriberIDs []int64, n Notification) error
}

// NoopProvider is selected at startup when push delivery is disabled.
type NoopProvider struct{}

func (NoopProvider) Notify(context.Context, []int64, Notification) error {
	return nil
}

// APIProvider is a client for the external bulk push delivery API.
type APIProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewAPIProvider(baseURL, apiKey string) *APIProvider {
	return &APIProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type notifyRequest struct {
	SubscriberIDs []int64      `json:"subscriber_ids"`
	Notification  Notification `json:"notification"`
}

// Notify sends one bulk push call. Payloads over the provider's limits are
// rejected locally, before transmission.
func (p *APIProvider) Notify(ctx context.Context, subscriberIDs []int64, n Notification) error {
	if len(subscriberIDs) > SubscriberBatchCeiling {
		return fmt.Errorf("%w: %d subscribers exceeds batch ceiling %d", ErrPayloadTooLarge, len(subscriberIDs), SubscriberBatchCeiling)
	}
	if len(n.Title) > MaxTitleLen || len(n.Body) > MaxBodyLen || len(n.TargetURL) > MaxTargetURLLen {
		return ErrPayloadTooLarge
	}

	jsonData, err := json.Marshal(notifyRequest{SubscriberIDs: subscriberIDs, Notification: n})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/notifications", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("push provider returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
