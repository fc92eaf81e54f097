package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"modelguard/internal/model"
)

// WebhookNotifier POSTs the alert record as JSON to a chat or paging
// webhook.
type WebhookNotifier struct {
	url       string
	modelName string
	client    *http.Client
}

func NewWebhookNotifier(url, modelName string) *WebhookNotifier {
	return &WebhookNotifier{
		url:       url,
		modelName: modelName,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Notify(ctx context.Context, record model.AlertRecord) error {
	body, err := json.Marshal(map[string]any{
		"model": n.modelName,
		"alert": record,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
