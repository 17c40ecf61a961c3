package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"git.home.luguber.info/inful/matrixci/internal/errors"
)

// WebhookTransport POSTs payloads as JSON to a fixed URL.
type WebhookTransport struct {
	url    string
	client *http.Client
}

func NewWebhookTransport(url string) *WebhookTransport {
	return &WebhookTransport{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookTransport) Name() string { return "webhook" }

func (w *WebhookTransport) Deliver(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, errors.CategoryNotify, errors.SeverityWarning, "failed to marshal notification payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.CategoryNotify, errors.SeverityWarning, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CategoryNetwork, errors.SeverityWarning, "webhook request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(errors.CategoryNotify, errors.SeverityWarning,
			fmt.Sprintf("webhook returned status %d", resp.StatusCode)).WithContext("url", w.url)
	}
	return nil
}
