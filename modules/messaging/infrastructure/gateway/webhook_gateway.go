package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/platform"
)

// WebhookGateway posts outbound messages to a platform connector's
// webhook URL. The credential blob carries the per-tenant endpoint and
// auth token, decrypted by the platform-account subsystem upstream.
type WebhookGateway struct {
	client *http.Client
}

type webhookCredentials struct {
	URL       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

type webhookPayload struct {
	RecipientExternalID string `json:"recipient_external_id"`
	Text                string `json:"text"`
}

func NewWebhookGateway(timeout time.Duration) *WebhookGateway {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookGateway{client: &http.Client{Timeout: timeout}}
}

func (g *WebhookGateway) Send(ctx context.Context, params platform.SendParams) error {
	var creds webhookCredentials
	if err := json.Unmarshal(params.Credentials, &creds); err != nil {
		return errors.Wrap(err, "failed to decode webhook credentials")
	}
	if creds.URL == "" {
		return errors.New("webhook credentials missing URL")
	}

	body, err := json.Marshal(webhookPayload{
		RecipientExternalID: params.RecipientExternalID,
		Text:                params.Text,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	if creds.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.AuthToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "webhook delivery failed")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook delivery failed with status: %d", resp.StatusCode)
	}
	return nil
}
