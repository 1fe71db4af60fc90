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
	"github.com/talkbase/talkbase/pkg/eskiz"
)

const defaultSMSEndpoint = "https://notify.eskiz.uz/api/message/sms/send"

// SMSGateway delivers responses over the Eskiz SMS provider. Tokens are
// account-scoped and refreshed on a 401, not per message.
type SMSGateway struct {
	refresher eskiz.TokenRefresher
	client    *http.Client
	endpoint  string
	sender    string
}

type SMSGatewayOptions struct {
	Config   eskiz.Config
	Endpoint string
	Sender   string
	Timeout  time.Duration
}

func NewSMSGateway(opts SMSGatewayOptions) *SMSGateway {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultSMSEndpoint
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	return &SMSGateway{
		refresher: eskiz.NewTokenRefresher(opts.Config),
		client:    &http.Client{Timeout: opts.Timeout},
		endpoint:  opts.Endpoint,
		sender:    opts.Sender,
	}
}

func (g *SMSGateway) Send(ctx context.Context, params platform.SendParams) error {
	token := g.refresher.CurrentToken()
	if token == "" {
		refreshed, err := g.refresher.RefreshToken(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to obtain SMS token")
		}
		token = refreshed
	}

	status, err := g.post(ctx, token, params)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		token, err = g.refresher.RefreshToken(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to refresh SMS token")
		}
		status, err = g.post(ctx, token, params)
		if err != nil {
			return err
		}
	}
	if status >= 300 {
		return fmt.Errorf("SMS delivery failed with status: %d", status)
	}
	return nil
}

func (g *SMSGateway) post(ctx context.Context, token string, params platform.SendParams) (int, error) {
	body, err := json.Marshal(map[string]string{
		"mobile_phone": params.RecipientExternalID,
		"message":      params.Text,
		"from":         g.sender,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to encode SMS payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, errors.Wrap(err, "failed to build SMS request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "SMS delivery failed")
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, nil
}
