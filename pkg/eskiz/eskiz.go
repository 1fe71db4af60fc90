// Package eskiz wraps the Eskiz SMS provider's auth flow. The provider
// issues short-lived bearer tokens against account credentials; the
// refresher serializes refreshes so concurrent senders share one token.
package eskiz

import (
	"context"

	eskizapi "github.com/iota-uz/eskiz"
)

type Config interface {
	Email() string
	Password() string
}

type config struct {
	email    string
	password string
}

func NewConfig(email, password string) Config {
	return &config{email: email, password: password}
}

func (c *config) Email() string    { return c.email }
func (c *config) Password() string { return c.password }

type TokenRefresher interface {
	CurrentToken() string
	RefreshToken(ctx context.Context) (string, error)
}

func NewTokenRefresher(cfg Config) TokenRefresher {
	return &tokenRefresher{
		login: apiLogin(eskizapi.NewAPIClient(eskizapi.NewConfiguration())),
		cfg:   cfg,
	}
}
