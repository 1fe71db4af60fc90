package eskiz

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	eskizapi "github.com/iota-uz/eskiz"
)

const (
	loginAttempts  = 3
	loginRetryWait = time.Second
)

// loginFunc performs one credential exchange against the provider.
type loginFunc func(ctx context.Context, email, password string) (string, error)

type tokenRefresher struct {
	login     loginFunc
	cfg       Config
	retryWait time.Duration

	mu    sync.Mutex
	token string
}

// CurrentToken returns the last token obtained, empty before the first
// refresh.
func (r *tokenRefresher) CurrentToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// RefreshToken exchanges the account credentials for a fresh bearer
// token, retrying transient login failures with a linear backoff. One
// refresh runs at a time; concurrent callers block and pick up the
// result through CurrentToken.
func (r *tokenRefresher) RefreshToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= loginAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		token, err := r.login(ctx, r.cfg.Email(), r.cfg.Password())
		if err == nil {
			r.token = token
			return token, nil
		}
		lastErr = err

		if attempt == loginAttempts {
			break
		}
		wait := r.retryWait
		if wait == 0 {
			wait = loginRetryWait
		}
		timer := time.NewTimer(time.Duration(attempt) * wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", errors.Wrap(lastErr, "eskiz login failed")
}

func apiLogin(client *eskizapi.APIClient) loginFunc {
	return func(ctx context.Context, email, password string) (string, error) {
		resp, httpResp, err := client.DefaultApi.
			Login(ctx).
			Email(email).
			Password(password).
			Execute()
		if httpResp != nil {
			_ = httpResp.Body.Close()
		}
		if err != nil {
			return "", err
		}

		data := resp.GetData()
		if data.Token == nil || data.GetToken() == "" {
			return "", errors.New("auth response carried no token")
		}
		return data.GetToken(), nil
	}
}
