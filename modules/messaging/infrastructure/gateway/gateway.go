// Package gateway delivers outbound AI responses to the external
// platforms a tenant connects. One sender per platform name; unknown
// platforms fail the dispatch so the message is marked undelivered.
package gateway

import (
	"context"
	"fmt"

	"github.com/talkbase/talkbase/modules/messaging/domain/entities/platform"
)

// Router fans Send calls out to the registered platform sender.
type Router struct {
	senders map[string]platform.Gateway
}

func NewRouter() *Router {
	return &Router{senders: make(map[string]platform.Gateway)}
}

func (r *Router) RegisterPlatform(name string, sender platform.Gateway) {
	r.senders[name] = sender
}

func (r *Router) Send(ctx context.Context, params platform.SendParams) error {
	sender, found := r.senders[params.Platform]
	if !found {
		return fmt.Errorf("no gateway registered for platform: %s", params.Platform)
	}
	return sender.Send(ctx, params)
}
