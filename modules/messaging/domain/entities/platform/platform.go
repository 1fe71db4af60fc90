// Package platform abstracts the external messaging platforms a tenant
// connects (Telegram, WhatsApp, web widget). Credentials are opaque blobs
// managed by the tenant-account subsystem.
package platform

import "context"

const (
	// Dashboard marks traffic originating from the internal agent
	// dashboard; responses to it go out over the realtime fanout only.
	Dashboard = "dashboard"
)

type SendParams struct {
	Platform            string
	RecipientExternalID string
	Text                string
	Credentials         []byte
}

// Gateway delivers an outbound message to an external platform. Delivery
// failure marks the message failed but never rolls back the pipeline.
type Gateway interface {
	Send(ctx context.Context, params SendParams) error
}
