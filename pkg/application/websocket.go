package application

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/talkbase/talkbase/pkg/composables"
	"github.com/talkbase/talkbase/pkg/ws"
)

// Channel names. Dashboard channels carry tenant-wide conversation
// updates, conversation channels carry a single conversation's messages
// and agent channels carry assignment notifications.
func DashboardChannel(tenantID uuid.UUID) string {
	return fmt.Sprintf("dashboard_%s", tenantID)
}

func ConversationChannel(conversationID uuid.UUID) string {
	return fmt.Sprintf("conversation_%s", conversationID)
}

func AgentChannel(agentID uuid.UUID) string {
	return fmt.Sprintf("user_%s_dashboard", agentID)
}

type HuberOptions struct {
	Logger      *logrus.Logger
	CheckOrigin func(r *http.Request) bool
}

// Huber is the realtime fanout surface. Broadcast is best-effort:
// subscribers with full buffers are skipped, never blocked on.
type Huber interface {
	http.Handler
	BroadcastToChannel(channel string, message []byte)
	ConnectionsInChannel(channel string) int
}

func NewHub(opts *HuberOptions) Huber {
	appHub := &huber{logger: opts.Logger}
	appHub.hub = ws.NewHub(&ws.HubOptions{
		Logger:      opts.Logger,
		CheckOrigin: opts.CheckOrigin,
		OnConnect:   appHub.onConnect,
	})
	return appHub
}

type huber struct {
	hub    ws.Huber
	logger *logrus.Logger
}

func (h *huber) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeHTTP(w, r)
}

// onConnect subscribes the connection based on the request: every tenant
// connection joins its dashboard, and the conversation_id and agent_id
// query parameters opt into narrower channels.
func (h *huber) onConnect(r *http.Request, hub *ws.Hub, conn *ws.Connection) error {
	tenantID, err := composables.UseTenantID(r.Context())
	if err != nil {
		return err
	}
	hub.JoinChannel(DashboardChannel(tenantID), conn)

	if raw := r.URL.Query().Get("conversation_id"); raw != "" {
		conversationID, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid conversation_id: %w", err)
		}
		hub.JoinChannel(ConversationChannel(conversationID), conn)
	}
	if raw := r.URL.Query().Get("agent_id"); raw != "" {
		agentID, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid agent_id: %w", err)
		}
		hub.JoinChannel(AgentChannel(agentID), conn)
	}
	return nil
}

func (h *huber) BroadcastToChannel(channel string, message []byte) {
	h.hub.BroadcastToChannel(channel, message)
}

func (h *huber) ConnectionsInChannel(channel string) int {
	return len(h.hub.ConnectionsInChannel(channel))
}
