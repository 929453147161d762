package services

// Notifier delivers real-time events to connected participants. The
// WebSocket hub implements it; REST and real-time paths share it so both
// produce the same side effects.
type Notifier interface {
	Broadcast(conversationID, event string, payload interface{})
	NotifyIdentity(identityID, event string, payload interface{}) bool
	IsConnected(identityID string) bool
}

type NopNotifier struct{}

func (NopNotifier) Broadcast(string, string, interface{})           {}
func (NopNotifier) NotifyIdentity(string, string, interface{}) bool { return false }
func (NopNotifier) IsConnected(string) bool                         { return false }

// Events pushed to clients.
const (
	EventConversationRequest  = "conversation:request"
	EventConversationAccepted = "conversation:accepted"
	EventConversationRejected = "conversation:rejected"
	EventConversationEnded    = "conversation:ended"
	EventMessageNew           = "message:new"
	EventMessageDelivered     = "message:delivered"
	EventMessagesRead         = "messages:read"
	EventPartnerStatusChanged = "partner:status:changed"
)
