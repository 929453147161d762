package wsocket

import (
	"context"
	"encoding/json"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/metrics"
	"consult_gateway_go_backend/internal/models"
	"consult_gateway_go_backend/internal/services"
)

// ConversationLookup loads a conversation on behalf of a participant.
// *services.ConversationService satisfies it.
type ConversationLookup interface {
	Get(ctx context.Context, caller services.Party, id string) (*models.Conversation, error)
}

// relayedEvents maps each call event a client sends to the event its peer receives.
var relayedEvents = map[string]string{
	EventCallInitiate: EventCallIncoming,
	EventCallAccept:   EventCallAccepted,
	EventCallReject:   EventCallRejected,
	EventCallEnd:      EventCallEnded,
	EventCallSignal:   EventCallSignal,
}

// RelayedSignal wraps the caller's payload, passed through untouched.
type RelayedSignal struct {
	ConversationID string          `json:"conversationId"`
	From           string          `json:"from"`
	FromRole       models.Role     `json:"fromRole"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Relay forwards call negotiation between the two participants of a
// conversation. It keeps no call state.
type Relay struct {
	conversations ConversationLookup
	notifier      services.Notifier
}

func NewRelay(conversations ConversationLookup, notifier services.Notifier) *Relay {
	return &Relay{conversations: conversations, notifier: notifier}
}

func IsCallEvent(event string) bool {
	_, ok := relayedEvents[event]
	return ok
}

// Forward delivers event to the other participant of the conversation named
// in data. It fails with PEER_OFFLINE when the peer has no connection.
func (r *Relay) Forward(ctx context.Context, caller services.Party, event string, data json.RawMessage) error {
	outEvent, ok := relayedEvents[event]
	if !ok {
		return apperrors.NewValidationError("unknown call event " + event)
	}
	var ref conversationRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.ConversationID == "" {
		return apperrors.NewValidationError("conversationId is required")
	}
	conv, err := r.conversations.Get(ctx, caller, ref.ConversationID)
	if err != nil {
		return err
	}

	delivered := r.notifier.NotifyIdentity(caller.PeerID(conv), outEvent, RelayedSignal{
		ConversationID: conv.ID,
		From:           caller.ID(),
		FromRole:       caller.Role(),
		Payload:        data,
	})
	if !delivered {
		metrics.SignalsRelayed.WithLabelValues(event, "peer_offline").Inc()
		return apperrors.NewPeerOfflineError()
	}
	metrics.SignalsRelayed.WithLabelValues(event, "relayed").Inc()
	return nil
}
