package wsocket

import (
	"encoding/json"

	apperrors "consult_gateway_go_backend/internal/errors"
)

// Client-to-server events.
const (
	EventJoin        = "conversation:join"
	EventLeave       = "conversation:leave"
	EventSend        = "message:send"
	EventMarkRead    = "messages:read"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"

	EventCallInitiate = "voice:call:initiate"
	EventCallAccept   = "voice:call:accept"
	EventCallReject   = "voice:call:reject"
	EventCallEnd      = "voice:call:end"
	EventCallSignal   = "voice:signal"
)

// Server-to-client events. Lifecycle and message events are named in the
// services package.
const (
	EventConnected    = "connected"
	EventAck          = "ack"
	EventTypingStatus = "typing:status"

	EventCallIncoming = "voice:call:incoming"
	EventCallAccepted = "voice:call:accepted"
	EventCallRejected = "voice:call:rejected"
	EventCallEnded    = "voice:call:ended"
)

// Envelope is a frame received from a client. Ack is an optional
// client-chosen id echoed back on the acknowledgment.
type Envelope struct {
	Event string          `json:"event"`
	Ack   string          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Ack   string      `json:"ack,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Ack is the outcome of one client event. Failures carry the same codes as
// the REST error bodies.
type Ack struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func ackOK(data interface{}) Ack {
	return Ack{Success: true, Data: data}
}

func ackError(err error) Ack {
	customErr := apperrors.AsCustomError(err)
	return Ack{Success: false, Message: customErr.Message, Code: customErr.Code}
}

func encode(event, ack string, data interface{}) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Ack: ack, Data: data})
}

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

type TypingStatus struct {
	ConversationID string `json:"conversationId"`
	IdentityID     string `json:"identityId"`
	Role           string `json:"role"`
	Typing         bool   `json:"typing"`
}

// ConnectedPayload is sent once a connection has been admitted.
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	IdentityID   string `json:"identityId"`
	Role         string `json:"role"`
	Name         string `json:"name,omitempty"`
}
