package wsocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"consult_gateway_go_backend/internal/auth"
	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/metrics"
	"consult_gateway_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	eventTimeout    = 15 * time.Second
	presenceTimeout = 5 * time.Second
)

type Config struct {
	PingInterval time.Duration
	SendBuffer   int
	CheckOrigin  func(r *http.Request) bool
}

// Handler admits real-time connections and dispatches their events to the
// same services the REST surface uses.
type Handler struct {
	authenticator *auth.Authenticator
	hub           *Hub
	conversations *services.ConversationService
	messages      *services.MessageService
	presence      *services.PresenceService
	relay         *Relay
	upgrader      websocket.Upgrader
	pingInterval  time.Duration
	sendBuffer    int
	logger        zerolog.Logger
}

func NewHandler(
	authenticator *auth.Authenticator,
	hub *Hub,
	conversations *services.ConversationService,
	messages *services.MessageService,
	presence *services.PresenceService,
	cfg Config,
	logger zerolog.Logger,
) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	return &Handler{
		authenticator: authenticator,
		hub:           hub,
		conversations: conversations,
		messages:      messages,
		presence:      presence,
		relay:         NewRelay(conversations, hub),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		pingInterval: cfg.PingInterval,
		sendBuffer:   cfg.SendBuffer,
		logger:       logger.With().Str("component", "gateway").Logger(),
	}
}

// HandleWebSocket authenticates before upgrading, so a rejected credential
// gets an ordinary HTTP error naming the failure class.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token, err := auth.ExtractToken(c.Request)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	identity, err := h.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil {
		h.logger.Debug().Err(err).Msg("Connection rejected")
		apperrors.HandleError(c, err)
		return
	}
	party, err := services.PartyFor(identity)
	if err != nil {
		apperrors.HandleError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("identity_id", identity.ID).Msg("Upgrade failed")
		return
	}

	client := newClient(conn, identity, party, h.sendBuffer, h.logger)
	h.admit(client)
	go client.writePump(h.pingInterval)
	client.readPump(h.pingInterval, h.dispatch)
	h.release(client)
}

func (h *Handler) admit(client *Client) {
	if previous := h.hub.registry.Register(client); previous != nil {
		client.logger.Info().Str("replaced_connection_id", previous.id).Msg("Connection replaced")
	} else {
		metrics.ActiveConnections.Inc()
	}

	client.emit(EventConnected, "", ConnectedPayload{
		ConnectionID: client.id,
		IdentityID:   client.identity.ID,
		Role:         string(client.identity.Role),
		Name:         client.identity.Name,
	})

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	h.presence.Connected(ctx, client.identity)
	client.logger.Info().Str("role", string(client.identity.Role)).Msg("Connection admitted")
}

// release runs when the read loop ends. Presence changes only if no newer
// connection has taken the identity's place.
func (h *Handler) release(client *Client) {
	client.close()
	h.hub.LeaveAll(client)
	if !h.hub.registry.Unregister(client) {
		client.logger.Debug().Msg("Superseded connection closed")
		return
	}
	metrics.ActiveConnections.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	h.presence.Disconnected(ctx, client.identity)
	client.logger.Info().Msg("Connection closed")
}

// dispatch handles one client event. Failures are always acknowledged;
// successes only when the client asked for an ack. A panicking handler is
// reported on the ack and never tears the connection down.
func (h *Handler) dispatch(client *Client, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			client.logger.Error().Interface("panic", r).Str("event", env.Event).Msg("Recovered from event handler panic")
			client.emit(EventAck, env.Ack, ackError(apperrors.New500Error(fmt.Errorf("panic in %s: %v", env.Event, r))))
		}
	}()

	data, err := h.handle(ctx, client, env)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeInternalServerError) {
			client.logger.Error().Err(apperrors.AsCustomError(err).Internal).Str("event", env.Event).Msg("Event failed")
		}
		client.emit(EventAck, env.Ack, ackError(err))
		return
	}
	if env.Ack != "" {
		client.emit(EventAck, env.Ack, ackOK(data))
	}
}

func (h *Handler) handle(ctx context.Context, client *Client, env Envelope) (interface{}, error) {
	switch env.Event {
	case EventJoin:
		return h.join(ctx, client, env.Data)
	case EventLeave:
		ref, err := decodeRef(env.Data)
		if err != nil {
			return nil, err
		}
		h.hub.Leave(ref.ConversationID, client)
		return nil, nil
	case EventSend:
		var input services.SendMessageInput
		if err := decode(env.Data, &input); err != nil {
			return nil, err
		}
		msg, err := h.messages.Send(ctx, client.party, input, services.TransportWebSocket)
		if err != nil {
			return nil, err
		}
		return msg, nil
	case EventMarkRead:
		ref, err := decodeRef(env.Data)
		if err != nil {
			return nil, err
		}
		conv, err := h.messages.MarkRead(ctx, client.party, ref.ConversationID)
		if err != nil {
			return nil, err
		}
		return conv, nil
	case EventTypingStart, EventTypingStop:
		return nil, h.typing(client, env.Event == EventTypingStart, env.Data)
	}
	if IsCallEvent(env.Event) {
		return nil, h.relay.Forward(ctx, client.party, env.Event, env.Data)
	}
	return nil, apperrors.NewValidationError("unknown event " + env.Event)
}

// join subscribes the client to the conversation room and marks its inbound
// messages read.
func (h *Handler) join(ctx context.Context, client *Client, data json.RawMessage) (interface{}, error) {
	ref, err := decodeRef(data)
	if err != nil {
		return nil, err
	}
	if _, err := h.conversations.Get(ctx, client.party, ref.ConversationID); err != nil {
		return nil, err
	}
	h.hub.Join(ref.ConversationID, client)

	conv, err := h.messages.MarkRead(ctx, client.party, ref.ConversationID)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (h *Handler) typing(client *Client, typing bool, data json.RawMessage) error {
	ref, err := decodeRef(data)
	if err != nil {
		return err
	}
	if !h.hub.InRoom(ref.ConversationID, client) {
		return apperrors.NewValidationError("Join the conversation before sending typing indicators")
	}
	h.hub.BroadcastExcept(ref.ConversationID, EventTypingStatus, TypingStatus{
		ConversationID: ref.ConversationID,
		IdentityID:     client.identity.ID,
		Role:           string(client.identity.Role),
		Typing:         typing,
	}, client)
	return nil
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return apperrors.NewValidationError("event payload is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.NewValidationError("invalid event payload")
	}
	return nil
}

func decodeRef(data json.RawMessage) (conversationRef, error) {
	var ref conversationRef
	if err := decode(data, &ref); err != nil {
		return ref, err
	}
	if ref.ConversationID == "" {
		return ref, apperrors.NewValidationError("conversationId is required")
	}
	return ref, nil
}
