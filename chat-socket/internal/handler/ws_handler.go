package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/config"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/hub"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/metrics"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/service"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
	"github.com/weiawesome/wes-chat-socket/pkg/response"
)

const statusReady = "chat socket endpoint ready"

type WSHandler struct {
	hub      *hub.Hub
	service  service.ChatService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig, origins *OriginPolicy) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
	}
}

// HandleSocket upgrades websocket requests. Plain GETs get a status payload.
func (h *WSHandler) HandleSocket(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		response.Success(c, gin.H{"status": statusReady})
		return
	}

	l := log.Ctx(c.Request.Context())
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	// Handlers outlive the upgrade request; a disconnect must not cancel
	// work that is already in flight.
	ctx := log.WithFields(context.WithoutCancel(c.Request.Context()), log.FieldConnectionID, client.ID)

	h.service.HandleConnect(ctx, client)

	go client.WritePump()
	go func() {
		client.ReadPump(func(cl *hub.Client, message []byte) {
			h.handleMessage(ctx, cl, message)
		})
		h.service.HandleDisconnect(ctx, client)
	}()
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
		metrics.InboundEvents.WithLabelValues("invalid").Inc()
		client.SendEvent(domain.EventError, "", domain.NewErrorPayload(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	if userID := client.UserID(); userID != "" {
		ctx = log.WithFields(ctx, log.FieldUserID, userID)
	}
	ctx = log.WithFields(ctx, log.FieldEvent, env.Type)
	l := log.Ctx(ctx)

	switch env.Type {
	case domain.EventAuthenticate:
		var p domain.AuthenticatePayload
		if !h.decode(client, env, &p) {
			return
		}
		h.logFailure(ctx, h.service.HandleAuthenticate(ctx, client, string(p.UserID)))

	case domain.EventJoin:
		var p domain.ConversationPayload
		if !h.decode(client, env, &p) {
			return
		}
		h.logFailure(ctx, h.service.HandleJoin(ctx, client, int64(p.ConversationID)))

	case domain.EventLeaveConversation:
		var p domain.ConversationPayload
		if !h.decode(client, env, &p) {
			return
		}
		h.logFailure(ctx, h.service.HandleLeave(ctx, client, int64(p.ConversationID)))

	case domain.EventSendMessage:
		var p domain.SendMessagePayload
		if err := decodeData(env.Data, &p); err != nil {
			client.SendEvent(domain.EventAck, env.AckID, &domain.AckPayload{
				Success: false,
				Error:   domain.NewErrorPayload(domain.ErrCodeBadRequest, "Invalid send_message payload"),
			})
			break
		}
		ack := h.service.HandleSendMessage(ctx, client, &p)
		if err := client.SendEvent(domain.EventAck, env.AckID, ack); err != nil {
			l.Error().Err(err).Msg("failed to encode ack")
		}

	case domain.EventMarkAsRead:
		var p domain.ConversationPayload
		if !h.decode(client, env, &p) {
			return
		}
		h.logFailure(ctx, h.service.HandleMarkAsRead(ctx, client, int64(p.ConversationID)))

	case domain.EventUpdateStatus:
		var p domain.UpdateStatusPayload
		if !h.decode(client, env, &p) {
			return
		}
		h.logFailure(ctx, h.service.HandleUpdateStatus(ctx, client, int64(p.MessageID), p.Status))

	case domain.EventPing:
		client.SendEvent(domain.EventPong, env.AckID, nil)

	default:
		metrics.InboundEvents.WithLabelValues("unknown").Inc()
		client.SendEvent(domain.EventError, env.AckID, domain.NewErrorPayload(domain.ErrCodeBadRequest, "Unknown message type"))
		return
	}

	metrics.InboundEvents.WithLabelValues(env.Type).Inc()
}

var errMissingData = errors.New("missing data")

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errMissingData
	}
	return json.Unmarshal(data, v)
}

func (h *WSHandler) decode(client *hub.Client, env domain.Envelope, v interface{}) bool {
	if err := decodeData(env.Data, v); err != nil {
		metrics.InboundEvents.WithLabelValues("invalid").Inc()
		client.SendEvent(domain.EventError, env.AckID, domain.NewErrorPayload(domain.ErrCodeBadRequest, "Invalid "+env.Type+" payload"))
		return false
	}
	return true
}

// logFailure logs handler errors. They are never reported to the client.
func (h *WSHandler) logFailure(ctx context.Context, err error) {
	if err == nil {
		return
	}
	l := log.Ctx(ctx)
	if errors.Is(err, service.ErrValidation) {
		l.Debug().Err(err).Msg("event rejected")
		return
	}
	l.Warn().Err(err).Msg("event handling failed")
}
