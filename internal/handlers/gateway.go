package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/handlers/dto"
	"github.com/thereayou/circlechat/internal/metrics"
	"github.com/thereayou/circlechat/internal/models"
	"github.com/thereayou/circlechat/internal/services"
	"github.com/thereayou/circlechat/internal/websocket"
	"github.com/thereayou/circlechat/pkg/apperror"
)

const (
	genericFailure      = "failed to process the request"
	defaultEventTimeout = 5 * time.Second
)

// GatewayConfig bounds the work done for a single inbound event.
type GatewayConfig struct {
	// EventTimeout caps the storage calls made while handling one event,
	// including the circle lookup on connect.
	EventTimeout time.Duration
}

// Gateway runs the realtime protocol: it authorizes each inbound event,
// persists it, then fans it out through the hub. Failures are reported to
// the originating connection only.
type Gateway struct {
	store     services.MessageStore
	circles   services.CircleDirectory
	users     services.IdentityDirectory
	history   *services.HistoryService
	hub       *websocket.Hub
	presenter *dto.Presenter
	cfg       GatewayConfig
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewGateway(
	store services.MessageStore,
	circles services.CircleDirectory,
	users services.IdentityDirectory,
	history *services.HistoryService,
	hub *websocket.Hub,
	presenter *dto.Presenter,
	cfg GatewayConfig,
	m *metrics.Metrics,
	log *slog.Logger,
) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = defaultEventTimeout
	}
	return &Gateway{
		store:     store,
		circles:   circles,
		users:     users,
		history:   history,
		hub:       hub,
		presenter: presenter,
		cfg:       cfg,
		metrics:   m,
		log:       log.With("component", "gateway"),
	}
}

// Connect registers an authenticated client, announces it and joins it to
// its circles.
func (g *Gateway) Connect(ctx context.Context, c *websocket.Client) {
	g.hub.Attach(c)

	identity := c.Identity
	g.hub.Broadcast(websocket.UserStatus{
		UserID: c.UserID(),
		Status: websocket.StatusOnline,
		User:   &identity,
	})
	g.hub.SendTo(c, websocket.UsersOnline{UserIDs: g.hub.OnlineUsers()})

	lookupCtx, cancel := context.WithTimeout(ctx, g.cfg.EventTimeout)
	circles, err := g.circles.CirclesForUser(lookupCtx, c.UserID())
	cancel()
	if err != nil {
		g.log.Warn("auto-join circles", "user_id", c.UserID(), "error", err)
	}
	for _, circle := range circles {
		g.hub.JoinRoom(c.UserID(), circle.ID)
	}

	c.SetState(websocket.StateActive)
	g.log.Info("user connected", "user_id", c.UserID(), "conn_id", c.ID, "circles", len(circles))
}

// Disconnect starts the grace period of the client's session.
func (g *Gateway) Disconnect(c *websocket.Client) {
	g.hub.Detach(c)
	g.log.Info("user disconnected", "user_id", c.UserID(), "conn_id", c.ID)
}

func (g *Gateway) HandleMessage(ctx context.Context, c *websocket.Client, env websocket.Envelope) {
	g.metrics.EventIn(string(env.Type))

	ctx, cancel := context.WithTimeout(ctx, g.cfg.EventTimeout)
	defer cancel()

	var err error
	switch env.Type {
	case websocket.TypeJoinRoom:
		err = g.joinRoom(ctx, c, env)
	case websocket.TypeLeaveRoom:
		err = g.leaveRoom(c, env)
	case websocket.TypePrivateMessage:
		err = g.privateMessage(ctx, c, env)
	case websocket.TypeCircleMessage:
		err = g.circleMessage(ctx, c, env)
	case websocket.TypeReplyToMessage:
		err = g.replyToMessage(ctx, c, env)
	case websocket.TypeMarkAsRead:
		err = g.markAsRead(ctx, c, env)
	case websocket.TypeGetActiveCircleMembers:
		err = g.activeMembers(ctx, c, env)
	default:
		err = apperror.Validation("unknown event type %q", env.Type)
	}

	if err != nil {
		g.fail(c, env.Type, err)
	}
}

func (g *Gateway) fail(c *websocket.Client, eventType websocket.EventType, err error) {
	kind := apperror.KindOf(err)
	g.metrics.EventError(kind.String())
	if kind == apperror.KindTransient {
		g.log.Warn("event failed", "type", eventType, "user_id", c.UserID(), "error", err)
	} else {
		g.log.Debug("event rejected", "type", eventType, "user_id", c.UserID(), "kind", kind, "error", err)
	}
	g.hub.SendTo(c, websocket.MessageError{Error: apperror.PublicMessage(err, genericFailure)})
}

func decode(env websocket.Envelope, dst any) error {
	if err := websocket.Decode(env, dst); err != nil {
		return apperror.Validation("invalid %s payload", env.Type)
	}
	return nil
}

func (g *Gateway) joinRoom(ctx context.Context, c *websocket.Client, env websocket.Envelope) error {
	var req websocket.RoomRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	if _, err := g.authorizeCircle(ctx, c.UserID(), req.CircleID); err != nil {
		return err
	}

	g.hub.JoinRoom(c.UserID(), req.CircleID)
	g.hub.SendTo(c, websocket.JoinedCircle{CircleID: req.CircleID})
	g.hub.BroadcastToRoom(req.CircleID, websocket.UserJoinedCircle{
		CircleID: req.CircleID,
		User:     c.Identity,
	}, c.UserID())
	return nil
}

func (g *Gateway) leaveRoom(c *websocket.Client, env websocket.Envelope) error {
	var req websocket.RoomRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	if g.hub.LeaveRoom(c.UserID(), req.CircleID) {
		g.hub.BroadcastToRoom(req.CircleID, websocket.UserLeftCircle{
			CircleID: req.CircleID,
			UserID:   c.UserID(),
		}, c.UserID())
	}
	return nil
}

func (g *Gateway) privateMessage(ctx context.Context, c *websocket.Client, env websocket.Envelope) error {
	var req websocket.PrivateMessageRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	if req.ReceiverID == uuid.Nil {
		return apperror.Validation("receiver is required for private messages")
	}
	if _, err := g.users.GetUser(ctx, req.ReceiverID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("receiver not found")
		}
		return err
	}

	return g.sendPrivate(ctx, c, &models.Message{
		SenderID:   c.UserID(),
		ReceiverID: &req.ReceiverID,
		Kind:       models.KindPrivate,
		Content:    req.Content,
	})
}

func (g *Gateway) circleMessage(ctx context.Context, c *websocket.Client, env websocket.Envelope) error {
	var req websocket.CircleMessageRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	if _, err := g.authorizeCircle(ctx, c.UserID(), req.CircleID); err != nil {
		return err
	}

	return g.sendCircle(ctx, c, &models.Message{
		SenderID: c.UserID(),
		CircleID: &req.CircleID,
		Kind:     models.KindCircle,
		Content:  req.Content,
	})
}

func (g *Gateway) replyToMessage(ctx context.Context, c *websocket.Client, env websocket.Envelope) error {
	var req websocket.ReplyRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	original, err := g.store.GetMessage(ctx, req.MessageID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("original message not found")
		}
		return err
	}

	switch original.Kind {
	case models.KindCircle:
		if _, err := g.authorizeCircle(ctx, c.UserID(), *original.CircleID); err != nil {
			return err
		}
		return g.sendCircle(ctx, c, &models.Message{
			SenderID:  c.UserID(),
			CircleID:  original.CircleID,
			Kind:      models.KindCircle,
			Content:   req.Content,
			ReplyToID: &original.ID,
		})
	default:
		if !original.IsParticipant(c.UserID()) {
			return apperror.Authorization("you cannot reply to this message")
		}
		receiver := original.Counterpart(c.UserID())
		return g.sendPrivate(ctx, c, &models.Message{
			SenderID:   c.UserID(),
			ReceiverID: &receiver,
			Kind:       models.KindPrivate,
			Content:    req.Content,
			ReplyToID:  &original.ID,
		})
	}
}

// sendPrivate persists msg, pushes it to the receiver if live and confirms
// it to the sender.
func (g *Gateway) sendPrivate(ctx context.Context, c *websocket.Client, msg *models.Message) error {
	stored, err := g.persist(ctx, c, msg)
	if err != nil {
		return err
	}

	receiverID := *stored.ReceiverID
	g.hub.SendToUser(receiverID, websocket.PrivateMessage{
		Message: g.presenter.Message(stored, receiverID, dto.StatusDelivered),
	})
	g.hub.SendTo(c, websocket.MessageSent{
		Message: g.presenter.Message(stored, c.UserID(), dto.StatusSent),
	})
	return nil
}

// sendCircle persists msg and fans it out to the live room without the
// sender, who gets a MessageSent with the same id instead.
func (g *Gateway) sendCircle(ctx context.Context, c *websocket.Client, msg *models.Message) error {
	stored, err := g.persist(ctx, c, msg)
	if err != nil {
		return err
	}

	circleID := *stored.CircleID
	g.hub.BroadcastToRoom(circleID, websocket.CircleMessage{
		Message: g.presenter.Message(stored, uuid.Nil, ""),
	}, c.UserID())
	g.hub.SendTo(c, websocket.MessageSent{
		Message: g.presenter.Message(stored, c.UserID(), dto.StatusSent),
	})
	return nil
}

// persist appends msg and reloads it with its sender and reply preview.
// Once the append succeeded the message is delivered even if the reload
// fails, with the sender filled in from the connection.
func (g *Gateway) persist(ctx context.Context, c *websocket.Client, msg *models.Message) (*models.Message, error) {
	if err := g.store.Append(ctx, msg); err != nil {
		return nil, err
	}
	g.metrics.MessageStored(string(msg.Kind))

	stored, err := g.store.GetMessage(ctx, msg.ID)
	if err != nil {
		g.log.Warn("reload stored message", "message_id", msg.ID, "user_id", c.UserID(), "error", err)
		msg.Sender = models.User{
			ID:        c.Identity.ID,
			Name:      c.Identity.Name,
			Role:      c.Identity.Role,
			AvatarURL: c.Identity.AvatarURL,
		}
		return msg, nil
	}
	return stored, nil
}

func (g *Gateway) markAsRead(ctx context.Context, c *websocket.Client, env websocket.Envelope) error {
	var req websocket.MarkAsReadRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	if len(req.MessageIDs) == 0 {
		return nil
	}
	if _, err := g.history.MarkRead(ctx, c.UserID(), services.ReadRequest{MessageIDs: req.MessageIDs}); err != nil {
		return err
	}
	g.hub.SendTo(c, websocket.MessagesMarkedAsRead{MessageIDs: req.MessageIDs})
	return nil
}

func (g *Gateway) activeMembers(ctx context.Context, c *websocket.Client, env websocket.Envelope) error {
	var req websocket.RoomRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	if _, err := g.authorizeCircle(ctx, c.UserID(), req.CircleID); err != nil {
		return err
	}
	g.hub.SendTo(c, websocket.ActiveCircleMembers{
		CircleID: req.CircleID,
		Members:  g.hub.ActiveMembers(req.CircleID),
	})
	return nil
}

func (g *Gateway) authorizeCircle(ctx context.Context, userID, circleID uuid.UUID) (*models.StudyCircle, error) {
	if circleID == uuid.Nil {
		return nil, apperror.Validation("circle is required")
	}
	circle, err := g.circles.GetCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if !circle.CanAccess(userID) {
		return nil, apperror.Authorization("you are not a member of this circle")
	}
	return circle, nil
}
