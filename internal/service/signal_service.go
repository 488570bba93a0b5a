package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/theracare_telehealth/internal/broker"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
	"github.com/immxrtalbeast/theracare_telehealth/internal/metrics"
	"github.com/immxrtalbeast/theracare_telehealth/internal/presence"
	"github.com/immxrtalbeast/theracare_telehealth/internal/repository"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/sl"
)

const leaveTimeout = 5 * time.Second

// SignalService admits connections into rooms and relays their frames to
// everyone else in the room. It never looks past a frame's type.
type SignalService struct {
	sessions repository.SessionRepository
	presence presence.Tracker
	broker   broker.Broker
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func NewSignalService(
	sessions repository.SessionRepository,
	tracker presence.Tracker,
	b broker.Broker,
	log *slog.Logger,
	m *metrics.Metrics,
) *SignalService {
	return &SignalService{
		sessions: sessions,
		presence: tracker,
		broker:   b,
		log:      log,
		metrics:  m,
	}
}

// Connect admits who into roomID. The returned connection is subscribed and
// counted in presence but stays in the connecting state until MarkOpen. The
// caller must Close it, including when the transport handshake fails.
func (s *SignalService) Connect(ctx context.Context, roomID string, who domain.Identity) (*Connection, error) {
	const op = "service.signal.connect"
	log := s.log.With(slog.String("op", op), slog.String("room_id", roomID))

	session, err := s.sessions.GetByRoomID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrRoomNotFound)
		}
		log.Error("failed to resolve room", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if session.Status.Terminal() {
		return nil, fmt.Errorf("%s: %w", op, ErrRoomClosed)
	}

	sub, err := s.broker.Subscribe(ctx, roomID)
	if err != nil {
		log.Error("failed to subscribe to room", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}

	p := domain.NewParticipant(roomID, who)
	conn := &Connection{
		svc:         s,
		participant: p,
		sub:         sub,
		state:       domain.ConnStateConnecting,
		log: s.log.With(
			slog.String("room_id", roomID),
			slog.String("participant_id", p.Handle),
			slog.String("session_id", session.ID.String()),
		),
	}

	if n, err := s.presence.Join(ctx, roomID, p.Handle); err != nil {
		conn.log.Warn("presence join failed, continuing", sl.Err(err))
	} else {
		conn.log.Debug("presence joined", slog.Int("participants", n))
	}

	return conn, nil
}

// Connection is one participant's end of the relay.
type Connection struct {
	svc         *SignalService
	participant domain.Participant
	sub         broker.Subscription
	log         *slog.Logger

	mu    sync.Mutex
	state domain.ConnState
	once  sync.Once
}

func (c *Connection) Handle() string {
	return c.participant.Handle
}

func (c *Connection) Participant() domain.Participant {
	return c.participant
}

func (c *Connection) State() domain.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MarkOpen records that the transport handshake completed.
func (c *Connection) MarkOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.ConnStateConnecting {
		return
	}
	c.state = domain.ConnStateOpen
	c.svc.metrics.ConnectionOpened()
	c.log.Info("participant connected")
}

// Receive handles one inbound frame. Frames that cannot be relayed are
// logged and dropped; the returned error says why, and is never a reason to
// close the connection.
func (c *Connection) Receive(ctx context.Context, frame []byte) error {
	if c.State() == domain.ConnStateClosed {
		return ErrConnectionClosed
	}

	msg, err := domain.DecodeSignal(frame)
	if err != nil {
		c.svc.metrics.FrameDropped("malformed")
		c.log.Warn("malformed frame dropped", sl.Err(err))
		return err
	}

	payload := msg.Raw
	switch msg.Kind {
	case domain.SignalUnknown:
		c.svc.metrics.FrameDropped("unknown_type")
		c.log.Warn("unknown frame type dropped", slog.String("type", msg.Type))
		return fmt.Errorf("%w: %q", ErrUnknownSignal, msg.Type)
	case domain.SignalJoin:
		payload, err = json.Marshal(domain.NewParticipantEvent(domain.SignalParticipantJoined, c.participant))
		if err != nil {
			return err
		}
	}

	if err := c.publish(ctx, payload); err != nil {
		c.svc.metrics.FrameDropped("publish_failed")
		c.log.Error("failed to publish frame", slog.String("type", msg.Type), sl.Err(err))
		return err
	}

	c.svc.metrics.FrameRelayed(string(msg.Kind))
	return nil
}

// Deliver forwards room traffic to send until the subscription ends or ctx
// is done. The connection's own frames are skipped.
func (c *Connection) Deliver(ctx context.Context, send func([]byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-c.sub.Messages():
			if !ok {
				return nil
			}
			if env.Sender == c.participant.Handle {
				continue
			}
			if err := send(env.Data); err != nil {
				return err
			}
		}
	}
}

// Close releases presence, tells the room the participant left and drops
// the subscription. Safe to call more than once.
func (c *Connection) Close(ctx context.Context) {
	c.once.Do(func() {
		c.mu.Lock()
		wasOpen := c.state == domain.ConnStateOpen
		c.state = domain.ConnStateClosed
		c.mu.Unlock()

		// Cleanup must finish even when the caller's context is already done.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
		defer cancel()

		roomID := c.participant.RoomID
		if n, err := c.svc.presence.Leave(ctx, roomID, c.participant.Handle); err != nil {
			c.log.Warn("presence leave failed", sl.Err(err))
		} else {
			c.log.Debug("presence left", slog.Int("participants", n))
		}

		payload, err := json.Marshal(domain.NewParticipantEvent(domain.SignalParticipantLeft, c.participant))
		if err == nil {
			err = c.publish(ctx, payload)
		}
		if err != nil {
			c.log.Warn("failed to announce departure", sl.Err(err))
		}

		if err := c.sub.Close(); err != nil {
			c.log.Warn("failed to unsubscribe", sl.Err(err))
		}

		if wasOpen {
			c.svc.metrics.ConnectionClosed()
		}
		c.log.Info("participant disconnected")
	})
}

func (c *Connection) publish(ctx context.Context, payload []byte) error {
	return c.svc.broker.Publish(ctx, c.participant.RoomID, broker.Envelope{
		Sender: c.participant.Handle,
		Data:   payload,
	})
}
