package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/theracare_telehealth/internal/config"
	"github.com/immxrtalbeast/theracare_telehealth/internal/service"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/sl"
	"golang.org/x/sync/errgroup"
)

// SignalController upgrades room connections to WebSocket and pumps frames
// between the socket and the relay.
type SignalController struct {
	base     context.Context
	signals  service.SignalInteractor
	log      *slog.Logger
	cfg      config.SignalingConfig
	upgrader websocket.Upgrader
	active   sync.WaitGroup
}

// NewSignalController ties connection lifetimes to base: cancelling it closes
// every open socket.
func NewSignalController(base context.Context, signals service.SignalInteractor, log *slog.Logger, cfg config.SignalingConfig, allowedOrigins []string) *SignalController {
	return &SignalController{
		base:    base,
		signals: signals,
		log:     log,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// JoinRoom resolves the room before upgrading, so unknown or closed rooms get
// a plain HTTP error instead of a socket.
func (c *SignalController) JoinRoom(ctx *gin.Context) {
	// Counted before the upgrade hijacks the connection, while the server
	// still tracks the request, so Wait cannot miss this socket.
	c.active.Add(1)
	defer c.active.Done()

	if c.base.Err() != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	}

	roomID := ctx.Param("roomID")
	log := c.log.With(slog.String("op", "http.signal.JoinRoom"), slog.String("room_id", roomID))

	who := identityFrom(ctx)
	if who.Anonymous() && who.DisplayName == "" {
		who.DisplayName = ctx.Query("name")
	}

	conn, err := c.signals.Connect(ctx.Request.Context(), roomID, who)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ws, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// The upgrader has already answered with an HTTP error.
		log.Warn("websocket upgrade failed", sl.Err(err))
		conn.Close(ctx.Request.Context())
		return
	}
	conn.MarkOpen()

	c.serve(ws, conn)
}

// Wait blocks until every served connection has been cleaned up.
func (c *SignalController) Wait() {
	c.active.Wait()
}

func (c *SignalController) serve(ws *websocket.Conn, conn *service.Connection) {
	log := c.log.With(slog.String("participant_id", conn.Handle()))
	defer conn.Close(c.base)

	g, gctx := errgroup.WithContext(c.base)
	send := make(chan []byte, c.cfg.SendBuffer)

	g.Go(func() error {
		return c.readLoop(gctx, ws, conn)
	})
	g.Go(func() error {
		return conn.Deliver(gctx, func(frame []byte) error {
			select {
			case send <- frame:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})
	g.Go(func() error {
		return c.writeLoop(gctx, ws, send)
	})

	err := g.Wait()
	var closeErr *websocket.CloseError
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.As(err, &closeErr):
		log.Debug("socket closed by peer", slog.Int("code", closeErr.Code))
	default:
		log.Info("socket closed", sl.Err(err))
	}
}

// readLoop handles inbound frames one at a time, in arrival order. A frame
// the relay rejects is dropped without closing the socket.
func (c *SignalController) readLoop(ctx context.Context, ws *websocket.Conn, conn *service.Connection) error {
	ws.SetReadLimit(c.cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		kind, frame, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		_ = conn.Receive(ctx, frame)
	}
}

// writeLoop is the only writer on ws. It closes the socket on the way out,
// which also unblocks readLoop.
func (c *SignalController) writeLoop(ctx context.Context, ws *websocket.Conn, send <-chan []byte) error {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait),
			)
			return nil
		case frame := <-send:
			_ = ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return err
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				return err
			}
		}
	}
}
