// Package signal is the websocket side of the study-room protocol: one
// connection per client, JSON envelopes in both directions.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/studyroom/internal/app/orch"
	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/domain"
	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// RoomNotifier is told when this process instantiates or drops a room.
type RoomNotifier interface {
	CreatedRoom(id domain.RoomID)
	RemovedRoom(id domain.RoomID)
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Notifier RoomNotifier
	Chat     *RoomRateLimiter

	PingPeriod   time.Duration
	ReadLimit    int64
	SendQueue    int
	MediaTimeout time.Duration

	routes map[string]handlerFunc
}

func NewSignalWSController(o *orch.Orchestrator, notifier RoomNotifier, chat *RoomRateLimiter) *SignalWSController {
	ctl := &SignalWSController{
		Orch:         o,
		Notifier:     notifier,
		Chat:         chat,
		PingPeriod:   30 * time.Second,
		ReadLimit:    64 * 1024,
		SendQueue:    64,
		MediaTimeout: 15 * time.Second,
	}
	ctl.routes = ctl.buildRoutes()
	return ctl
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. The write pump flushes what is already
// queued, sends a close frame and then shuts the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// session is the per-connection state. It is only touched from the
// connection's read goroutine.
type session struct {
	sid    core.SessionID
	client *core.Client
	conn   *WsSignalConn

	// roomID is remembered from join-waiting-room and used by joinRoom.
	roomID domain.RoomID
	userID domain.UserID
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client_token", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.SendQueue),
	}
	s := &session{
		sid:    sid,
		client: core.NewClient(sid, conn),
		conn:   conn,
	}
	if err := s.client.Emit(protocol.ConnectionSuccess, map[string]core.SessionID{"socketId": sid}); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("connection-success")
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, s)
}

// disconnect runs once the socket is gone, whoever closed it.
func (ctl *SignalWSController) disconnect(s *session) {
	res := ctl.Orch.Disconnect(context.Background(), s.sid)
	if ctl.Chat != nil && s.userID != "" {
		ctl.Chat.Forget(s.userID)
	}
	if res.RoomRemoved && ctl.Notifier != nil {
		ctl.Notifier.RemovedRoom(res.RoomID)
	}
}
