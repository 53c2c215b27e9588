// Package routing keeps the routing server informed about the rooms that
// live on this media server.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/studyroom/internal/domain"
	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
	queueSize  = 128
)

// RegisterRequest announces this media server after every (re)connect.
type RegisterRequest struct {
	IP              string          `json:"ip"`
	Port            int             `json:"port"`
	RunningRooms    []domain.RoomID `json:"runningRooms"`
	MaxRoomCapacity int             `json:"maxRoomCapacity"`
}

// Notifier is a websocket client of the routing server. Room events sent
// while disconnected are dropped; the next registration carries the
// running rooms anyway.
type Notifier struct {
	URL string
	// Register builds the registration from the current registry state.
	Register func() RegisterRequest
	Dialer   *websocket.Dialer

	events chan []byte
}

func NewNotifier(url string, register func() RegisterRequest) *Notifier {
	return &Notifier{
		URL:      url,
		Register: register,
		Dialer:   websocket.DefaultDialer,
		events:   make(chan []byte, queueSize),
	}
}

func (n *Notifier) CreatedRoom(id domain.RoomID) { n.enqueue(protocol.CreatedRoom, id) }
func (n *Notifier) RemovedRoom(id domain.RoomID) { n.enqueue(protocol.RemovedRoom, id) }

func (n *Notifier) enqueue(name string, id domain.RoomID) {
	frame, err := protocol.Encode(name, id)
	if err != nil {
		log.Error().Err(err).Str("module", "routing").Msg("encode")
		return
	}
	select {
	case n.events <- frame:
	default:
		log.Warn().Str("module", "routing").Str("event", name).Str("room", string(id)).Msg("routing queue full, event dropped")
	}
}

// Run keeps a connection open until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		err := n.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Str("module", "routing").Str("url", n.URL).Dur("retry_in", backoff).Msg("routing server connection lost")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

var errClosedByServer = errors.New("routing server closed the connection")

func (n *Notifier) session(ctx context.Context) error {
	conn, _, err := n.Dialer.DialContext(ctx, n.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := n.write(conn, n.registerFrame()); err != nil {
		return err
	}
	log.Info().Str("module", "routing").Str("url", n.URL).Msg("registered to the routing server")

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- errClosedByServer
				return
			}
			if env, err := protocol.Decode(data); err == nil && env.Type == protocol.Ack {
				log.Debug().Str("module", "routing").Msg("registration acknowledged")
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return ctx.Err()
		case err := <-readErr:
			return err
		case frame := <-n.events:
			if err := n.write(conn, frame); err != nil {
				return err
			}
		}
	}
}

func (n *Notifier) registerFrame() []byte {
	req := RegisterRequest{RunningRooms: []domain.RoomID{}}
	if n.Register != nil {
		req = n.Register()
	}
	ack := int64(1)
	frame, _ := json.Marshal(struct {
		Type string          `json:"type"`
		Data RegisterRequest `json:"data"`
		Ack  int64           `json:"ack"`
	}{protocol.RegisterMediaServer, req, ack})
	return frame
}

func (n *Notifier) write(conn *websocket.Conn, frame []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Noop is used when no routing server is configured.
type Noop struct{}

func (Noop) CreatedRoom(domain.RoomID) {}
func (Noop) RemovedRoom(domain.RoomID) {}
