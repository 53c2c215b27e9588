package core

import (
	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Client is one connected socket: an addressable outbound channel.
type Client struct {
	id   SessionID
	conn SignalConnection
}

func NewClient(id SessionID, conn SignalConnection) *Client {
	return &Client{id: id, conn: conn}
}

func (c *Client) ID() SessionID { return c.id }

// Emit sends one message. It never blocks; a full queue is reported as an error.
func (c *Client) Emit(name string, args any) error {
	frame, err := protocol.Encode(name, args)
	if err != nil {
		log.Error().Err(err).Str("module", "core.client").Str("protocol", name).Msg("encode")
		return err
	}
	return c.conn.TrySend(frame)
}

// Disconnect force-closes the underlying socket.
func (c *Client) Disconnect() {
	c.conn.Close()
}
