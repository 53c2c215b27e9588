// Package coretest provides in-memory fakes of the room layer's collaborators.
package coretest

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/protocol"
)

var ErrConnClosed = errors.New("connection closed")

// Conn records every frame sent to it.
type Conn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	// Full makes TrySend fail as if the queue were full.
	Full bool
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.Full {
		return errors.New("backpressure")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Envelopes decodes everything received so far.
func (c *Conn) Envelopes() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		env, err := protocol.Decode(f)
		if err != nil {
			continue
		}
		out = append(out, env)
	}
	return out
}

// Count returns how many messages of the given type were received.
func (c *Conn) Count(name string) int {
	n := 0
	for _, env := range c.Envelopes() {
		if env.Type == name {
			n++
		}
	}
	return n
}

// Last decodes the data of the newest message of the given type into v and
// reports whether there was one.
func (c *Conn) Last(name string, v any) bool {
	envs := c.Envelopes()
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type != name {
			continue
		}
		if v != nil && len(envs[i].Data) > 0 {
			_ = json.Unmarshal(envs[i].Data, v)
		}
		return true
	}
	return false
}

// NewClient returns a client backed by a fresh Conn.
func NewClient(id string) (*core.Client, *Conn) {
	conn := &Conn{}
	return core.NewClient(core.SessionID(id), conn), conn
}
