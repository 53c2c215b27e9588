// Package orch turns protocol events into registry, room and peer
// operations. Every method takes the acting socket's session id.
package orch

import (
	"errors"
	"time"

	"github.com/dkeye/studyroom/internal/app"
	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotAuthorized     = errors.New("only the room master may do this")
	ErrTargetNotFound    = errors.New("target user is not in the room")
	ErrNotInRoom         = errors.New("socket is not in a room")
	ErrUserNotFound      = errors.New("user not found")
	ErrTransportNotFound = errors.New("transport not found")
	ErrConsumerNotFound  = errors.New("consumer not found")
	ErrCannotConsume     = errors.New("producer cannot be consumed")
)

type Orchestrator struct {
	Rooms   *app.RoomRegistry
	Waiting *app.WaitingRoomRegistry
	Media   core.MediaEngine
	Store   core.Store
	Policy  app.Policy
	Now     func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// broadcast fans a message out and applies the back-pressure policy to
// peers whose queue was full.
func (o *Orchestrator) broadcast(room *core.Room, b core.Broadcast) core.PublishResult {
	res := room.BroadcastProtocol(b)
	if o.Policy == nil {
		return res
	}
	for _, slow := range res.Dropped {
		if action := o.Policy.OnBackPressure(room, slow); action == app.KickMember {
			log.Warn().Str("module", "orch").Str("room", string(room.ID())).Str("sid", string(slow.SessionID())).Stringer("action", action).Msg("slow peer disconnected")
			slow.Disconnect()
		}
	}
	return res
}

func (o *Orchestrator) roomOf(sid core.SessionID) (*core.Room, *core.Peer, error) {
	room := o.Rooms.FindRoomBySessionID(sid)
	if room == nil {
		return nil, nil, ErrNotInRoom
	}
	peer := room.FindPeerBySessionID(sid)
	if peer == nil {
		return nil, nil, ErrNotInRoom
	}
	return room, peer, nil
}

// broadcastPeerStateChanged tells everybody else in the room about the
// subject's current state. A subject that already left is ignored.
func (o *Orchestrator) broadcastPeerStateChanged(sid core.SessionID) {
	room, peer, err := o.roomOf(sid)
	if err != nil {
		return
	}
	uid := peer.UID()
	o.broadcast(room, core.Broadcast{
		Protocol: protocol.PeerStateChanged,
		Args:     peer.State(),
		Where:    func(p *core.Peer) bool { return p.UID() != uid },
	})
}
