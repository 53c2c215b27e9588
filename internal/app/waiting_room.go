package app

import (
	"slices"
	"sync"

	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// WaitingRoomRegistry tracks sockets sitting in the lobby of a room. A room
// id has an entry exactly while somebody waits for it.
type WaitingRoomRegistry struct {
	mu        sync.RWMutex
	clients   map[domain.RoomID][]*core.Client
	roomBySID map[core.SessionID]domain.RoomID
}

func NewWaitingRoomRegistry() *WaitingRoomRegistry {
	return &WaitingRoomRegistry{
		clients:   make(map[domain.RoomID][]*core.Client),
		roomBySID: make(map[core.SessionID]domain.RoomID),
	}
}

// Join appends the client to the room's lobby. A socket waits in one lobby
// at a time, so joining another room moves it.
func (w *WaitingRoomRegistry) Join(roomID domain.RoomID, c *core.Client) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.roomBySID[c.ID()]; ok {
		w.removeLocked(c.ID(), prev)
	}
	w.roomBySID[c.ID()] = roomID
	w.clients[roomID] = append(w.clients[roomID], c)
	log.Debug().Str("module", "app.waiting").Str("sid", string(c.ID())).Str("room", string(roomID)).Msg("waiting")
}

func (w *WaitingRoomRegistry) GetSocketsBy(roomID domain.RoomID) []*core.Client {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.clients[roomID])
}

// Remove drops the socket from whatever lobby it was in and reports which.
func (w *WaitingRoomRegistry) Remove(sid core.SessionID) (domain.RoomID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	roomID, ok := w.roomBySID[sid]
	if !ok {
		return "", false
	}
	w.removeLocked(sid, roomID)
	return roomID, true
}

func (w *WaitingRoomRegistry) removeLocked(sid core.SessionID, roomID domain.RoomID) {
	delete(w.roomBySID, sid)
	rest := slices.DeleteFunc(w.clients[roomID], func(c *core.Client) bool { return c.ID() == sid })
	if len(rest) == 0 {
		delete(w.clients, roomID)
		return
	}
	w.clients[roomID] = rest
}

// NotifyOthers sends the message to everybody waiting for the room and
// returns how many sends succeeded.
func (w *WaitingRoomRegistry) NotifyOthers(roomID domain.RoomID, protocol string, args any) int {
	sent := 0
	for _, c := range w.GetSocketsBy(roomID) {
		if err := c.Emit(protocol, args); err != nil {
			log.Warn().Err(err).Str("module", "app.waiting").Str("sid", string(c.ID())).Str("protocol", protocol).Msg("lobby notify failed")
			continue
		}
		sent++
	}
	return sent
}
