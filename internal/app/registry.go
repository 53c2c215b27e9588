package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	// ErrRoomNotPersisted means the room was never created by the API server.
	ErrRoomNotPersisted = errors.New("room is not persisted")
	ErrAlreadyInRoom    = errors.New("socket already joined a room")
)

// RoomRegistry is the process-wide directory of live rooms. The two maps
// are only mutated together under mu, so a room is registered exactly while
// it has peers and every peer has its sid -> room entry.
type RoomRegistry struct {
	store    core.Store
	sched    core.Scheduler
	capacity int

	mu        sync.RWMutex
	rooms     map[domain.RoomID]*core.Room
	roomBySID map[core.SessionID]domain.RoomID
}

// NewRoomRegistry builds an empty registry. capacity <= 0 disables the
// live capacity re-check on admission.
func NewRoomRegistry(store core.Store, sched core.Scheduler, capacity int) *RoomRegistry {
	return &RoomRegistry{
		store:     store,
		sched:     sched,
		capacity:  capacity,
		rooms:     make(map[domain.RoomID]*core.Room),
		roomBySID: make(map[core.SessionID]domain.RoomID),
	}
}

func (r *RoomRegistry) Capacity() int { return r.capacity }

// CreateAndJoin instantiates the room from its persisted record with first as
// the only peer. If another socket won the race and the room is already
// live, first is admitted into that room instead and created is false; the
// caller then owns router and must close it.
func (r *RoomRegistry) CreateAndJoin(ctx context.Context, router core.Router, roomID domain.RoomID, first *core.Peer) (room *core.Room, created bool, err error) {
	rec, err := r.store.FindRoom(ctx, roomID)
	if err != nil {
		return nil, false, fmt.Errorf("load room %s: %w", roomID, err)
	}
	if rec == nil {
		return nil, false, fmt.Errorf("create room %s: %w", roomID, ErrRoomNotPersisted)
	}

	sid := first.SessionID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roomBySID[sid]; ok {
		return nil, false, ErrAlreadyInRoom
	}
	if live, ok := r.rooms[roomID]; ok {
		if err := live.Admit(first, r.capacity); err != nil {
			return nil, false, err
		}
		r.roomBySID[sid] = roomID
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(roomID)).Msg("room already live, joined instead")
		return live, false, nil
	}

	room = core.NewRoom(core.RoomOptions{Router: router, Record: rec, Store: r.store, Scheduler: r.sched}, nil)
	if err := room.Admit(first, 0); err != nil {
		room.Dispose()
		return nil, false, err
	}
	r.rooms[roomID] = room
	r.roomBySID[sid] = roomID
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(roomID)).Msg("created room")
	return room, true, nil
}

// Join admits the peer into a live room. ErrRoomNotFound tells the caller to
// fall back to CreateAndJoin.
func (r *RoomRegistry) Join(roomID domain.RoomID, p *core.Peer) (*core.Room, error) {
	sid := p.SessionID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roomBySID[sid]; ok {
		return nil, ErrAlreadyInRoom
	}
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("join %s: %w", roomID, core.ErrRoomNotFound)
	}
	if err := room.Admit(p, r.capacity); err != nil {
		return nil, err
	}
	r.roomBySID[sid] = roomID
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(roomID)).Msg("joined room")
	return room, nil
}

// LeaveResult describes what Leave tore down.
type LeaveResult struct {
	Room        *core.Room
	Peer        *core.Peer
	RoomRemoved bool
}

// Leave detaches the socket's peer and, if it was the last one, unregisters
// the room, all in one critical section. The peer is disposed afterwards
// outside the lock; so is the room's timer when it was removed. A socket
// that never joined yields a zero result and no error.
func (r *RoomRegistry) Leave(sid core.SessionID) (LeaveResult, error) {
	r.mu.Lock()
	roomID, ok := r.roomBySID[sid]
	if !ok {
		r.mu.Unlock()
		return LeaveResult{}, nil
	}
	room := r.rooms[roomID]
	delete(r.roomBySID, sid)
	if room == nil {
		r.mu.Unlock()
		return LeaveResult{}, fmt.Errorf("leave %s: %w", roomID, core.ErrRoomNotFound)
	}
	p, err := room.DetachPeer(sid)
	removed := !room.HasPeer()
	if removed {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()

	if removed {
		room.Dispose()
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Msg("room removed")
	}
	if err != nil {
		return LeaveResult{Room: room, RoomRemoved: removed}, err
	}
	p.Dispose()
	return LeaveResult{Room: room, Peer: p, RoomRemoved: removed}, nil
}

func (r *RoomRegistry) FindRoomBySessionID(sid core.SessionID) *core.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.roomBySID[sid]
	if !ok {
		return nil
	}
	return r.rooms[id]
}

func (r *RoomRegistry) FindRoomByID(id domain.RoomID) *core.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[id]
}

func (r *RoomRegistry) FindPeerBy(sid core.SessionID) *core.Peer {
	room := r.FindRoomBySessionID(sid)
	if room == nil {
		return nil
	}
	return room.FindPeerBySessionID(sid)
}

// DeleteSessionID drops the sid -> room entry only. Pair it with disposing
// the peer; Leave does both.
func (r *RoomRegistry) DeleteSessionID(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roomBySID, sid)
}

// DeleteRoom unregisters the room. Pair it with disposing the room.
func (r *RoomRegistry) DeleteRoom(room *core.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room.ID()] == room {
		delete(r.rooms, room.ID())
	}
}

func (r *RoomRegistry) RoomIDs() []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]domain.RoomID, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *RoomRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// The reads below prefer the live room and fall back to the store when the
// room has nobody on this process. The fallback only knows this process:
// a room that is live on another media server looks empty here.

func (r *RoomRegistry) record(ctx context.Context, id domain.RoomID) (*domain.RoomRecord, error) {
	rec, err := r.store.FindRoom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("room %s: %w", id, ErrRoomNotPersisted)
	}
	return rec, nil
}

// JoinerList is empty for a room that is not live here.
func (r *RoomRegistry) JoinerList(id domain.RoomID) []domain.RoomJoiner {
	if room := r.FindRoomByID(id); room != nil {
		return room.Joiners()
	}
	return []domain.RoomJoiner{}
}

func (r *RoomRegistry) MasterID(ctx context.Context, id domain.RoomID) (domain.UserID, error) {
	if room := r.FindRoomByID(id); room != nil {
		return room.MasterID(), nil
	}
	rec, err := r.record(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.MasterID, nil
}

func (r *RoomRegistry) Blacklist(ctx context.Context, id domain.RoomID) ([]domain.BlockedUser, error) {
	if room := r.FindRoomByID(id); room != nil {
		return room.Blacklist(), nil
	}
	rec, err := r.record(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Blacklist == nil {
		return []domain.BlockedUser{}, nil
	}
	return rec.Blacklist, nil
}

// Password is empty when the room has none.
func (r *RoomRegistry) Password(ctx context.Context, id domain.RoomID) (string, error) {
	if room := r.FindRoomByID(id); room != nil {
		return room.Password(), nil
	}
	rec, err := r.record(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.Password, nil
}
