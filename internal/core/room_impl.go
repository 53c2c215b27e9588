package core

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/studyroom/internal/domain"
	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Room is a live study room on this process. It trusts its caller for
// admission decisions except in Admit.
type Room struct {
	id       domain.RoomID
	router   Router
	masterID domain.UserID
	password string
	store    TimerStore
	timer    *PomodoroTimer

	mu            sync.RWMutex
	peers         []*Peer
	blacklist     []domain.BlockedUser
	timerObserver func()
}

type RoomOptions struct {
	Router    Router
	Record    *domain.RoomRecord
	Store     TimerStore
	Scheduler Scheduler
}

func NewRoom(opts RoomOptions, first *Peer) *Room {
	rec := opts.Record
	r := &Room{
		id:        rec.ID,
		router:    opts.Router,
		masterID:  rec.MasterID,
		password:  rec.Password,
		store:     opts.Store,
		timer:     NewPomodoroTimer(rec.Timer, opts.Scheduler),
		blacklist: slices.Clone(rec.Blacklist),
	}
	if first != nil {
		r.peers = []*Peer{first}
	}
	return r
}

func (r *Room) ID() domain.RoomID { return r.id }
func (r *Room) Router() Router { return r.router }
func (r *Room) MasterID() domain.UserID { return r.masterID }
func (r *Room) Password() string { return r.password }
func (r *Room) Timer() *PomodoroTimer { return r.timer }

func (r *Room) HasPeer() bool {
	return r.PeerCount() > 0
}

func (r *Room) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Join appends the peer without any checks.
func (r *Room) Join(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = append(r.peers, p)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(p.SessionID())).Str("user", string(p.UID())).Msg("peer joined")
}

// Admit re-checks capacity and blacklist against live state and appends the
// peer in the same critical section. The master is exempt from capacity.
func (r *Room) Admit(p *Peer, capacity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.UID() != r.masterID && capacity > 0 && len(r.peers) >= capacity {
		return ErrRoomFull
	}
	if r.isBlockedLocked(p.UID()) {
		return ErrUserBlocked
	}
	r.peers = append(r.peers, p)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(p.SessionID())).Str("user", string(p.UID())).Msg("peer admitted")
	return nil
}

func (r *Room) FindPeerBySessionID(sid SessionID) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.peers {
		if p.SessionID() == sid {
			return p
		}
	}
	return nil
}

func (r *Room) FindPeerByUserID(uid domain.UserID) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.peers {
		if p.UID() == uid {
			return p
		}
	}
	return nil
}

func (r *Room) Peers() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.peers)
}

func (r *Room) Joiners() []domain.RoomJoiner {
	peers := r.Peers()
	out := make([]domain.RoomJoiner, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Joiner())
	}
	return out
}

func (r *Room) PeerStates() []PeerState {
	peers := r.Peers()
	out := make([]PeerState, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.State())
	}
	return out
}

func (r *Room) HasProducer() bool {
	for _, p := range r.Peers() {
		if p.HasProducer() {
			return true
		}
	}
	return false
}

// DetachPeer removes the peer from the list without disposing it.
func (r *Room) DetachPeer(sid SessionID) (*Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := slices.IndexFunc(r.peers, func(p *Peer) bool { return p.SessionID() == sid })
	if idx < 0 {
		return nil, fmt.Errorf("detach %s from %s: %w", sid, r.id, ErrPeerNotFound)
	}
	p := r.peers[idx]
	r.peers = slices.Delete(r.peers, idx, idx+1)
	return p, nil
}

// DisposePeer releases every handle of the peer and removes it. The peer is
// returned so the caller can announce who left.
func (r *Room) DisposePeer(sid SessionID) (*Peer, error) {
	p, err := r.DetachPeer(sid)
	if err != nil {
		return nil, err
	}
	p.Dispose()
	return p, nil
}

func (r *Room) FindOthersProducerIDs(requester SessionID) []domain.UserAndProducerID {
	return r.othersProducerIDs(requester, (*Peer).ProducerIDs)
}

func (r *Room) FindOthersAudioProducerIDs(requester SessionID) []domain.UserAndProducerID {
	return r.othersProducerIDs(requester, (*Peer).AudioProducerIDs)
}

func (r *Room) othersProducerIDs(requester SessionID, ids func(*Peer) []string) []domain.UserAndProducerID {
	out := []domain.UserAndProducerID{}
	for _, p := range r.Peers() {
		if p.SessionID() == requester {
			continue
		}
		for _, id := range ids(p) {
			out = append(out, domain.UserAndProducerID{ProducerID: id, UserID: p.UID()})
		}
	}
	return out
}

// FindVideoProducerID returns nil when the user is present but not publishing
// video, and ErrPeerNotFound when the user already left.
func (r *Room) FindVideoProducerID(uid domain.UserID) (*domain.UserAndProducerID, error) {
	p := r.FindPeerByUserID(uid)
	if p == nil {
		return nil, fmt.Errorf("video producer of %s: %w", uid, ErrPeerNotFound)
	}
	ids := p.VideoProducerIDs()
	if len(ids) == 0 {
		return nil, nil
	}
	return &domain.UserAndProducerID{ProducerID: ids[0], UserID: uid}, nil
}

// Broadcast is one room-wide message. A nil Where reaches everybody.
type Broadcast struct {
	Protocol string
	Args     any
	Where    func(*Peer) bool
}

// BroadcastProtocol is the only fan-out path of the room. Peers are
// snapshotted first, so someone joining meanwhile does not get the message.
func (r *Room) BroadcastProtocol(b Broadcast) PublishResult {
	res := PublishResult{}
	for _, p := range r.Peers() {
		if b.Where != nil && !b.Where(p) {
			continue
		}
		if err := p.Emit(b.Protocol, b.Args); err != nil {
			res.Dropped = append(res.Dropped, p)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("protocol", b.Protocol).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// StartTimer starts the pomodoro unless it is already running. A stopped
// timer has no observer, so the start is announced exactly once here.
// Reports whether the timer was actually started.
func (r *Room) StartTimer(observer TimerObserver) bool {
	if !r.timer.Start() {
		return false
	}
	r.detachTimerObserver()
	remove := r.timer.AddObserver(observer)
	r.mu.Lock()
	r.timerObserver = remove
	r.mu.Unlock()
	r.BroadcastProtocol(Broadcast{Protocol: protocol.StartTimer})
	return true
}

// EditAndStopTimer persists the merged property first, then stops the timer
// and tells everybody.
func (r *Room) EditAndStopTimer(ctx context.Context, patch domain.TimerPropertyPatch) (domain.TimerProperty, error) {
	next := r.timer.Property().Apply(patch)
	if err := next.Validate(); err != nil {
		return domain.TimerProperty{}, err
	}
	if r.store != nil {
		if err := r.store.UpdateTimerProperty(ctx, r.id, next); err != nil {
			return domain.TimerProperty{}, fmt.Errorf("persist timer property: %w", err)
		}
	}
	prop := r.timer.EditAndStop(patch)
	r.detachTimerObserver()
	r.BroadcastProtocol(Broadcast{Protocol: protocol.EditAndStopTimer, Args: prop})
	return prop, nil
}

func (r *Room) TimerState() TimerState { return r.timer.State() }
func (r *Room) TimerProperty() domain.TimerProperty { return r.timer.Property() }

// TimerEventDate is nil while the timer is stopped.
func (r *Room) TimerEventDate() *time.Time {
	d := r.timer.EventDate()
	if d.IsZero() {
		return nil
	}
	return &d
}

func (r *Room) Blacklist() []domain.BlockedUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.blacklist)
}

func (r *Room) IsBlocked(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isBlockedLocked(uid)
}

func (r *Room) isBlockedLocked(uid domain.UserID) bool {
	return slices.ContainsFunc(r.blacklist, func(b domain.BlockedUser) bool { return b.ID == uid })
}

// BlockUser only touches memory; persisting is the caller's job.
func (r *Room) BlockUser(uid domain.UserID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isBlockedLocked(uid) {
		return
	}
	r.blacklist = append(r.blacklist, domain.BlockedUser{ID: uid, Name: name})
}

func (r *Room) UnblockUser(uid domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blacklist = slices.DeleteFunc(r.blacklist, func(b domain.BlockedUser) bool { return b.ID == uid })
}

func (r *Room) detachTimerObserver() {
	r.mu.Lock()
	remove := r.timerObserver
	r.timerObserver = nil
	r.mu.Unlock()
	if remove != nil {
		remove()
	}
}

// Dispose stops the timer. Peers were disposed one by one before.
func (r *Room) Dispose() {
	r.detachTimerObserver()
	r.timer.Dispose()
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Msg("room disposed")
}
