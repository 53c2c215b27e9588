package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/studyroom/internal/app"
	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/domain"
	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// JoinWaitingRoom puts the client in the lobby of the room and describes the
// room to it. An unknown room yields (nil, nil) and the client is not
// registered.
func (o *Orchestrator) JoinWaitingRoom(ctx context.Context, roomID domain.RoomID, client *core.Client) (*domain.WaitingRoomData, error) {
	rec, err := o.Store.FindRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	if rec == nil {
		return nil, nil
	}
	masterID, err := o.Rooms.MasterID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	blacklist, err := o.Rooms.Blacklist(ctx, roomID)
	if err != nil {
		return nil, err
	}
	password, err := o.Rooms.Password(ctx, roomID)
	if err != nil {
		return nil, err
	}

	o.Waiting.Join(roomID, client)
	log.Info().Str("module", "orch").Str("sid", string(client.ID())).Str("room", string(roomID)).Msg("joined waiting room")

	return &domain.WaitingRoomData{
		JoinerList:  o.Rooms.JoinerList(roomID),
		Capacity:    o.Rooms.Capacity(),
		MasterID:    masterID,
		Blacklist:   blacklist,
		HasPassword: password != "",
	}, nil
}

// CanJoinRoom is advisory: it reserves nothing. The registry re-checks
// capacity and blacklist when the peer is actually appended.
func (o *Orchestrator) CanJoinRoom(ctx context.Context, uid domain.UserID, roomID domain.RoomID, passwordInput string) (app.JoinDecision, error) {
	masterID, err := o.Rooms.MasterID(ctx, roomID)
	if err != nil {
		return app.JoinDecision{}, err
	}
	blacklist, err := o.Rooms.Blacklist(ctx, roomID)
	if err != nil {
		return app.JoinDecision{}, err
	}
	password, err := o.Rooms.Password(ctx, roomID)
	if err != nil {
		return app.JoinDecision{}, err
	}
	return app.EvaluateJoin(app.JoinRequest{
		UserID:        uid,
		MasterID:      masterID,
		JoinerCount:   len(o.Rooms.JoinerList(roomID)),
		Capacity:      o.Rooms.Capacity(),
		Blacklist:     blacklist,
		Password:      password,
		PasswordInput: passwordInput,
	}), nil
}

// JoinRoom admits the peer into a live room. core.ErrRoomNotFound means
// there is none and CreateAndJoinRoom should be used.
func (o *Orchestrator) JoinRoom(ctx context.Context, roomID domain.RoomID, peer *core.Peer) (*core.Room, error) {
	room, err := o.Rooms.Join(roomID, peer)
	if err != nil {
		return nil, err
	}
	o.afterJoin(ctx, room, peer)
	return room, nil
}

// CreateAndJoinRoom creates a router and instantiates the room with peer as
// its first member. created is false when a concurrent join instantiated the
// room first; the spare router is closed then.
func (o *Orchestrator) CreateAndJoinRoom(ctx context.Context, roomID domain.RoomID, peer *core.Peer) (room *core.Room, created bool, err error) {
	router, err := o.Media.CreateRouter(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("create router for %s: %w", roomID, err)
	}
	room, created, err = o.Rooms.CreateAndJoin(ctx, router, roomID, peer)
	if err != nil || !created {
		if cerr := router.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("module", "orch").Str("room", string(roomID)).Msg("close spare router")
		}
	}
	if err != nil {
		return nil, false, err
	}
	o.afterJoin(ctx, room, peer)
	return room, created, nil
}

func (o *Orchestrator) afterJoin(ctx context.Context, room *core.Room, peer *core.Peer) {
	o.Waiting.Remove(peer.SessionID())
	o.Waiting.NotifyOthers(room.ID(), protocol.OtherPeerJoinedRoom, peer.Joiner())

	now := o.now()
	if err := o.Store.CreateStudyHistory(ctx, room.ID(), peer.UID(), now); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(room.ID())).Str("user", string(peer.UID())).Msg("create study history")
	}
	if room.PeerCount() == 2 {
		if err := o.Store.StartRoomIgnition(ctx, room.ID(), now); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("room", string(room.ID())).Msg("start room ignition")
		}
	}
}

// EnterRequest is the joinRoom payload.
type EnterRequest struct {
	UserID        domain.UserID `json:"userId"`
	MutedHeadset  bool          `json:"mutedHeadset"`
	PasswordInput string        `json:"roomPasswordInput"`
}

// EnterResult is either a refusal (Decision.CanJoin false) or the joined
// room. Created reports that this call instantiated the room.
type EnterResult struct {
	Decision app.JoinDecision
	Room     *core.Room
	Peer     *core.Peer
	Created  bool
}

// Enter runs the whole joinRoom flow: admission check, user lookup, join or
// create. Losing an admission race is reported as a refusal like the
// advisory check would have.
func (o *Orchestrator) Enter(ctx context.Context, client *core.Client, roomID domain.RoomID, req EnterRequest) (EnterResult, error) {
	decision, err := o.CanJoinRoom(ctx, req.UserID, roomID, req.PasswordInput)
	if err != nil {
		return EnterResult{}, err
	}
	if !decision.CanJoin {
		return EnterResult{Decision: decision}, nil
	}
	user, err := o.Store.FindUser(ctx, req.UserID)
	if err != nil {
		return EnterResult{}, fmt.Errorf("load user %s: %w", req.UserID, err)
	}
	if user == nil {
		return EnterResult{}, fmt.Errorf("%s: %w", req.UserID, ErrUserNotFound)
	}

	peer := core.NewPeer(*user, client, req.MutedHeadset)
	room, err := o.JoinRoom(ctx, roomID, peer)
	created := false
	if errors.Is(err, core.ErrRoomNotFound) {
		room, created, err = o.CreateAndJoinRoom(ctx, roomID, peer)
	}
	switch {
	case errors.Is(err, core.ErrRoomFull):
		return EnterResult{Decision: app.JoinDecision{Message: app.MsgRoomFull}}, nil
	case errors.Is(err, core.ErrUserBlocked):
		return EnterResult{Decision: app.JoinDecision{Message: app.MsgBlocked}}, nil
	case err != nil:
		return EnterResult{}, err
	}
	return EnterResult{Decision: decision, Room: room, Peer: peer, Created: created}, nil
}

// JoinSuccess is the joinRoom acknowledgement.
type JoinSuccess struct {
	Type             string               `json:"type"`
	RTPCapabilities  any                  `json:"rtpCapabilities"`
	PeerStates       []core.PeerState     `json:"peerStates"`
	TimerStartedDate *string              `json:"timerStartedDate,omitempty"`
	TimerState       core.TimerState      `json:"timerState"`
	TimerProperty    domain.TimerProperty `json:"timerProperty"`
}

func NewJoinSuccess(room *core.Room) JoinSuccess {
	res := JoinSuccess{
		Type:            "success",
		RTPCapabilities: room.Router().RTPCapabilities(),
		PeerStates:      room.PeerStates(),
		TimerState:      room.TimerState(),
		TimerProperty:   room.TimerProperty(),
	}
	if d := room.TimerEventDate(); d != nil {
		s := d.UTC().Format(time.RFC3339Nano)
		res.TimerStartedDate = &s
	}
	return res
}

// DisconnectResult tells the caller whether the room went away with the
// socket, so it can deregister it upstream.
type DisconnectResult struct {
	RoomRemoved bool
	RoomID      domain.RoomID
}

// Disconnect cleans up after a closed socket. A socket that never entered a
// room only leaves the lobby.
func (o *Orchestrator) Disconnect(ctx context.Context, sid core.SessionID) DisconnectResult {
	o.Waiting.Remove(sid)

	res, err := o.Rooms.Leave(sid)
	if res.Room == nil {
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("leave")
		}
		return DisconnectResult{}
	}
	room := res.Room
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room", string(room.ID())).Msg("leave")
	}

	if res.RoomRemoved {
		if cerr := room.Router().Close(); cerr != nil {
			log.Warn().Err(cerr).Str("module", "orch").Str("room", string(room.ID())).Msg("close router")
		}
	}
	if res.Peer == nil {
		return DisconnectResult{RoomRemoved: res.RoomRemoved, RoomID: room.ID()}
	}

	uid := res.Peer.UID()
	if !res.RoomRemoved {
		o.broadcast(room, core.Broadcast{
			Protocol: protocol.OtherPeerDisconnected,
			Args:     map[string]domain.UserID{"disposedPeerId": uid},
			Where:    func(p *core.Peer) bool { return p.SessionID() != sid },
		})
	}
	o.Waiting.NotifyOthers(room.ID(), protocol.OtherPeerExitedRoom, uid)

	now := o.now()
	if err := o.Store.UpdateStudyHistoryExit(ctx, room.ID(), uid, now); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(room.ID())).Str("user", string(uid)).Msg("update study history")
	}
	if room.PeerCount() == 1 {
		if err := o.Store.FinishRoomIgnition(ctx, room.ID(), now); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("room", string(room.ID())).Msg("finish room ignition")
		}
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room.ID())).Bool("room_removed", res.RoomRemoved).Msg("disconnected")
	return DisconnectResult{RoomRemoved: res.RoomRemoved, RoomID: room.ID()}
}
