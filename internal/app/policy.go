package app

import (
	"slices"

	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case NoAction:
		return "none"
	case KickMember:
		return "kick"
	}
	return "unknown"
}

// Policy decides what happens to a peer whose outbound queue overflowed
// during a room broadcast.
type Policy interface {
	OnBackPressure(room *core.Room, peer *core.Peer) BackpressureAction
}

// SimplePolicy disconnects slow peers; they rejoin with a fresh socket.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*core.Room, *core.Peer) BackpressureAction {
	return KickMember
}

const (
	MsgRoomFull         = "the room is full"
	MsgBlocked          = "you are blocked from this room"
	MsgPasswordMismatch = "the room password does not match"
)

// JoinDecision is the answer to "may this user enter". A refusal is a
// normal outcome, not an error.
type JoinDecision struct {
	CanJoin bool   `json:"canJoin"`
	Message string `json:"message"`
}

// JoinRequest is everything EvaluateJoin looks at.
type JoinRequest struct {
	UserID        domain.UserID
	MasterID      domain.UserID
	JoinerCount   int
	Capacity      int
	Blacklist     []domain.BlockedUser
	Password      string
	PasswordInput string
}

// EvaluateJoin checks capacity (the master is exempt), then the blacklist,
// then the password, and returns the first refusal.
func EvaluateJoin(req JoinRequest) JoinDecision {
	if req.UserID != req.MasterID && req.Capacity <= req.JoinerCount {
		return JoinDecision{Message: MsgRoomFull}
	}
	if slices.ContainsFunc(req.Blacklist, func(b domain.BlockedUser) bool { return b.ID == req.UserID }) {
		return JoinDecision{Message: MsgBlocked}
	}
	if req.Password != "" && req.Password != req.PasswordInput {
		return JoinDecision{Message: MsgPasswordMismatch}
	}
	return JoinDecision{CanJoin: true}
}
