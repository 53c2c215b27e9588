package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/studyroom/internal/domain"
)

// Frame is a raw payload on the signalling channel.
type Frame []byte

// SessionID identifies one socket connection. It changes on every reconnect.
type SessionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []*Peer
}

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrPeerNotFound = errors.New("peer not found")
	ErrPeerDisposed = errors.New("peer disposed")
	ErrRoomFull     = errors.New("room is full")
	ErrUserBlocked  = errors.New("user is blocked")
)

// Store is the persistent record store the room layer reads through to.
// FindRoom and FindUser return (nil, nil) when nothing is stored.
type Store interface {
	FindRoom(ctx context.Context, id domain.RoomID) (*domain.RoomRecord, error)
	FindUser(ctx context.Context, id domain.UserID) (*domain.User, error)
	BlockUser(ctx context.Context, roomID domain.RoomID, user domain.BlockedUser) error
	UnblockUser(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
	TimerStore
	CreateStudyHistory(ctx context.Context, roomID domain.RoomID, userID domain.UserID, at time.Time) error
	UpdateStudyHistoryExit(ctx context.Context, roomID domain.RoomID, userID domain.UserID, at time.Time) error
	StartRoomIgnition(ctx context.Context, roomID domain.RoomID, at time.Time) error
	FinishRoomIgnition(ctx context.Context, roomID domain.RoomID, at time.Time) error
}

// TimerStore is the slice of Store a Room needs on its own.
type TimerStore interface {
	UpdateTimerProperty(ctx context.Context, roomID domain.RoomID, prop domain.TimerProperty) error
}
