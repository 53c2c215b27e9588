package orch

import (
	"context"
	"time"

	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/domain"
	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/google/uuid"
)

// BroadcastChat stamps the message with an id, the author and the time and
// sends it to everybody in the room, the author included.
func (o *Orchestrator) BroadcastChat(sid core.SessionID, content string) (domain.ChatMessage, error) {
	room, peer, err := o.roomOf(sid)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	msg := domain.ChatMessage{
		ID:         uuid.NewString(),
		AuthorID:   peer.UID(),
		AuthorName: peer.Name(),
		Content:    content,
		SentAt:     o.now().UTC().Format(time.RFC3339Nano),
	}
	o.broadcast(room, core.Broadcast{Protocol: protocol.SendChat, Args: msg})
	return msg, nil
}

// StartTimer starts the room's pomodoro; anyone in the room may do it.
// Phase changes are broadcast until the timer is edited or the room ends.
func (o *Orchestrator) StartTimer(sid core.SessionID) error {
	room, _, err := o.roomOf(sid)
	if err != nil {
		return err
	}
	room.StartTimer(func(ev core.TimerEvent) {
		o.broadcast(room, core.Broadcast{Protocol: timerProtocol(ev)})
	})
	return nil
}

func timerProtocol(ev core.TimerEvent) string {
	switch ev {
	case core.TimerEventShortBreak:
		return protocol.StartShortBreak
	case core.TimerEventLongBreak:
		return protocol.StartLongBreak
	default:
		return protocol.StartTimer
	}
}

// EditAndStopTimer is master-only.
func (o *Orchestrator) EditAndStopTimer(ctx context.Context, sid core.SessionID, patch domain.TimerPropertyPatch) (domain.TimerProperty, error) {
	room, peer, err := o.roomOf(sid)
	if err != nil {
		return domain.TimerProperty{}, err
	}
	if peer.UID() != room.MasterID() {
		return domain.TimerProperty{}, ErrNotAuthorized
	}
	return room.EditAndStopTimer(ctx, patch)
}
