package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/studyroom/internal/app/orch"
	"github.com/dkeye/studyroom/internal/domain"
	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

var errNoWaitingRoom = errors.New("joinRoom before join-waiting-room")

func (ctl *SignalWSController) handleJoinWaitingRoom(
	ctx context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var roomID domain.RoomID
	if err := decode(data, &roomID); err != nil {
		return nil, err
	}
	s.roomID = roomID
	wr, err := ctl.Orch.JoinWaitingRoom(ctx, roomID, s.client)
	if err != nil {
		return nil, err
	}
	if wr == nil {
		log.Info().Str("module", "signal").Str("sid", string(s.sid)).Str("room", string(roomID)).Msg("waiting room of unknown room")
		return nil, nil
	}
	return wr, nil
}

func (ctl *SignalWSController) handleJoinRoom(
	ctx context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	if s.roomID == "" {
		return nil, errNoWaitingRoom
	}
	var req orch.EnterRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	res, err := ctl.Orch.Enter(ctx, s.client, s.roomID, req)
	if err != nil {
		return nil, err
	}
	if !res.Decision.CanJoin {
		return protocol.NewFailure(res.Decision.Message), nil
	}
	s.userID = req.UserID
	if res.Created && ctl.Notifier != nil {
		ctl.Notifier.CreatedRoom(res.Room.ID())
	}
	log.Info().Str("module", "signal").Str("sid", string(s.sid)).Str("room", string(s.roomID)).Str("user", string(req.UserID)).Bool("created", res.Created).Msg("join")
	return orch.NewJoinSuccess(res.Room), nil
}
