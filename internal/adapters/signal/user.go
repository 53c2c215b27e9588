package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/studyroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// moderationResult is the ack of kick, block and unblock.
type moderationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func moderationAck(err error, ok string) (any, error) {
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("moderation refused")
		return moderationResult{Message: failureMessage(err)}, nil
	}
	return moderationResult{Success: true, Message: ok}, nil
}

func (ctl *SignalWSController) handleKickUser(
	_ context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var target domain.UserID
	if err := decode(data, &target); err != nil {
		return nil, err
	}
	return moderationAck(ctl.Orch.KickUser(s.sid, target), "the user was kicked")
}

func (ctl *SignalWSController) handleBlockUser(
	ctx context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var target domain.UserID
	if err := decode(data, &target); err != nil {
		return nil, err
	}
	return moderationAck(ctl.Orch.BlockUser(ctx, s.sid, target), "the user was blocked")
}

func (ctl *SignalWSController) handleUnblockUser(
	ctx context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var target domain.UserID
	if err := decode(data, &target); err != nil {
		return nil, err
	}
	return moderationAck(ctl.Orch.UnblockUser(ctx, s.sid, target), "the user was unblocked")
}
