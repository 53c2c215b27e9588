package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/studyroom/internal/domain"
	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(_ context.Context, s *session, _ json.RawMessage) (any, error) {
	return nil, s.client.Emit(protocol.Pong, nil)
}

// handleSendChat drops messages over the per-user rate limit.
func (ctl *SignalWSController) handleSendChat(
	_ context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var content string
	if err := decode(data, &content); err != nil {
		return nil, err
	}
	if ctl.Chat != nil && !ctl.Chat.Allow(s.userID) {
		log.Debug().Str("module", "signal").Str("sid", string(s.sid)).Str("user", string(s.userID)).Msg("chat rate limited")
		return nil, nil
	}
	msg, err := ctl.Orch.BroadcastChat(s.sid, content)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (ctl *SignalWSController) handleStartTimer(_ context.Context, s *session, _ json.RawMessage) (any, error) {
	return nil, ctl.Orch.StartTimer(s.sid)
}

func (ctl *SignalWSController) handleEditAndStopTimer(
	ctx context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var patch domain.TimerPropertyPatch
	if err := decode(data, &patch); err != nil {
		return nil, err
	}
	prop, err := ctl.Orch.EditAndStopTimer(ctx, s.sid, patch)
	if err != nil {
		return nil, err
	}
	return prop, nil
}
