package signal

import (
	"context"
	"errors"

	"github.com/dkeye/studyroom/internal/app"
	"github.com/dkeye/studyroom/internal/app/orch"
	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/domain"
	"github.com/dkeye/studyroom/internal/protocol"
)

func (ctl *SignalWSController) buildRoutes() map[string]handlerFunc {
	return map[string]handlerFunc{
		protocol.Ping: ctl.handlePing,

		protocol.JoinWaitingRoom: ctl.handleJoinWaitingRoom,
		protocol.JoinRoom:        ctl.handleJoinRoom,

		protocol.CreateWebRtcTransport:    ctl.handleCreateTransport,
		protocol.TransportProducerConnect: ctl.handleProducerConnect,
		protocol.TransportReceiverConnect: ctl.handleReceiverConnect,
		protocol.TransportProduce:         ctl.handleProduce,
		protocol.Consume:                  ctl.handleConsume,
		protocol.ConsumerResume:           ctl.handleConsumerResume,
		protocol.GetProducerIDs:           ctl.handleGetProducers,
		protocol.GetAudioProducerIDs:      ctl.handleGetAudioProducers,
		protocol.CloseVideoProducer:       ctl.handleCloseVideoProducer,
		protocol.CloseAudioProducer:       ctl.handleCloseAudioProducer,
		protocol.HideRemoteVideo:          ctl.handleHideRemoteVideo,
		protocol.ShowRemoteVideo:          ctl.handleShowRemoteVideo,
		protocol.MuteHeadset:              ctl.handleMuteHeadset,
		protocol.UnmuteHeadset:            ctl.handleUnmuteHeadset,

		protocol.SendChat:         ctl.handleSendChat,
		protocol.StartTimer:       ctl.handleStartTimer,
		protocol.EditAndStopTimer: ctl.handleEditAndStopTimer,

		protocol.KickUser:    ctl.handleKickUser,
		protocol.BlockUser:   ctl.handleBlockUser,
		protocol.UnblockUser: ctl.handleUnblockUser,
	}
}

// failureMessage keeps internal details out of acks.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, errBadPayload):
		return "bad payload"
	case errors.Is(err, errNoWaitingRoom):
		return "join the waiting room first"
	case errors.Is(err, orch.ErrNotAuthorized):
		return "only the room master may do this"
	case errors.Is(err, orch.ErrTargetNotFound):
		return "the user is not in the room"
	case errors.Is(err, orch.ErrNotInRoom), errors.Is(err, core.ErrPeerNotFound):
		return "you are not in a room"
	case errors.Is(err, orch.ErrUserNotFound):
		return "user not found"
	case errors.Is(err, app.ErrRoomNotPersisted):
		return "room does not exist"
	case errors.Is(err, orch.ErrCannotConsume):
		return "the stream is no longer available"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out waiting for media"
	case errors.Is(err, domain.ErrInvalidTimerProperty):
		return "invalid timer settings"
	}
	return "request failed"
}
