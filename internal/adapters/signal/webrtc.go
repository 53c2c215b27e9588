package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/studyroom/internal/app/orch"
	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/domain"
	"github.com/pion/webrtc/v4"
)

type transportParams struct {
	ID string `json:"id"`
}

func (ctl *SignalWSController) handleCreateTransport(
	ctx context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var p struct {
		IsConsumer bool `json:"isConsumer"`
	}
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	t, err := ctl.Orch.CreateTransport(ctx, s.sid, p.IsConsumer)
	if err != nil {
		return nil, err
	}
	return transportParams{ID: t.ID()}, nil
}

// mediaContext bounds the handlers that wait on ICE gathering or on the
// client's media. They run on the read goroutine.
func (ctl *SignalWSController) mediaContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ctl.MediaTimeout)
}

// answerOrNil keeps a nil description from being sent as a typed nil.
func answerOrNil(desc *webrtc.SessionDescription) any {
	if desc == nil {
		return nil
	}
	return desc
}

func (ctl *SignalWSController) handleProducerConnect(
	ctx context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var desc webrtc.SessionDescription
	if err := decode(data, &desc); err != nil {
		return nil, err
	}
	ctx, cancel := ctl.mediaContext(ctx)
	defer cancel()
	answer, err := ctl.Orch.ConnectSendTransport(ctx, s.sid, desc)
	if err != nil {
		return nil, err
	}
	return answerOrNil(answer), nil
}

func (ctl *SignalWSController) handleReceiverConnect(
	ctx context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var p struct {
		Description              webrtc.SessionDescription `json:"description"`
		ServerReceiveTransportID string                    `json:"serverReceiveTransportId"`
	}
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	ctx, cancel := ctl.mediaContext(ctx)
	defer cancel()
	answer, err := ctl.Orch.ConnectReceiveTransport(ctx, s.sid, p.ServerReceiveTransportID, p.Description)
	if err != nil {
		return nil, err
	}
	return answerOrNil(answer), nil
}

func (ctl *SignalWSController) handleProduce(
	ctx context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var opts core.ProducerOptions
	if err := decode(data, &opts); err != nil {
		return nil, err
	}
	ctx, cancel := ctl.mediaContext(ctx)
	defer cancel()
	p, err := ctl.Orch.CreateProducer(ctx, s.sid, opts)
	if err != nil {
		return nil, err
	}
	return p.ID(), nil
}

type consumeParams struct {
	ID               string                     `json:"id"`
	ProducerID       string                     `json:"producerId"`
	Kind             core.MediaKind             `json:"kind"`
	ServerConsumerID string                     `json:"serverConsumerId"`
	Offer            *webrtc.SessionDescription `json:"offer"`
}

func (ctl *SignalWSController) handleConsume(
	ctx context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var req orch.ConsumeRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	ctx, cancel := ctl.mediaContext(ctx)
	defer cancel()
	res, err := ctl.Orch.CreateConsumer(ctx, s.sid, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return consumeParams{
		ID:               res.Consumer.ID(),
		ProducerID:       req.ProducerID,
		Kind:             res.Consumer.Kind(),
		ServerConsumerID: res.Consumer.ID(),
		Offer:            res.Offer,
	}, nil
}

func (ctl *SignalWSController) handleConsumerResume(
	ctx context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var consumerID string
	if err := decode(data, &consumerID); err != nil {
		return nil, err
	}
	return nil, ctl.Orch.ResumeConsumer(ctx, s.sid, consumerID)
}

func (ctl *SignalWSController) handleGetProducers(_ context.Context, s *session, _ json.RawMessage) (any, error) {
	return ctl.Orch.FindOthersProducerIDs(s.sid), nil
}

func (ctl *SignalWSController) handleGetAudioProducers(_ context.Context, s *session, _ json.RawMessage) (any, error) {
	return ctl.Orch.FindOthersAudioProducerIDs(s.sid), nil
}

func (ctl *SignalWSController) handleCloseVideoProducer(_ context.Context, s *session, _ json.RawMessage) (any, error) {
	return nil, ctl.Orch.CloseVideoProducer(s.sid)
}

func (ctl *SignalWSController) handleCloseAudioProducer(_ context.Context, s *session, _ json.RawMessage) (any, error) {
	return nil, ctl.Orch.CloseAudioProducer(s.sid)
}

func (ctl *SignalWSController) handleHideRemoteVideo(
	_ context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var producerID string
	if err := decode(data, &producerID); err != nil {
		return nil, err
	}
	return nil, ctl.Orch.HideRemoteVideo(s.sid, producerID)
}

// handleShowRemoteVideo acks with nothing when the user publishes no video.
func (ctl *SignalWSController) handleShowRemoteVideo(
	_ context.Context,
	s *session,
	data json.RawMessage,
) (any, error) {
	var uid domain.UserID
	if err := decode(data, &uid); err != nil {
		return nil, err
	}
	id, err := ctl.Orch.FindVideoProducerID(s.sid, uid)
	if err != nil || id == nil {
		return nil, err
	}
	return id, nil
}

func (ctl *SignalWSController) handleMuteHeadset(_ context.Context, s *session, _ json.RawMessage) (any, error) {
	ctl.Orch.MuteHeadset(s.sid)
	return nil, nil
}

func (ctl *SignalWSController) handleUnmuteHeadset(_ context.Context, s *session, _ json.RawMessage) (any, error) {
	return ctl.Orch.UnmuteHeadset(s.sid), nil
}
