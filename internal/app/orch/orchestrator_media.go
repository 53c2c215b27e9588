package orch

import (
	"context"
	"fmt"
	"slices"

	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/domain"
	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// CreateTransport creates a transport on the room's router and hands it to
// the peer. If the peer left while the transport was being created, it is
// closed and ErrPeerDisposed or ErrNotInRoom is returned.
func (o *Orchestrator) CreateTransport(ctx context.Context, sid core.SessionID, isConsumer bool) (core.Transport, error) {
	room, _, err := o.roomOf(sid)
	if err != nil {
		return nil, err
	}
	t, err := room.Router().CreateTransport(ctx, isConsumer)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	peer := o.Rooms.FindPeerBy(sid)
	if peer == nil {
		_ = t.Close()
		return nil, ErrNotInRoom
	}
	if err := peer.AddTransport(t, isConsumer); err != nil {
		return nil, err
	}
	log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("transport", t.ID()).Bool("consumer", isConsumer).Msg("transport created")
	return t, nil
}

// ConnectSendTransport applies the client's description to the send
// transport and returns the answer, if any.
func (o *Orchestrator) ConnectSendTransport(ctx context.Context, sid core.SessionID, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	peer := o.Rooms.FindPeerBy(sid)
	if peer == nil {
		return nil, ErrNotInRoom
	}
	t := peer.SendTransport()
	if t == nil {
		return nil, ErrTransportNotFound
	}
	return t.Connect(ctx, desc)
}

func (o *Orchestrator) ConnectReceiveTransport(ctx context.Context, sid core.SessionID, transportID string, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	peer := o.Rooms.FindPeerBy(sid)
	if peer == nil {
		return nil, ErrNotInRoom
	}
	t := peer.FindReceiveTransport(transportID)
	if t == nil {
		return nil, fmt.Errorf("receive transport %s: %w", transportID, ErrTransportNotFound)
	}
	return t.Connect(ctx, desc)
}

// CreateProducer publishes a stream of the peer and announces it to the rest
// of the room.
func (o *Orchestrator) CreateProducer(ctx context.Context, sid core.SessionID, opts core.ProducerOptions) (core.Producer, error) {
	peer := o.Rooms.FindPeerBy(sid)
	if peer == nil {
		return nil, ErrNotInRoom
	}
	t := peer.SendTransport()
	if t == nil {
		return nil, ErrTransportNotFound
	}
	producer, err := t.Produce(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("produce %s: %w", opts.Kind, err)
	}

	room, peer, err := o.roomOf(sid)
	if err != nil {
		_ = producer.Close()
		return nil, err
	}
	if err := peer.AddProducer(producer); err != nil {
		return nil, err
	}
	id := producer.ID()
	producer.OnClose(func() {
		if !slices.Contains(peer.ProducerIDs(), id) {
			return
		}
		peer.RemoveProducer(id)
		o.broadcastPeerStateChanged(sid)
	})

	uid := peer.UID()
	o.broadcast(room, core.Broadcast{
		Protocol: protocol.NewProducer,
		Args:     domain.UserAndProducerID{ProducerID: id, UserID: uid},
		Where:    func(p *core.Peer) bool { return p.SessionID() != sid },
	})
	o.broadcastPeerStateChanged(sid)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("producer", id).Str("kind", string(producer.Kind())).Msg("producer created")
	return producer, nil
}

type ConsumeRequest struct {
	ProducerID         string `json:"remoteProducerId"`
	ReceiveTransportID string `json:"serverReceiveTransportId"`
}

// ConsumeResult carries the new consumer and the offer the client must
// answer on the receive transport.
type ConsumeResult struct {
	Consumer core.Consumer
	Offer    *webrtc.SessionDescription
}

// CreateConsumer subscribes the peer to a remote producer. The consumer starts
// paused. An audio consumer for a peer with a muted headset is closed right
// away and (nil, nil) is returned.
func (o *Orchestrator) CreateConsumer(ctx context.Context, sid core.SessionID, req ConsumeRequest) (*ConsumeResult, error) {
	room, peer, err := o.roomOf(sid)
	if err != nil {
		return nil, err
	}
	t := peer.FindReceiveTransport(req.ReceiveTransportID)
	if t == nil {
		return nil, fmt.Errorf("receive transport %s: %w", req.ReceiveTransportID, ErrTransportNotFound)
	}
	if !room.Router().CanConsume(req.ProducerID) {
		return nil, fmt.Errorf("producer %s: %w", req.ProducerID, ErrCannotConsume)
	}
	consumer, err := t.Consume(ctx, core.ConsumeOptions{ProducerID: req.ProducerID, Paused: true})
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", req.ProducerID, err)
	}
	if peer.MutedHeadset() && consumer.Kind() == core.KindAudio {
		_ = consumer.Close()
		return nil, nil
	}
	if err := peer.AddConsumer(consumer); err != nil {
		return nil, err
	}

	id, producerID := consumer.ID(), req.ProducerID
	consumer.OnProducerClose(func() {
		peer.RemoveConsumer(id)
		if err := consumer.Close(); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("consumer", id).Msg("close consumer")
		}
		if err := peer.Emit(protocol.ProducerClosed, map[string]string{"remoteProducerId": producerID}); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("producer-closed not delivered")
		}
		o.broadcastPeerStateChanged(sid)
	})

	offer, err := t.CreateOffer(ctx)
	if err != nil {
		peer.RemoveConsumer(id)
		_ = consumer.Close()
		return nil, fmt.Errorf("renegotiate: %w", err)
	}
	o.broadcastPeerStateChanged(sid)
	return &ConsumeResult{Consumer: consumer, Offer: offer}, nil
}

func (o *Orchestrator) ResumeConsumer(_ context.Context, sid core.SessionID, consumerID string) error {
	peer := o.Rooms.FindPeerBy(sid)
	if peer == nil {
		return ErrNotInRoom
	}
	c := peer.FindConsumer(consumerID)
	if c == nil {
		return fmt.Errorf("consumer %s: %w", consumerID, ErrConsumerNotFound)
	}
	if err := c.Resume(); err != nil {
		return fmt.Errorf("resume %s: %w", consumerID, err)
	}
	o.broadcastPeerStateChanged(sid)
	return nil
}

func (o *Orchestrator) CloseVideoProducer(sid core.SessionID) error {
	peer := o.Rooms.FindPeerBy(sid)
	if peer == nil {
		return fmt.Errorf("close video producer of %s: %w", sid, core.ErrPeerNotFound)
	}
	peer.CloseAndRemoveVideoProducer()
	o.broadcastPeerStateChanged(sid)
	return nil
}

func (o *Orchestrator) CloseAudioProducer(sid core.SessionID) error {
	peer := o.Rooms.FindPeerBy(sid)
	if peer == nil {
		return fmt.Errorf("close audio producer of %s: %w", sid, core.ErrPeerNotFound)
	}
	peer.CloseAndRemoveAudioProducer()
	o.broadcastPeerStateChanged(sid)
	return nil
}

func (o *Orchestrator) HideRemoteVideo(sid core.SessionID, producerID string) error {
	peer := o.Rooms.FindPeerBy(sid)
	if peer == nil {
		return fmt.Errorf("hide remote video for %s: %w", sid, core.ErrPeerNotFound)
	}
	peer.HideRemoteVideo(producerID)
	o.broadcastPeerStateChanged(sid)
	return nil
}

func (o *Orchestrator) MuteHeadset(sid core.SessionID) {
	peer := o.Rooms.FindPeerBy(sid)
	if peer == nil {
		return
	}
	peer.MuteHeadset()
	o.broadcastPeerStateChanged(sid)
}

// UnmuteHeadset returns the audio producers the client should consume again.
func (o *Orchestrator) UnmuteHeadset(sid core.SessionID) []domain.UserAndProducerID {
	peer := o.Rooms.FindPeerBy(sid)
	if peer == nil {
		return []domain.UserAndProducerID{}
	}
	peer.UnmuteHeadset()
	o.broadcastPeerStateChanged(sid)
	return o.FindOthersAudioProducerIDs(sid)
}

func (o *Orchestrator) FindOthersProducerIDs(sid core.SessionID) []domain.UserAndProducerID {
	room := o.Rooms.FindRoomBySessionID(sid)
	if room == nil {
		return []domain.UserAndProducerID{}
	}
	return room.FindOthersProducerIDs(sid)
}

func (o *Orchestrator) FindOthersAudioProducerIDs(sid core.SessionID) []domain.UserAndProducerID {
	room := o.Rooms.FindRoomBySessionID(sid)
	if room == nil {
		return []domain.UserAndProducerID{}
	}
	return room.FindOthersAudioProducerIDs(sid)
}

// FindVideoProducerID is the show-remote-video lookup. (nil, nil) means the
// user is present but not publishing video.
func (o *Orchestrator) FindVideoProducerID(sid core.SessionID, uid domain.UserID) (*domain.UserAndProducerID, error) {
	room := o.Rooms.FindRoomBySessionID(sid)
	if room == nil {
		return nil, ErrNotInRoom
	}
	return room.FindVideoProducerID(uid)
}
