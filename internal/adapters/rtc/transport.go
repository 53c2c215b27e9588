package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/studyroom/internal/app/sfu"
	"github.com/dkeye/studyroom/internal/core"
	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrWrongDirection  = errors.New("operation not allowed on this transport direction")
)

type remoteTrack struct {
	track    *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
}

// Transport is one PeerConnection. A send transport only receives tracks
// from the client, a receive transport only sends them.
type Transport struct {
	id         string
	router     *Router
	pc         *webrtc.PeerConnection
	isConsumer bool
	logger     zerolog.Logger

	incoming map[core.MediaKind]chan remoteTrack

	mu        sync.Mutex
	producers []*Producer
	consumers []*Consumer

	closed hooks
}

func newTransport(r *Router, pc *webrtc.PeerConnection, isConsumer bool) *Transport {
	t := &Transport{
		id:         uuid.NewString(),
		router:     r,
		pc:         pc,
		isConsumer: isConsumer,
		incoming: map[core.MediaKind]chan remoteTrack{
			core.KindAudio: make(chan remoteTrack, 4),
			core.KindVideo: make(chan remoteTrack, 4),
		},
	}
	t.logger = log.With().Str("module", "webrtc").Str("router", r.id).Str("transport", t.id).Logger()

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		t.logger.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			_ = t.Close()
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		kind := kindOf(track.Kind())
		ch, ok := t.incoming[kind]
		if !ok || t.isConsumer {
			return
		}
		t.logger.Info().Str("kind", string(kind)).Str("track", track.ID()).Uint32("ssrc", uint32(track.SSRC())).Msg("remote track")
		select {
		case ch <- remoteTrack{track: track, receiver: receiver}:
		default:
			t.logger.Warn().Str("kind", string(kind)).Msg("remote track dropped, nobody produces it")
		}
	})
	return t
}

func kindOf(k webrtc.RTPCodecType) core.MediaKind {
	if k == webrtc.RTPCodecTypeVideo {
		return core.KindVideo
	}
	return core.KindAudio
}

func (t *Transport) ID() string { return t.id }

// Connect applies the remote description. An offer is answered once ICE
// gathering completed so the answer carries every candidate.
func (t *Transport) Connect(ctx context.Context, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if t.closed.done() {
		return nil, ErrTransportClosed
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	if desc.Type != webrtc.SDPTypeOffer {
		return nil, nil
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	return t.setLocalAndGather(ctx, answer)
}

func (t *Transport) CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error) {
	if t.closed.done() {
		return nil, ErrTransportClosed
	}
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	return t.setLocalAndGather(ctx, offer)
}

func (t *Transport) setLocalAndGather(ctx context.Context, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(desc); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return t.pc.LocalDescription(), nil
}

// Produce waits for the client's track of the requested kind to arrive.
func (t *Transport) Produce(ctx context.Context, opts core.ProducerOptions) (core.Producer, error) {
	if t.isConsumer {
		return nil, ErrWrongDirection
	}
	ch, ok := t.incoming[opts.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown media kind %q", opts.Kind)
	}
	var rt remoteTrack
	select {
	case rt = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.router.ctx.Done():
		return nil, ErrRouterClosed
	}
	if t.closed.done() {
		return nil, ErrTransportClosed
	}

	p := &Producer{
		id:        uuid.NewString(),
		kind:      opts.Kind,
		transport: t,
		remote:    rt.track,
		receiver:  rt.receiver,
	}
	if err := t.router.addProducer(p); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()

	t.router.relays.StartRelay(t.router.ctx, p.id, rt.track, func() { _ = p.Close() })
	t.logger.Info().Str("producer", p.id).Str("kind", string(p.kind)).Msg("producer created")
	return p, nil
}

// Consume adds a local track fed by the producer's relay. The caller must
// renegotiate with CreateOffer afterwards.
func (t *Transport) Consume(_ context.Context, opts core.ConsumeOptions) (core.Consumer, error) {
	if !t.isConsumer {
		return nil, ErrWrongDirection
	}
	if t.closed.done() {
		return nil, ErrTransportClosed
	}
	p := t.router.producer(opts.ProducerID)
	if p == nil || p.isClosed() {
		return nil, fmt.Errorf("%s: %w", opts.ProducerID, ErrProducerNotFound)
	}

	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticRTP(p.remote.Codec().RTPCodecCapability, string(p.kind)+"-"+id, "stream-"+p.id)
	if err != nil {
		return nil, fmt.Errorf("local track: %w", err)
	}
	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return nil, fmt.Errorf("add track: %w", err)
	}
	c := &Consumer{
		id:        id,
		producer:  p,
		transport: t,
		sender:    sender,
		out:       sfu.NewOutTrack(id, local, opts.Paused),
	}
	if err := t.router.relays.AddSubscriber(p.id, c.out); err != nil {
		_ = t.pc.RemoveTrack(sender)
		return nil, fmt.Errorf("subscribe to %s: %w", p.id, err)
	}
	p.closed.add(c.onSourceClosed)

	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()

	go c.readRTCP()
	t.logger.Info().Str("consumer", id).Str("producer", p.id).Bool("paused", opts.Paused).Msg("consumer created")
	return c, nil
}

func (t *Transport) removeConsumer(c *Consumer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, x := range t.consumers {
		if x == c {
			t.consumers = append(t.consumers[:i], t.consumers[i+1:]...)
			return
		}
	}
}

// writeRTCP is used by producers to ask the client for a keyframe.
func (t *Transport) writeRTCP(pkts []rtcp.Packet) error {
	return t.pc.WriteRTCP(pkts)
}

// Close closes the PeerConnection and everything created on it.
func (t *Transport) Close() error {
	if !t.closed.fire() {
		return nil
	}
	t.mu.Lock()
	producers, consumers := t.producers, t.consumers
	t.producers, t.consumers = nil, nil
	t.mu.Unlock()

	for _, c := range consumers {
		_ = c.Close()
	}
	for _, p := range producers {
		_ = p.Close()
	}
	t.logger.Info().Msg("transport closed")
	if err := t.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}

func (t *Transport) OnClose(fn func()) { t.closed.add(fn) }
