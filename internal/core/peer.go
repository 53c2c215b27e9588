package core

import (
	"sync"

	"github.com/dkeye/studyroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// PeerState is the snapshot other room members see.
type PeerState struct {
	UID               domain.UserID `json:"uid"`
	Name              string        `json:"name"`
	ProfileImage      string        `json:"profileImage,omitempty"`
	EnabledMicrophone bool          `json:"enabledMicrophone"`
	EnabledHeadset    bool          `json:"enabledHeadset"`
	HasVideo          bool          `json:"hasVideo"`
}

// Peer is one user inside a room. It exclusively owns its media handles and
// closes all of them on Dispose.
type Peer struct {
	user   domain.User
	client *Client

	mu                sync.RWMutex
	sendTransport     Transport
	receiveTransports []Transport
	producers         []Producer
	consumers         []Consumer
	mutedHeadset      bool
	disposed          bool
}

func NewPeer(user domain.User, client *Client, mutedHeadset bool) *Peer {
	return &Peer{user: user, client: client, mutedHeadset: mutedHeadset}
}

func (p *Peer) UID() domain.UserID { return p.user.ID }
func (p *Peer) SessionID() SessionID { return p.client.ID() }
func (p *Peer) Name() string { return p.user.Name }
func (p *Peer) ProfileImage() string { return p.user.ProfileImage }
func (p *Peer) Client() *Client { return p.client }
func (p *Peer) Joiner() domain.RoomJoiner {
	return domain.RoomJoiner{ID: p.user.ID, Name: p.user.Name, ProfileImage: p.user.ProfileImage}
}

func (p *Peer) Emit(name string, args any) error {
	return p.client.Emit(name, args)
}

// Disconnect force-closes the peer's socket. Disposal follows from the
// disconnect event, not from here.
func (p *Peer) Disconnect() {
	p.client.Disconnect()
}

func (p *Peer) MutedHeadset() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mutedHeadset
}

// AddTransport stores a send transport in the single slot or appends a
// receive transport. Receive transports drop themselves from the list when
// closed from outside.
func (p *Peer) AddTransport(t Transport, isConsumer bool) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		closeHandle("transport", t.ID(), t.Close)
		return ErrPeerDisposed
	}
	if !isConsumer {
		old := p.sendTransport
		p.sendTransport = t
		p.mu.Unlock()
		if old != nil && old != t {
			closeHandle("transport", old.ID(), old.Close)
		}
		return nil
	}
	p.receiveTransports = append(p.receiveTransports, t)
	p.mu.Unlock()

	id := t.ID()
	t.OnClose(func() { p.removeReceiveTransport(id) })
	return nil
}

func (p *Peer) removeReceiveTransport(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receiveTransports = filter(p.receiveTransports, func(t Transport) bool { return t.ID() != id })
}

func (p *Peer) SendTransport() Transport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sendTransport
}

func (p *Peer) FindReceiveTransport(id string) Transport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, t := range p.receiveTransports {
		if t.ID() == id {
			return t
		}
	}
	return nil
}

func (p *Peer) AddProducer(pr Producer) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		closeHandle("producer", pr.ID(), pr.Close)
		return ErrPeerDisposed
	}
	p.producers = append(p.producers, pr)
	p.mu.Unlock()
	return nil
}

// RemoveProducer forgets the producer without closing it.
func (p *Peer) RemoveProducer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.producers = filter(p.producers, func(pr Producer) bool { return pr.ID() != id })
}

// AddConsumer registers a consumer. A new audio consumer means the user wants
// to hear again, so it clears the headset mute.
func (p *Peer) AddConsumer(c Consumer) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		closeHandle("consumer", c.ID(), c.Close)
		return ErrPeerDisposed
	}
	if c.Kind() == KindAudio {
		p.mutedHeadset = false
	}
	p.consumers = append(p.consumers, c)
	p.mu.Unlock()
	return nil
}

// RemoveConsumer forgets the consumer without closing it.
func (p *Peer) RemoveConsumer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumers = filter(p.consumers, func(c Consumer) bool { return c.ID() != id })
}

func (p *Peer) FindConsumer(id string) Consumer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.consumers {
		if c.ID() == id {
			return c
		}
	}
	return nil
}

func (p *Peer) HasProducer() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.producers) > 0
}

func (p *Peer) ProducerIDs() []string {
	return p.producerIDs(func(Producer) bool { return true })
}

func (p *Peer) AudioProducerIDs() []string {
	return p.producerIDs(func(pr Producer) bool { return pr.Kind() == KindAudio })
}

func (p *Peer) VideoProducerIDs() []string {
	return p.producerIDs(func(pr Producer) bool { return pr.Kind() == KindVideo })
}

func (p *Peer) producerIDs(keep func(Producer) bool) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.producers))
	for _, pr := range p.producers {
		if keep(pr) {
			out = append(out, pr.ID())
		}
	}
	return out
}

// CloseAndRemoveVideoProducer is a no-op when there is no video producer.
func (p *Peer) CloseAndRemoveVideoProducer() {
	p.closeAndRemoveProducers(KindVideo)
}

// CloseAndRemoveAudioProducer is a no-op when there is no audio producer.
func (p *Peer) CloseAndRemoveAudioProducer() {
	p.closeAndRemoveProducers(KindAudio)
}

func (p *Peer) closeAndRemoveProducers(kind MediaKind) {
	p.mu.Lock()
	var matched []Producer
	p.producers = filter(p.producers, func(pr Producer) bool {
		if pr.Kind() == kind {
			matched = append(matched, pr)
			return false
		}
		return true
	})
	p.mu.Unlock()
	for _, pr := range matched {
		closeHandle("producer", pr.ID(), pr.Close)
	}
}

// HideRemoteVideo stops receiving the given remote producer by closing our
// consumer of it. The remote producer is untouched.
func (p *Peer) HideRemoteVideo(producerID string) {
	p.mu.Lock()
	var matched []Consumer
	p.consumers = filter(p.consumers, func(c Consumer) bool {
		if c.ProducerID() == producerID {
			matched = append(matched, c)
			return false
		}
		return true
	})
	p.mu.Unlock()
	for _, c := range matched {
		closeHandle("consumer", c.ID(), c.Close)
	}
}

// MuteHeadset stops every incoming audio stream.
func (p *Peer) MuteHeadset() {
	p.mu.Lock()
	p.mutedHeadset = true
	var audio []Consumer
	p.consumers = filter(p.consumers, func(c Consumer) bool {
		if c.Kind() == KindAudio {
			audio = append(audio, c)
			return false
		}
		return true
	})
	p.mu.Unlock()
	for _, c := range audio {
		closeHandle("consumer", c.ID(), c.Close)
	}
}

// UnmuteHeadset only flips the flag; audio consumers are recreated on demand.
func (p *Peer) UnmuteHeadset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mutedHeadset = false
}

func (p *Peer) State() PeerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := PeerState{
		UID:            p.user.ID,
		Name:           p.user.Name,
		ProfileImage:   p.user.ProfileImage,
		EnabledHeadset: !p.mutedHeadset,
	}
	for _, pr := range p.producers {
		switch pr.Kind() {
		case KindAudio:
			s.EnabledMicrophone = true
		case KindVideo:
			s.HasVideo = true
		}
	}
	return s
}

// HandleCount reports how many media handles the peer still owns.
func (p *Peer) HandleCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.receiveTransports) + len(p.producers) + len(p.consumers)
	if p.sendTransport != nil {
		n++
	}
	return n
}

// Dispose closes every consumer, producer, receive transport and the send
// transport. A failing close is logged and the rest are still closed.
// Calling it again is a no-op.
func (p *Peer) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	consumers, producers, receivers, sender := p.consumers, p.producers, p.receiveTransports, p.sendTransport
	p.consumers, p.producers, p.receiveTransports, p.sendTransport = nil, nil, nil, nil
	p.mu.Unlock()

	for _, c := range consumers {
		closeHandle("consumer", c.ID(), c.Close)
	}
	for _, pr := range producers {
		closeHandle("producer", pr.ID(), pr.Close)
	}
	for _, t := range receivers {
		closeHandle("transport", t.ID(), t.Close)
	}
	if sender != nil {
		closeHandle("transport", sender.ID(), sender.Close)
	}
	log.Info().Str("module", "core.peer").Str("sid", string(p.SessionID())).Str("user", string(p.user.ID)).Msg("peer disposed")
}

func closeHandle(kind, id string, closeFn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("module", "core.peer").Str("kind", kind).Str("id", id).Interface("panic", r).Msg("close panicked")
		}
	}()
	if err := closeFn(); err != nil {
		log.Warn().Err(err).Str("module", "core.peer").Str("kind", kind).Str("id", id).Msg("close failed")
	}
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
