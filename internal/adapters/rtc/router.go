package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/studyroom/internal/app/sfu"
	"github.com/dkeye/studyroom/internal/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrRouterClosed     = errors.New("router closed")
	ErrProducerNotFound = errors.New("producer not found")
)

// Router scopes producers and relays to one room.
type Router struct {
	id     string
	engine *Engine
	relays *sfu.RelayManager

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	producers map[string]*Producer
	closed    bool
}

func newRouter(e *Engine) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		id:        uuid.NewString(),
		engine:    e,
		relays:    sfu.NewRelayManager(),
		ctx:       ctx,
		cancel:    cancel,
		producers: make(map[string]*Producer),
	}
	log.Info().Str("module", "webrtc").Str("router", r.id).Msg("router created")
	return r
}

func (r *Router) ID() string { return r.id }

func (r *Router) RTPCapabilities() any { return r.engine.capsCache }

func (r *Router) CreateTransport(_ context.Context, isConsumer bool) (core.Transport, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRouterClosed
	}
	pc, err := r.engine.api.NewPeerConnection(r.engine.pcConfig)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newTransport(r, pc, isConsumer), nil
}

func (r *Router) CanConsume(producerID string) bool {
	p := r.producer(producerID)
	return p != nil && !p.isClosed()
}

func (r *Router) producer(id string) *Producer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.producers[id]
}

func (r *Router) addProducer(p *Producer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRouterClosed
	}
	r.producers[p.id] = p
	return nil
}

func (r *Router) removeProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

// Close stops every relay. Transports belong to peers and are closed by them.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.producers = make(map[string]*Producer)
	r.mu.Unlock()

	r.relays.StopAll()
	r.cancel()
	log.Info().Str("module", "webrtc").Str("router", r.id).Msg("router closed")
	return nil
}
