package coretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/studyroom/internal/core"
	"github.com/pion/webrtc/v4"
)

var ErrCloseFailed = errors.New("close failed")

var seq atomic.Int64

func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, seq.Add(1))
}

type closer struct {
	mu       sync.Mutex
	closed   bool
	failing  bool
	handlers []func()
}

func (c *closer) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	hs := c.handlers
	c.handlers = nil
	failing := c.failing
	c.mu.Unlock()
	for _, h := range hs {
		h()
	}
	if failing {
		return ErrCloseFailed
	}
	return nil
}

func (c *closer) onClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

func (c *closer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FailClose makes Close return an error (after actually closing).
func (c *closer) FailClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = true
}

type Producer struct {
	closer
	id   string
	kind core.MediaKind
}

func NewProducer(kind core.MediaKind) *Producer {
	return &Producer{id: nextID("producer"), kind: kind}
}

func (p *Producer) ID() string { return p.id }
func (p *Producer) Kind() core.MediaKind { return p.kind }
func (p *Producer) Close() error { return p.close() }
func (p *Producer) OnClose(fn func()) { p.onClose(fn) }

type Consumer struct {
	closer
	id         string
	producerID string
	kind       core.MediaKind

	pmu             sync.Mutex
	paused          bool
	onProducerClose []func()
}

func NewConsumer(producerID string, kind core.MediaKind) *Consumer {
	return &Consumer{id: nextID("consumer"), producerID: producerID, kind: kind, paused: true}
}

func (c *Consumer) ID() string { return c.id }
func (c *Consumer) ProducerID() string { return c.producerID }
func (c *Consumer) Kind() core.MediaKind { return c.kind }
func (c *Consumer) Close() error { return c.close() }

func (c *Consumer) Paused() bool {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	return c.paused
}

func (c *Consumer) Resume() error {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	c.paused = false
	return nil
}

func (c *Consumer) OnProducerClose(fn func()) {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	c.onProducerClose = append(c.onProducerClose, fn)
}

// CloseProducer simulates the source producer going away.
func (c *Consumer) CloseProducer() {
	c.pmu.Lock()
	hs := c.onProducerClose
	c.pmu.Unlock()
	for _, h := range hs {
		h()
	}
}

type Transport struct {
	closer
	id     string
	router *Router

	mu        sync.Mutex
	Produced  []*Producer
	Consumed  []*Consumer
	Connected []webrtc.SessionDescription
}

func NewTransport() *Transport {
	return &Transport{id: nextID("transport")}
}

func (t *Transport) ID() string { return t.id }
func (t *Transport) Close() error { return t.close() }
func (t *Transport) OnClose(fn func()) { t.onClose(fn) }

func (t *Transport) Connect(_ context.Context, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Connected = append(t.Connected, desc)
	if desc.Type == webrtc.SDPTypeOffer {
		return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
	}
	return nil, nil
}

func (t *Transport) CreateOffer(context.Context) (*webrtc.SessionDescription, error) {
	if t.router != nil && t.router.OfferErr != nil {
		return nil, t.router.OfferErr
	}
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (t *Transport) Produce(ctx context.Context, opts core.ProducerOptions) (core.Producer, error) {
	if t.router != nil && t.router.NoMedia {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p := NewProducer(opts.Kind)
	t.mu.Lock()
	t.Produced = append(t.Produced, p)
	t.mu.Unlock()
	if t.router != nil {
		t.router.register(p)
	}
	return p, nil
}

func (t *Transport) Consume(_ context.Context, opts core.ConsumeOptions) (core.Consumer, error) {
	kind := core.KindAudio
	if t.router != nil {
		if p := t.router.producer(opts.ProducerID); p != nil {
			kind = p.Kind()
		}
	}
	c := NewConsumer(opts.ProducerID, kind)
	t.mu.Lock()
	t.Consumed = append(t.Consumed, c)
	t.mu.Unlock()
	return c, nil
}

type Router struct {
	closer
	id string

	// NoMedia makes Produce wait for a track that never arrives.
	NoMedia  bool
	// OfferErr fails every CreateOffer.
	OfferErr error

	mu         sync.Mutex
	producers  map[string]*Producer
	Transports []*Transport
}

func NewRouter() *Router {
	return &Router{id: nextID("router"), producers: make(map[string]*Producer)}
}

func (r *Router) ID() string { return r.id }
func (r *Router) RTPCapabilities() any { return map[string]string{"router": r.id} }
func (r *Router) Close() error { return r.close() }

func (r *Router) CreateTransport(context.Context, bool) (core.Transport, error) {
	t := NewTransport()
	t.router = r
	r.mu.Lock()
	r.Transports = append(r.Transports, t)
	r.mu.Unlock()
	return t, nil
}

func (r *Router) CanConsume(producerID string) bool {
	p := r.producer(producerID)
	return p != nil && !p.Closed()
}

func (r *Router) register(p *Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.ID()] = p
}

func (r *Router) producer(id string) *Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.producers[id]
}

// Engine hands out fake routers. NoMedia and OfferErr are copied into
// every router it creates.
type Engine struct {
	mu       sync.Mutex
	Routers  []*Router
	Err      error
	NoMedia  bool
	OfferErr error
}

func (e *Engine) CreateRouter(context.Context) (core.Router, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	r := NewRouter()
	r.NoMedia, r.OfferErr = e.NoMedia, e.OfferErr
	e.mu.Lock()
	e.Routers = append(e.Routers, r)
	e.mu.Unlock()
	return r, nil
}

func (e *Engine) RouterCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Routers)
}
