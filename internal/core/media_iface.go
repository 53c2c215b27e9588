package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// MediaEngine is the SFU. Every handle it returns is owned by exactly one Peer
// (or Room, for the router) which must Close it.
type MediaEngine interface {
	CreateRouter(ctx context.Context) (Router, error)
}

type Router interface {
	ID() string
	// RTPCapabilities is sent as-is to clients joining the room.
	RTPCapabilities() any
	CreateTransport(ctx context.Context, isConsumer bool) (Transport, error)
	CanConsume(producerID string) bool
	Close() error
}

type ProducerOptions struct {
	Kind MediaKind `json:"kind"`
}

type ConsumeOptions struct {
	ProducerID string
	Paused     bool
}

type Transport interface {
	ID() string
	// Connect applies a remote description. An offer yields the local answer,
	// an answer yields nil.
	Connect(ctx context.Context, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// CreateOffer renegotiates after consumers were added.
	CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error)
	Produce(ctx context.Context, opts ProducerOptions) (Producer, error)
	Consume(ctx context.Context, opts ConsumeOptions) (Consumer, error)
	Close() error
	// OnClose fires once, whoever closed the transport.
	OnClose(func())
}

type Producer interface {
	ID() string
	Kind() MediaKind
	Close() error
	OnClose(func())
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() MediaKind
	Paused() bool
	Resume() error
	Close() error
	// OnProducerClose fires when the source producer goes away.
	OnProducerClose(func())
}
