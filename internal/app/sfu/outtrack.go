package sfu

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

func (s TrackState) String() string {
	switch s {
	case TrackStateOk:
		return "ok"
	case TrackStateMuted:
		return "muted"
	case TrackStateDelete:
		return "delete"
	}
	return "unknown"
}

// RTPWriter is the local end of a consumer, a *webrtc.TrackLocalStaticRTP in
// production.
type RTPWriter interface {
	WriteRTP(*rtp.Packet) error
}

// OutTrack is one consumer's copy of a relayed stream. A paused consumer is
// muted: packets are dropped until it is resumed.
type OutTrack struct {
	ConsumerID string
	Track      RTPWriter
	state      atomic.Int32
}

func NewOutTrack(consumerID string, track RTPWriter, paused bool) *OutTrack {
	ot := &OutTrack{ConsumerID: consumerID, Track: track}
	if paused {
		ot.MarkMuted()
	}
	return ot
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

func (ot *OutTrack) MarkMuted() {
	ot.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
}

// MarkDelete is final; the relay drops the track on its next packet.
func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}
