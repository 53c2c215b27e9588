package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// RTPReader is the remote end of a producer, a *webrtc.TrackRemote in
// production.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Relay copies every packet of one producer to all of its consumers.
type Relay struct {
	ProducerID string
	Src        RTPReader

	mu        sync.RWMutex
	outTracks map[string]*OutTrack

	cancel  context.CancelFunc
	onEnded func()
	done    chan struct{}
}

func NewRelay(producerID string, src RTPReader, cancel context.CancelFunc, onEnded func()) *Relay {
	return &Relay{
		ProducerID: producerID,
		Src:        src,
		outTracks:  make(map[string]*OutTrack),
		cancel:     cancel,
		onEnded:    onEnded,
		done:       make(chan struct{}),
	}
}

// loop reads RTP packets from the source and forwards them to all OutTracks.
// A read error means the producer is gone; onEnded is called then.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			if ctx.Err() == nil {
				logger.Info().Err(err).Msg("relay source ended")
			}
			r.markAllDelete()
			if r.onEnded != nil && ctx.Err() == nil {
				r.onEnded()
			}
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	var dirty []string
	for consumerID, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, consumerID)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("consumer", consumerID).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, consumerID)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range dirty {
		if ot, ok := r.outTracks[id]; ok && ot.GetState() == TrackStateDelete {
			delete(r.outTracks, id)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) AddOutTrack(ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[ot.ConsumerID] = ot
}

func (r *Relay) OutTrack(consumerID string) (*OutTrack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ot, ok := r.outTracks[consumerID]
	return ot, ok
}

func (r *Relay) OutTrackCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}

// Stop cancels the loop without calling onEnded. The loop itself exits on
// the next packet or read error.
func (r *Relay) Stop() {
	r.markAllDelete()
	if r.cancel != nil {
		r.cancel()
	}
}

// Done is closed once the loop returned.
func (r *Relay) Done() <-chan struct{} { return r.done }
