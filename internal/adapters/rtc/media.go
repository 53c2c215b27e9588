package rtc

import (
	"github.com/dkeye/studyroom/internal/app/sfu"
	"github.com/dkeye/studyroom/internal/core"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// Producer is a client track received on a send transport.
type Producer struct {
	id        string
	kind      core.MediaKind
	transport *Transport
	remote    *webrtc.TrackRemote
	receiver  *webrtc.RTPReceiver

	closed hooks
}

func (p *Producer) ID() string { return p.id }
func (p *Producer) Kind() core.MediaKind { return p.kind }
func (p *Producer) OnClose(fn func()) { p.closed.add(fn) }
func (p *Producer) isClosed() bool { return p.closed.done() }

// Close stops the relay and notifies consumers. The receiver is stopped so
// the client's track stops flowing to the server.
func (p *Producer) Close() error {
	if !p.closed.fire() {
		return nil
	}
	r := p.transport.router
	r.removeProducer(p.id)
	r.relays.StopRelay(p.id)
	return p.receiver.Stop()
}

// requestKeyframe sends a PLI to the client publishing the video.
func (p *Producer) requestKeyframe() {
	if p.kind != core.KindVideo || p.isClosed() {
		return
	}
	err := p.transport.writeRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(p.remote.SSRC())},
	})
	if err != nil {
		p.transport.logger.Debug().Err(err).Str("producer", p.id).Msg("PLI not sent")
	}
}

// Consumer is a producer's stream forwarded on a receive transport.
type Consumer struct {
	id        string
	producer  *Producer
	transport *Transport
	sender    *webrtc.RTPSender
	out       *sfu.OutTrack

	closed         hooks
	producerClosed hooks
}

func (c *Consumer) ID() string { return c.id }
func (c *Consumer) ProducerID() string { return c.producer.id }
func (c *Consumer) Kind() core.MediaKind { return c.producer.kind }
func (c *Consumer) Paused() bool { return c.out.GetState() == sfu.TrackStateMuted }

// Resume lets packets through and asks for a keyframe so video starts at once.
func (c *Consumer) Resume() error {
	if c.closed.done() {
		return ErrTransportClosed
	}
	c.out.MarkOk()
	c.producer.requestKeyframe()
	return nil
}

func (c *Consumer) OnProducerClose(fn func()) { c.producerClosed.add(fn) }

func (c *Consumer) onSourceClosed() {
	c.producerClosed.fire()
}

func (c *Consumer) Close() error {
	if !c.closed.fire() {
		return nil
	}
	c.out.MarkDelete()
	c.transport.router.relays.MarkSubscriberDelete(c.producer.id, c.id)
	c.transport.removeConsumer(c)
	if c.transport.closed.done() {
		return nil
	}
	return c.transport.pc.RemoveTrack(c.sender)
}

// readRTCP drains the sender's RTCP and forwards keyframe requests to the
// publisher. It returns once the sender is stopped.
func (c *Consumer) readRTCP() {
	for {
		pkts, _, err := c.sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				c.producer.requestKeyframe()
			}
		}
	}
}
