package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/core/coretest"
	"github.com/dkeye/studyroom/internal/domain"
)

type panickyProducer struct{ closed bool }

func (p *panickyProducer) ID() string { return "panicky" }
func (p *panickyProducer) Kind() core.MediaKind { return core.KindVideo }
func (p *panickyProducer) OnClose(func()) {}
func (p *panickyProducer) Close() error {
	p.closed = true
	panic("boom")
}

func newTestPeer(t *testing.T, uid string) (*core.Peer, *coretest.Conn) {
	t.Helper()
	client, conn := coretest.NewClient("sid-" + uid)
	return core.NewPeer(domain.User{ID: domain.UserID(uid), Name: "user " + uid}, client, false), conn
}

func TestPeerDisposeClosesEverything(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPeer(t, "u1")
	router := coretest.NewRouter()

	send, _ := router.CreateTransport(ctx, false)
	recv1, _ := router.CreateTransport(ctx, true)
	recv2, _ := router.CreateTransport(ctx, true)
	for _, tr := range []struct {
		t        core.Transport
		consumer bool
	}{{send, false}, {recv1, true}, {recv2, true}} {
		if err := p.AddTransport(tr.t, tr.consumer); err != nil {
			t.Fatalf("add transport: %v", err)
		}
	}

	audio := coretest.NewProducer(core.KindAudio)
	audio.FailClose()
	video := &panickyProducer{}
	cons := coretest.NewConsumer("remote", core.KindAudio)
	_ = p.AddProducer(audio)
	_ = p.AddProducer(video)
	_ = p.AddConsumer(cons)

	if p.HandleCount() != 6 {
		t.Fatalf("handles = %d, want 6", p.HandleCount())
	}

	p.Dispose()

	if !audio.Closed() || !video.closed || !cons.Closed() {
		t.Fatal("every producer and consumer must be closed even if one fails")
	}
	for _, tr := range []core.Transport{send, recv1, recv2} {
		if !tr.(*coretest.Transport).Closed() {
			t.Fatalf("transport %s left open", tr.ID())
		}
	}
	if p.HandleCount() != 0 {
		t.Fatalf("handles after dispose = %d", p.HandleCount())
	}

	// Idempotent.
	p.Dispose()
}

func TestPeerRejectsHandlesAfterDispose(t *testing.T) {
	p, _ := newTestPeer(t, "u1")
	p.Dispose()

	pr := coretest.NewProducer(core.KindVideo)
	if err := p.AddProducer(pr); !errors.Is(err, core.ErrPeerDisposed) {
		t.Fatalf("err = %v, want ErrPeerDisposed", err)
	}
	if !pr.Closed() {
		t.Fatal("late producer must be closed")
	}
	tr := coretest.NewTransport()
	if err := p.AddTransport(tr, true); !errors.Is(err, core.ErrPeerDisposed) {
		t.Fatalf("err = %v, want ErrPeerDisposed", err)
	}
	if !tr.Closed() {
		t.Fatal("late transport must be closed")
	}
	if p.HandleCount() != 0 {
		t.Fatal("disposed peer must not own handles")
	}
}

func TestPeerReceiveTransportRemovedOnClose(t *testing.T) {
	p, _ := newTestPeer(t, "u1")
	tr := coretest.NewTransport()
	_ = p.AddTransport(tr, true)
	if p.FindReceiveTransport(tr.ID()) == nil {
		t.Fatal("transport not registered")
	}
	_ = tr.Close()
	if p.FindReceiveTransport(tr.ID()) != nil {
		t.Fatal("closed transport must drop out of the peer")
	}
}

func TestPeerReplacingSendTransportClosesOld(t *testing.T) {
	p, _ := newTestPeer(t, "u1")
	first, second := coretest.NewTransport(), coretest.NewTransport()
	_ = p.AddTransport(first, false)
	_ = p.AddTransport(second, false)
	if !first.Closed() {
		t.Fatal("replaced send transport must be closed")
	}
	if p.SendTransport() != core.Transport(second) {
		t.Fatal("second transport should be the send transport")
	}
}

func TestPeerMuteHeadset(t *testing.T) {
	p, _ := newTestPeer(t, "u1")
	a := coretest.NewConsumer("pa", core.KindAudio)
	v := coretest.NewConsumer("pv", core.KindVideo)
	_ = p.AddConsumer(a)
	_ = p.AddConsumer(v)

	p.MuteHeadset()
	if !p.MutedHeadset() {
		t.Fatal("peer should be muted")
	}
	if !a.Closed() || v.Closed() {
		t.Fatal("mute closes audio consumers only")
	}
	if p.FindConsumer(a.ID()) != nil || p.FindConsumer(v.ID()) == nil {
		t.Fatal("mute must forget audio consumers only")
	}
	if st := p.State(); st.EnabledHeadset {
		t.Fatal("state must report the headset off")
	}

	// A fresh audio consumer turns the headset back on.
	_ = p.AddConsumer(coretest.NewConsumer("pa", core.KindAudio))
	if p.MutedHeadset() {
		t.Fatal("audio consumer should unmute")
	}
}

func TestPeerHideRemoteVideo(t *testing.T) {
	p, _ := newTestPeer(t, "u1")
	keep := coretest.NewConsumer("other", core.KindVideo)
	hide := coretest.NewConsumer("target", core.KindVideo)
	_ = p.AddConsumer(keep)
	_ = p.AddConsumer(hide)

	p.HideRemoteVideo("target")

	if !hide.Closed() || keep.Closed() {
		t.Fatal("only the consumer of the hidden producer is closed")
	}
	p.HideRemoteVideo("missing")
}

func TestPeerCloseProducersByKind(t *testing.T) {
	p, _ := newTestPeer(t, "u1")
	a := coretest.NewProducer(core.KindAudio)
	v1 := coretest.NewProducer(core.KindVideo)
	v2 := coretest.NewProducer(core.KindVideo)
	for _, pr := range []core.Producer{a, v1, v2} {
		_ = p.AddProducer(pr)
	}

	st := p.State()
	if !st.EnabledMicrophone || !st.HasVideo {
		t.Fatalf("unexpected state %+v", st)
	}

	p.CloseAndRemoveVideoProducer()
	if !v1.Closed() || !v2.Closed() || a.Closed() {
		t.Fatal("video close must only touch video producers")
	}
	if ids := p.VideoProducerIDs(); len(ids) != 0 {
		t.Fatalf("video producers left: %v", ids)
	}
	if ids := p.AudioProducerIDs(); len(ids) != 1 || ids[0] != a.ID() {
		t.Fatalf("audio producers = %v", ids)
	}

	p.CloseAndRemoveAudioProducer()
	p.CloseAndRemoveAudioProducer()
	if p.HasProducer() {
		t.Fatal("no producers expected")
	}
}
