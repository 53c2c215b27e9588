package rtc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/studyroom/internal/core"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	e, err := NewEngine(Config{MinPort: 40000, MaxPort: 40100})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	r, err := e.CreateRouter(context.Background())
	if err != nil {
		t.Fatalf("CreateRouter: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r.(*Router)
}

func newTestTransport(t *testing.T, r *Router, isConsumer bool) *Transport {
	t.Helper()
	tr, err := r.CreateTransport(context.Background(), isConsumer)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr.(*Transport)
}

func TestEngineIgnoresInvertedPortRange(t *testing.T) {
	if _, err := NewEngine(Config{MinPort: 50000, MaxPort: 40000}); err != nil {
		t.Fatalf("inverted range should be ignored, got %v", err)
	}
}

func TestRouterCapabilities(t *testing.T) {
	r := newTestRouter(t)
	caps, ok := r.RTPCapabilities().(Capabilities)
	if !ok {
		t.Fatalf("capabilities type %T", r.RTPCapabilities())
	}
	if len(caps.Codecs) != 2 {
		t.Fatalf("codecs: %+v", caps.Codecs)
	}
	kinds := map[string]uint32{}
	for _, c := range caps.Codecs {
		kinds[c.Kind] = c.ClockRate
	}
	if kinds["audio"] != 48000 || kinds["video"] != 90000 {
		t.Errorf("unexpected codec set %+v", caps.Codecs)
	}
}

func TestRouterCloseIsIdempotentAndFinal(t *testing.T) {
	r := newTestRouter(t)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := r.CreateTransport(context.Background(), false); !errors.Is(err, ErrRouterClosed) {
		t.Fatalf("want ErrRouterClosed, got %v", err)
	}
	if r.CanConsume("anything") {
		t.Error("closed router can consume")
	}
}

func TestTransportDirection(t *testing.T) {
	r := newTestRouter(t)
	send := newTestTransport(t, r, false)
	recv := newTestTransport(t, r, true)

	if _, err := recv.Produce(context.Background(), core.ProducerOptions{Kind: core.KindAudio}); !errors.Is(err, ErrWrongDirection) {
		t.Errorf("produce on receive transport: %v", err)
	}
	if _, err := send.Consume(context.Background(), core.ConsumeOptions{ProducerID: "x"}); !errors.Is(err, ErrWrongDirection) {
		t.Errorf("consume on send transport: %v", err)
	}
	if _, err := recv.Consume(context.Background(), core.ConsumeOptions{ProducerID: "missing"}); !errors.Is(err, ErrProducerNotFound) {
		t.Errorf("consume unknown producer: %v", err)
	}
}

func TestProduceWaitsForTrack(t *testing.T) {
	r := newTestRouter(t)
	send := newTestTransport(t, r, false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := send.Produce(ctx, core.ProducerOptions{Kind: core.KindVideo})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	if _, err := send.Produce(context.Background(), core.ProducerOptions{Kind: "screen"}); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestProduceUnblocksOnRouterClose(t *testing.T) {
	r := newTestRouter(t)
	send := newTestTransport(t, r, false)

	errc := make(chan error, 1)
	go func() {
		_, err := send.Produce(context.Background(), core.ProducerOptions{Kind: core.KindAudio})
		errc <- err
	}()
	_ = r.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrRouterClosed) {
			t.Fatalf("want ErrRouterClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Produce did not return")
	}
}

func TestTransportCloseFiresOnce(t *testing.T) {
	r := newTestRouter(t)
	tr := newTestTransport(t, r, true)

	calls := 0
	tr.OnClose(func() { calls++ })
	_ = tr.Close()
	_ = tr.Close()
	if calls != 1 {
		t.Fatalf("OnClose ran %d times", calls)
	}
	late := false
	tr.OnClose(func() { late = true })
	if !late {
		t.Error("handler added after close did not run")
	}
	if _, err := tr.CreateOffer(context.Background()); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("offer on closed transport: %v", err)
	}
}
