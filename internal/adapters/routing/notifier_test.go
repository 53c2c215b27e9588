package routing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/studyroom/internal/domain"
	"github.com/dkeye/studyroom/internal/protocol"
	"github.com/gorilla/websocket"
)

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func routingServer(t *testing.T) (string, <-chan received) {
	t.Helper()
	out := make(chan received, 16)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			var m received
			if err := c.ReadJSON(&m); err != nil {
				return
			}
			out <- m
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), out
}

func next(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("nothing received")
		return received{}
	}
}

func TestRegistersThenForwardsRoomEvents(t *testing.T) {
	url, got := routingServer(t)
	n := NewNotifier(url, func() RegisterRequest {
		return RegisterRequest{IP: "10.0.0.1", Port: 8080, RunningRooms: []domain.RoomID{"r0"}, MaxRoomCapacity: 5}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	reg := next(t, got)
	if reg.Type != protocol.RegisterMediaServer {
		t.Fatalf("first message %q", reg.Type)
	}
	var req RegisterRequest
	if err := json.Unmarshal(reg.Data, &req); err != nil {
		t.Fatal(err)
	}
	if req.IP != "10.0.0.1" || len(req.RunningRooms) != 1 || req.MaxRoomCapacity != 5 {
		t.Fatalf("register request %+v", req)
	}

	n.CreatedRoom("r1")
	n.RemovedRoom("r1")
	for _, want := range []string{protocol.CreatedRoom, protocol.RemovedRoom} {
		m := next(t, got)
		var id domain.RoomID
		_ = json.Unmarshal(m.Data, &id)
		if m.Type != want || id != "r1" {
			t.Fatalf("got %s(%s), want %s(r1)", m.Type, id, want)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	n := NewNotifier("ws://unused", nil)
	for i := 0; i < queueSize+10; i++ {
		n.CreatedRoom("r")
	}
	if len(n.events) != queueSize {
		t.Fatalf("queue holds %d", len(n.events))
	}
}
