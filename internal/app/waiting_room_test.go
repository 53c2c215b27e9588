package app

import (
	"testing"

	"github.com/dkeye/studyroom/internal/core/coretest"
	"github.com/dkeye/studyroom/internal/protocol"
)

func TestWaitingRoomNotifyOnlyThatRoom(t *testing.T) {
	w := NewWaitingRoomRegistry()
	c, conn := coretest.NewClient("s1")
	w.Join("r1", c)

	if n := w.NotifyOthers("r1", protocol.OtherPeerJoinedRoom, "u9"); n != 1 {
		t.Fatalf("sent %d, want 1", n)
	}
	if n := w.NotifyOthers("r2", protocol.OtherPeerJoinedRoom, "u9"); n != 0 {
		t.Fatalf("sent %d to another room", n)
	}
	if conn.Count(protocol.OtherPeerJoinedRoom) != 1 {
		t.Fatalf("delivered %d times, want once", conn.Count(protocol.OtherPeerJoinedRoom))
	}
}

func TestWaitingRoomJoinAppends(t *testing.T) {
	w := NewWaitingRoomRegistry()
	a, _ := coretest.NewClient("a")
	b, _ := coretest.NewClient("b")
	w.Join("r1", a)
	w.Join("r1", b)

	got := w.GetSocketsBy("r1")
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("waiting = %v", got)
	}
}

func TestWaitingRoomRemoveLastMember(t *testing.T) {
	w := NewWaitingRoomRegistry()
	a, _ := coretest.NewClient("a")
	w.Join("r1", a)

	room, ok := w.Remove("a")
	if !ok || room != "r1" {
		t.Fatalf("remove = %q %v", room, ok)
	}
	if len(w.GetSocketsBy("r1")) != 0 {
		t.Fatal("removed socket still listed")
	}
	if _, ok := w.clients["r1"]; ok {
		t.Fatal("empty lobby entry must be deleted")
	}
	if _, ok := w.Remove("a"); ok {
		t.Fatal("second remove must report nothing")
	}

	b, _ := coretest.NewClient("b")
	w.Join("r1", b)
	if got := w.GetSocketsBy("r1"); len(got) != 1 || got[0] != b {
		t.Fatalf("rejoined lobby has stale members: %v", got)
	}
}

func TestWaitingRoomMovesBetweenRooms(t *testing.T) {
	w := NewWaitingRoomRegistry()
	a, _ := coretest.NewClient("a")
	w.Join("r1", a)
	w.Join("r2", a)

	if len(w.GetSocketsBy("r1")) != 0 || len(w.GetSocketsBy("r2")) != 1 {
		t.Fatal("socket must wait in one lobby only")
	}
}

func TestWaitingRoomSkipsBrokenClient(t *testing.T) {
	w := NewWaitingRoomRegistry()
	a, connA := coretest.NewClient("a")
	b, _ := coretest.NewClient("b")
	connA.Close()
	w.Join("r1", a)
	w.Join("r1", b)

	if n := w.NotifyOthers("r1", protocol.OtherPeerExitedRoom, "u1"); n != 1 {
		t.Fatalf("sent %d, want 1", n)
	}
}
