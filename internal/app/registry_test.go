package app

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/core/coretest"
	"github.com/dkeye/studyroom/internal/domain"
)

func newPeer(t *testing.T, uid string) (*core.Peer, *coretest.Conn) {
	t.Helper()
	client, conn := coretest.NewClient("sid-" + uid)
	return core.NewPeer(domain.User{ID: domain.UserID(uid), Name: uid}, client, false), conn
}

func newRegistry(t *testing.T, capacity int) (*RoomRegistry, *coretest.Store) {
	t.Helper()
	store := coretest.NewStore()
	store.AddRoom("r1", "master", "secret")
	return NewRoomRegistry(store, &coretest.Scheduler{}, capacity), store
}

func TestCreateAndJoinThenFind(t *testing.T) {
	reg, _ := newRegistry(t, 4)
	first, _ := newPeer(t, "u1")
	router := coretest.NewRouter()

	room, created, err := reg.CreateAndJoin(context.Background(), router, "r1", first)
	if err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}
	got := reg.FindRoomByID("r1")
	if got != room || got.ID() != "r1" {
		t.Fatal("room must be registered under its id")
	}
	if peers := got.Peers(); len(peers) != 1 || peers[0] != first {
		t.Fatalf("peers = %v, want only the first peer", peers)
	}
	if reg.FindRoomBySessionID(first.SessionID()) != room || reg.FindPeerBy(first.SessionID()) != first {
		t.Fatal("sid mapping missing")
	}
	if got.MasterID() != "master" || got.Router() != core.Router(router) {
		t.Fatal("room must carry the persisted master and the given router")
	}
}

func TestCreateAndJoinUnknownRoom(t *testing.T) {
	reg, _ := newRegistry(t, 4)
	p, _ := newPeer(t, "u1")
	_, _, err := reg.CreateAndJoin(context.Background(), coretest.NewRouter(), "nope", p)
	if !errors.Is(err, ErrRoomNotPersisted) {
		t.Fatalf("err = %v, want ErrRoomNotPersisted", err)
	}
	if reg.RoomCount() != 0 || reg.FindRoomBySessionID(p.SessionID()) != nil {
		t.Fatal("nothing may be registered on failure")
	}
}

func TestCreateAndJoinLosesRace(t *testing.T) {
	reg, _ := newRegistry(t, 4)
	p1, _ := newPeer(t, "u1")
	p2, _ := newPeer(t, "u2")
	first, _, _ := reg.CreateAndJoin(context.Background(), coretest.NewRouter(), "r1", p1)

	room, created, err := reg.CreateAndJoin(context.Background(), coretest.NewRouter(), "r1", p2)
	if err != nil || created {
		t.Fatalf("created=%v err=%v", created, err)
	}
	if room != first || room.PeerCount() != 2 {
		t.Fatal("second creator must join the live room")
	}
}

func TestJoinRequiresLiveRoom(t *testing.T) {
	reg, _ := newRegistry(t, 4)
	p, _ := newPeer(t, "u1")
	if _, err := reg.Join("r1", p); !errors.Is(err, core.ErrRoomNotFound) {
		t.Fatalf("err = %v, want ErrRoomNotFound", err)
	}
}

func TestJoinAdmissionIsRechecked(t *testing.T) {
	reg, _ := newRegistry(t, 2)
	p1, _ := newPeer(t, "u1")
	room, _, _ := reg.CreateAndJoin(context.Background(), coretest.NewRouter(), "r1", p1)

	p2, _ := newPeer(t, "u2")
	if _, err := reg.Join("r1", p2); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := reg.Join("r1", p2); !errors.Is(err, ErrAlreadyInRoom) {
		t.Fatalf("err = %v, want ErrAlreadyInRoom", err)
	}
	p3, _ := newPeer(t, "u3")
	if _, err := reg.Join("r1", p3); !errors.Is(err, core.ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}
	if reg.FindRoomBySessionID(p3.SessionID()) != nil {
		t.Fatal("rejected peer must not be mapped")
	}

	room.BlockUser("u4", "u4")
	master, _ := newPeer(t, "master")
	if _, err := reg.Join("r1", master); err != nil {
		t.Fatalf("master bypasses capacity: %v", err)
	}
	u4, _ := newPeer(t, "u4")
	if _, err := reg.Join("r1", u4); !errors.Is(err, core.ErrRoomFull) && !errors.Is(err, core.ErrUserBlocked) {
		t.Fatalf("err = %v", err)
	}
}

func TestLeaveRemovesRoomWithLastPeer(t *testing.T) {
	reg, _ := newRegistry(t, 4)
	p1, _ := newPeer(t, "u1")
	p2, _ := newPeer(t, "u2")
	room, _, _ := reg.CreateAndJoin(context.Background(), coretest.NewRouter(), "r1", p1)
	_, _ = reg.Join("r1", p2)
	producer := coretest.NewProducer(core.KindAudio)
	_ = p1.AddProducer(producer)

	res, err := reg.Leave(p1.SessionID())
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if res.Peer != p1 || res.Room != room || res.RoomRemoved {
		t.Fatalf("unexpected result %+v", res)
	}
	if !producer.Closed() {
		t.Fatal("leaving peer must be disposed")
	}
	if reg.FindRoomByID("r1") == nil || !room.HasPeer() {
		t.Fatal("room with peers must stay registered")
	}

	res, err = reg.Leave(p2.SessionID())
	if err != nil || !res.RoomRemoved {
		t.Fatalf("last leave: %+v %v", res, err)
	}
	if reg.FindRoomByID("r1") != nil || reg.RoomCount() != 0 {
		t.Fatal("empty room must be unregistered")
	}
	if room.HasPeer() {
		t.Fatal("room registered iff it has peers")
	}
}

func TestLeaveUnknownSocket(t *testing.T) {
	reg, _ := newRegistry(t, 4)
	res, err := reg.Leave("ghost")
	if err != nil || res.Room != nil {
		t.Fatalf("got %+v %v", res, err)
	}
}

func TestDeleteHelpers(t *testing.T) {
	reg, _ := newRegistry(t, 4)
	p1, _ := newPeer(t, "u1")
	room, _, _ := reg.CreateAndJoin(context.Background(), coretest.NewRouter(), "r1", p1)

	reg.DeleteSessionID(p1.SessionID())
	if reg.FindPeerBy(p1.SessionID()) != nil {
		t.Fatal("sid mapping should be gone")
	}
	reg.DeleteRoom(room)
	if reg.FindRoomByID("r1") != nil {
		t.Fatal("room should be gone")
	}
}

func TestDualPathReads(t *testing.T) {
	ctx := context.Background()
	reg, store := newRegistry(t, 4)
	store.Rooms["r1"].Blacklist = []domain.BlockedUser{{ID: "bad", Name: "Bad"}}

	if l := reg.JoinerList("r1"); l == nil || len(l) != 0 {
		t.Fatalf("joiners of a cold room = %#v", l)
	}
	if m, _ := reg.MasterID(ctx, "r1"); m != "master" {
		t.Fatalf("master = %q", m)
	}
	if pw, _ := reg.Password(ctx, "r1"); pw != "secret" {
		t.Fatalf("password = %q", pw)
	}
	if bl, _ := reg.Blacklist(ctx, "r1"); len(bl) != 1 {
		t.Fatalf("blacklist = %v", bl)
	}
	if _, err := reg.MasterID(ctx, "nope"); !errors.Is(err, ErrRoomNotPersisted) {
		t.Fatalf("err = %v", err)
	}

	p1, _ := newPeer(t, "u1")
	room, _, _ := reg.CreateAndJoin(ctx, coretest.NewRouter(), "r1", p1)
	room.UnblockUser("bad")

	if l := reg.JoinerList("r1"); len(l) != 1 || l[0].ID != "u1" {
		t.Fatalf("live joiners = %v", l)
	}
	if bl, _ := reg.Blacklist(ctx, "r1"); len(bl) != 0 {
		t.Fatal("live room is authoritative over the store")
	}
}

func TestRoomIDs(t *testing.T) {
	reg, store := newRegistry(t, 4)
	store.AddRoom("r0", "m", "")
	p1, _ := newPeer(t, "u1")
	p2, _ := newPeer(t, "u2")
	_, _, _ = reg.CreateAndJoin(context.Background(), coretest.NewRouter(), "r1", p1)
	_, _, _ = reg.CreateAndJoin(context.Background(), coretest.NewRouter(), "r0", p2)

	ids := reg.RoomIDs()
	if len(ids) != 2 || ids[0] != "r0" || ids[1] != "r1" {
		t.Fatalf("ids = %v", ids)
	}
}
