package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/core/coretest"
	"github.com/dkeye/studyroom/internal/domain"
	"github.com/dkeye/studyroom/internal/protocol"
)

func newTestRoom(t *testing.T, master string, first *core.Peer) (*core.Room, *coretest.Store, *coretest.Scheduler) {
	t.Helper()
	store := coretest.NewStore()
	rec := store.AddRoom("room-1", domain.UserID(master), "")
	sched := &coretest.Scheduler{}
	r := core.NewRoom(core.RoomOptions{Router: coretest.NewRouter(), Record: rec, Store: store, Scheduler: sched}, first)
	return r, store, sched
}

func TestRoomAdmitCapacity(t *testing.T) {
	first, _ := newTestPeer(t, "u1")
	r, _, _ := newTestRoom(t, "master", first)

	second, _ := newTestPeer(t, "u2")
	if err := r.Admit(second, 2); err != nil {
		t.Fatalf("admit: %v", err)
	}
	third, _ := newTestPeer(t, "u3")
	if err := r.Admit(third, 2); !errors.Is(err, core.ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}
	master, _ := newTestPeer(t, "master")
	if err := r.Admit(master, 2); err != nil {
		t.Fatalf("master must bypass capacity: %v", err)
	}
	if r.PeerCount() != 3 {
		t.Fatalf("peers = %d, want 3", r.PeerCount())
	}
}

func TestRoomAdmitBlacklist(t *testing.T) {
	r, _, _ := newTestRoom(t, "master", nil)
	r.BlockUser("bad", "Bad")
	r.BlockUser("bad", "Bad")
	if n := len(r.Blacklist()); n != 1 {
		t.Fatalf("blacklist has %d entries, want 1", n)
	}

	bad, _ := newTestPeer(t, "bad")
	if err := r.Admit(bad, 4); !errors.Is(err, core.ErrUserBlocked) {
		t.Fatalf("err = %v, want ErrUserBlocked", err)
	}
	r.UnblockUser("bad")
	if err := r.Admit(bad, 4); err != nil {
		t.Fatalf("admit after unblock: %v", err)
	}
}

func TestRoomDisposePeer(t *testing.T) {
	first, _ := newTestPeer(t, "u1")
	r, _, _ := newTestRoom(t, "u1", first)
	pr := coretest.NewProducer(core.KindVideo)
	_ = first.AddProducer(pr)

	got, err := r.DisposePeer(first.SessionID())
	if err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if got != first || !pr.Closed() {
		t.Fatal("peer must be returned and its handles closed")
	}
	if r.HasPeer() {
		t.Fatal("room should be empty")
	}
	if _, err := r.DisposePeer(first.SessionID()); !errors.Is(err, core.ErrPeerNotFound) {
		t.Fatalf("err = %v, want ErrPeerNotFound", err)
	}
}

func TestRoomBroadcastWhere(t *testing.T) {
	p1, c1 := newTestPeer(t, "u1")
	r, _, _ := newTestRoom(t, "u1", p1)
	p2, c2 := newTestPeer(t, "u2")
	p3, c3 := newTestPeer(t, "u3")
	r.Join(p2)
	r.Join(p3)
	c3.Full = true

	res := r.BroadcastProtocol(core.Broadcast{
		Protocol: protocol.OtherPeerJoinedRoom,
		Args:     p1.Joiner(),
		Where:    func(p *core.Peer) bool { return p.SessionID() != p1.SessionID() },
	})

	if res.SendTo != 1 || len(res.Dropped) != 1 || res.Dropped[0] != p3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if c1.Count(protocol.OtherPeerJoinedRoom) != 0 {
		t.Fatal("excluded peer received the broadcast")
	}
	var joiner domain.RoomJoiner
	if !c2.Last(protocol.OtherPeerJoinedRoom, &joiner) || joiner.ID != "u1" {
		t.Fatalf("u2 got %+v", joiner)
	}
}

func TestRoomProducerIDsExcludeRequester(t *testing.T) {
	p1, _ := newTestPeer(t, "u1")
	r, _, _ := newTestRoom(t, "u1", p1)
	p2, _ := newTestPeer(t, "u2")
	r.Join(p2)

	own := coretest.NewProducer(core.KindAudio)
	audio := coretest.NewProducer(core.KindAudio)
	video := coretest.NewProducer(core.KindVideo)
	_ = p1.AddProducer(own)
	_ = p2.AddProducer(audio)
	_ = p2.AddProducer(video)

	all := r.FindOthersProducerIDs(p1.SessionID())
	if len(all) != 2 {
		t.Fatalf("got %v, want two producers of u2", all)
	}
	for _, id := range all {
		if id.UserID != "u2" {
			t.Fatalf("requester's own producer leaked: %+v", id)
		}
	}
	onlyAudio := r.FindOthersAudioProducerIDs(p1.SessionID())
	if len(onlyAudio) != 1 || onlyAudio[0].ProducerID != audio.ID() {
		t.Fatalf("audio = %v", onlyAudio)
	}

	lone, _ := newTestPeer(t, "u3")
	empty, _, _ := newTestRoom(t, "u3", lone)
	if ids := empty.FindOthersProducerIDs(lone.SessionID()); ids == nil || len(ids) != 0 {
		t.Fatalf("want empty non-nil list, got %#v", ids)
	}
}

func TestRoomFindVideoProducerID(t *testing.T) {
	p1, _ := newTestPeer(t, "u1")
	r, _, _ := newTestRoom(t, "u1", p1)

	got, err := r.FindVideoProducerID("u1")
	if err != nil || got != nil {
		t.Fatalf("no video yet: got %v, %v", got, err)
	}
	v := coretest.NewProducer(core.KindVideo)
	_ = p1.AddProducer(v)
	got, err = r.FindVideoProducerID("u1")
	if err != nil || got == nil || got.ProducerID != v.ID() {
		t.Fatalf("got %v, %v", got, err)
	}
	if _, err := r.FindVideoProducerID("gone"); !errors.Is(err, core.ErrPeerNotFound) {
		t.Fatalf("err = %v, want ErrPeerNotFound", err)
	}
}

func TestRoomTimerBroadcasts(t *testing.T) {
	p1, c1 := newTestPeer(t, "u1")
	r, store, sched := newTestRoom(t, "u1", p1)

	var events []core.TimerEvent
	if !r.StartTimer(func(ev core.TimerEvent) { events = append(events, ev) }) {
		t.Fatal("timer should start")
	}
	if r.StartTimer(func(core.TimerEvent) { t.Fatal("second observer must not be registered") }) {
		t.Fatal("timer already running")
	}
	if c1.Count(protocol.StartTimer) != 1 {
		t.Fatalf("start-timer sent %d times", c1.Count(protocol.StartTimer))
	}
	if r.TimerEventDate() == nil {
		t.Fatal("running timer has an event date")
	}
	sched.RunPending()
	// The observer is registered after the start itself was announced.
	if len(events) != 1 || events[0] != core.TimerEventShortBreak {
		t.Fatalf("events = %v", events)
	}

	length := 45
	prop, err := r.EditAndStopTimer(context.Background(), domain.TimerPropertyPatch{TimerLengthMinutes: &length})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if prop.TimerLengthMinutes != 45 || store.Rooms["room-1"].Timer.TimerLengthMinutes != 45 {
		t.Fatal("property must be merged and persisted")
	}
	var sent domain.TimerProperty
	if !c1.Last(protocol.EditAndStopTimer, &sent) || sent != prop {
		t.Fatalf("broadcast property %+v", sent)
	}
	if r.TimerState() != core.TimerStopped || r.TimerEventDate() != nil {
		t.Fatal("timer must be stopped")
	}
}

func TestRoomEditTimerStoreFailureKeepsTimer(t *testing.T) {
	p1, c1 := newTestPeer(t, "u1")
	r, store, _ := newTestRoom(t, "u1", p1)
	r.StartTimer(func(core.TimerEvent) {})
	store.Err = errors.New("db down")

	length := 45
	if _, err := r.EditAndStopTimer(context.Background(), domain.TimerPropertyPatch{TimerLengthMinutes: &length}); err == nil {
		t.Fatal("store error must surface")
	}
	if r.TimerState() != core.TimerStarted || r.TimerProperty().TimerLengthMinutes != 25 {
		t.Fatal("failed edit must leave the timer untouched")
	}
	if c1.Count(protocol.EditAndStopTimer) != 0 {
		t.Fatal("nothing is broadcast on failure")
	}
}

func TestRoomEditTimerRejectsInvalidProperty(t *testing.T) {
	p1, c1 := newTestPeer(t, "u1")
	r, store, sched := newTestRoom(t, "u1", p1)
	r.StartTimer(func(core.TimerEvent) {})

	zero, negative := 0, -5
	for _, patch := range []domain.TimerPropertyPatch{
		{TimerLengthMinutes: &zero},
		{ShortBreakMinutes: &negative},
		{LongBreakMinutes: &zero},
		{LongBreakInterval: &zero},
	} {
		if _, err := r.EditAndStopTimer(context.Background(), patch); !errors.Is(err, domain.ErrInvalidTimerProperty) {
			t.Fatalf("patch %+v: err = %v", patch, err)
		}
	}
	if r.TimerState() != core.TimerStarted || sched.PendingCount() != 1 {
		t.Fatal("rejected edit must leave the timer running")
	}
	if store.Rooms["room-1"].Timer != domain.DefaultTimerProperty() {
		t.Fatal("rejected edit must not be persisted")
	}
	if c1.Count(protocol.EditAndStopTimer) != 0 {
		t.Fatal("nothing is broadcast on a rejected edit")
	}
}
