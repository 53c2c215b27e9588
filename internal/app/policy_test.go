package app

import (
	"testing"

	"github.com/dkeye/studyroom/internal/domain"
)

func TestEvaluateJoin(t *testing.T) {
	four := []domain.RoomJoiner{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}

	t.Run("full room refuses a regular user", func(t *testing.T) {
		d := EvaluateJoin(JoinRequest{UserID: "u", MasterID: "m", JoinerCount: len(four), Capacity: 4})
		if d.CanJoin || d.Message != MsgRoomFull {
			t.Fatalf("got %+v", d)
		}
	})
	t.Run("master ignores capacity", func(t *testing.T) {
		d := EvaluateJoin(JoinRequest{UserID: "m", MasterID: "m", JoinerCount: len(four), Capacity: 4})
		if !d.CanJoin {
			t.Fatalf("got %+v", d)
		}
	})
	t.Run("blocked user refused with room to spare", func(t *testing.T) {
		d := EvaluateJoin(JoinRequest{
			UserID: "u", MasterID: "m", JoinerCount: 3, Capacity: 4,
			Blacklist: []domain.BlockedUser{{ID: "u", Name: "U"}},
		})
		if d.CanJoin || d.Message != MsgBlocked {
			t.Fatalf("got %+v", d)
		}
	})
	t.Run("wrong password", func(t *testing.T) {
		d := EvaluateJoin(JoinRequest{UserID: "u", MasterID: "m", Capacity: 4, Password: "pw", PasswordInput: "nope"})
		if d.CanJoin || d.Message != MsgPasswordMismatch {
			t.Fatalf("got %+v", d)
		}
	})
	t.Run("all checks pass", func(t *testing.T) {
		d := EvaluateJoin(JoinRequest{UserID: "u", MasterID: "m", JoinerCount: 1, Capacity: 4, Password: "pw", PasswordInput: "pw"})
		if !d.CanJoin || d.Message != "" {
			t.Fatalf("got %+v", d)
		}
	})
}

func TestSimplePolicyKicks(t *testing.T) {
	if a := (SimplePolicy{}).OnBackPressure(nil, nil); a != KickMember {
		t.Fatalf("action = %s", a)
	}
}

func TestBackpressureActionNames(t *testing.T) {
	if NoAction.String() != "none" || KickMember.String() != "kick" {
		t.Fatalf("names: %s %s", NoAction, KickMember)
	}
	if BackpressureAction(7).String() != "unknown" {
		t.Fatal("out of range action must read as unknown")
	}
}
