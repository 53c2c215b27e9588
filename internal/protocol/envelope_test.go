package protocol

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeEnvelope(t *testing.T) {
	b, err := Encode(NewProducer, map[string]string{"producerId": "p1", "userId": "u1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != NewProducer {
		t.Errorf("Expected type %q, got %q", NewProducer, env.Type)
	}
	if env.Ack != nil {
		t.Error("Broadcast frames must not carry an ack id")
	}
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data["producerId"] != "p1" {
		t.Errorf("Expected producerId p1, got %q", data["producerId"])
	}
}

func TestEncodeAckCarriesID(t *testing.T) {
	b, err := EncodeAck(7, NewFailure("nope"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != Ack || env.Ack == nil || *env.Ack != 7 {
		t.Fatalf("Expected ack 7, got %+v", env)
	}
	var f Failure
	if err := json.Unmarshal(env.Data, &f); err != nil {
		t.Fatalf("data: %v", err)
	}
	if f.Type != "failure" || f.Message != "nope" {
		t.Errorf("Unexpected failure payload %+v", f)
	}
}

func TestEncodeWithoutArgsOmitsData(t *testing.T) {
	b, err := Encode(StartTimer, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(b) != `{"type":"start-timer"}` {
		t.Errorf("Unexpected frame %s", b)
	}
}
