package protocol

import "encoding/json"

// Envelope is one framed message. Ack is set by a client that expects a reply;
// the reply is an Envelope of type "ack" carrying the same number.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Ack  *int64          `json:"ack,omitempty"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
	Ack  *int64 `json:"ack,omitempty"`
}

func Encode(name string, args any) ([]byte, error) {
	return json.Marshal(outbound{Type: name, Data: args})
}

func EncodeAck(ack int64, args any) ([]byte, error) {
	return json.Marshal(outbound{Type: Ack, Data: args, Ack: &ack})
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(b, &env)
	return env, err
}

// Failure is the ack payload of a rejected request.
type Failure struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewFailure(message string) Failure {
	return Failure{Type: "failure", Message: message}
}
