package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// envelope is the JSON frame every message travels in. Unit variants carry no
// payload.
type envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var (
	errUnknownType    = errors.New("unknown message type")
	errMissingPayload = errors.New("missing payload")
	errEmptyFrame     = errors.New("empty frame")
)

func isUnit(m Message) bool {
	switch m.(type) {
	case PublishSilence, Ping, Pong, AlreadyIdentified, Silence:
		return true
	}
	return false
}

// Encode renders m as a single JSON text frame.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("encode: nil message")
	}
	env := envelope{Type: m.Type()}
	if !isUnit(m) {
		payload, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
		}
		env.Payload = payload
	}
	return json.Marshal(env)
}

type decodeFunc func(payload json.RawMessage) (Message, error)

func decodeAs[T Message](unit bool) decodeFunc {
	return func(payload json.RawMessage) (Message, error) {
		var v T
		if unit {
			if len(payload) != 0 && !bytes.Equal(payload, []byte("null")) && !bytes.Equal(bytes.TrimSpace(payload), []byte("{}")) {
				return nil, errors.New("unexpected payload")
			}
			return v, nil
		}
		if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
			return nil, errMissingPayload
		}
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Messages a client may send.
var clientMessages = map[Type]decodeFunc{
	TypeProtocolVersion: decodeAs[ProtocolVersion](false),
	TypeIAmPublisher:    decodeAs[IAmPublisher](false),
	TypeIAmConsumer:     decodeAs[IAmConsumer](false),
	TypePublishChord:    decodeAs[PublishChord](false),
	TypePublishPitches:  decodeAs[PublishPitches](false),
	TypePublishSilence:  decodeAs[PublishSilence](true),
	TypePing:            decodeAs[Ping](true),
}

// Messages the server may send.
var serverMessages = map[Type]decodeFunc{
	TypePong:              decodeAs[Pong](true),
	TypeAlreadyIdentified: decodeAs[AlreadyIdentified](true),
	TypeProtocolError:     decodeAs[ProtocolError](false),
	TypeChordEvent:        decodeAs[ChordEvent](false),
	TypePitchesEvent:      decodeAs[PitchesEvent](false),
	TypeSilence:           decodeAs[Silence](true),
}

// DecodeClient parses a frame received by the server.
func DecodeClient(data []byte) (Message, error) {
	return decode(data, clientMessages)
}

// DecodeServer parses a frame received by a client.
func DecodeServer(data []byte) (Message, error) {
	return decode(data, serverMessages)
}

func decode(data []byte, registry map[Type]decodeFunc) (Message, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &DecodeError{Err: errEmptyFrame}
	}

	var env envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if dec.More() {
		return nil, &DecodeError{Type: env.Type, Err: errors.New("trailing data after message")}
	}

	fn, ok := registry[env.Type]
	if !ok {
		return nil, &DecodeError{Type: env.Type, Err: errUnknownType}
	}
	m, err := fn(env.Payload)
	if err != nil {
		return nil, &DecodeError{Type: env.Type, Err: err}
	}
	return m, nil
}
