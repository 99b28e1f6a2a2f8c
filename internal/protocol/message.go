// Package protocol defines the messages exchanged between publishers,
// consumers and the relay, their JSON framing, and the websocket connection
// wrapper both sides use to send and receive them.
package protocol

import "github.com/humanophone/humanophone/internal/theory"

// Version is the protocol version spoken by this build.
const Version uint32 = 1

// Type is the wire tag of a message.
type Type string

const (
	TypeProtocolVersion   Type = "protocol_version"
	TypeIAmPublisher      Type = "i_am_publisher"
	TypeIAmConsumer       Type = "i_am_consumer"
	TypePublishChord      Type = "publish_chord"
	TypePublishPitches    Type = "publish_pitches"
	TypePublishSilence    Type = "publish_silence"
	TypePing              Type = "ping"
	TypePong              Type = "pong"
	TypeAlreadyIdentified Type = "already_identified"
	TypeProtocolError     Type = "protocol_error"
	TypeChordEvent        Type = "chord_event"
	TypePitchesEvent      Type = "pitches_event"
	TypeSilence           Type = "silence"
)

// Message is one protocol message. The set of implementations is closed.
type Message interface {
	Type() Type
	message()
}

// Client to server.

type ProtocolVersion struct {
	Version uint32 `json:"version"`
}

type IAmPublisher struct {
	ID string `json:"id"`
}

type IAmConsumer struct {
	ID string `json:"id"`
}

type PublishChord struct {
	Chord theory.ChordDescriptor `json:"chord"`
}

type PublishPitches struct {
	Pitches theory.NoteSet `json:"pitches"`
}

type PublishSilence struct{}

type Ping struct{}

// Server to client.

type Pong struct{}

// AlreadyIdentified answers a publisher that announced itself twice.
type AlreadyIdentified struct{}

type ProtocolError struct {
	Message string `json:"message"`
}

type ChordEvent struct {
	Chord theory.ChordDescriptor `json:"chord"`
}

type PitchesEvent struct {
	Pitches theory.NoteSet `json:"pitches"`
}

type Silence struct{}

func (ProtocolVersion) Type() Type   { return TypeProtocolVersion }
func (IAmPublisher) Type() Type      { return TypeIAmPublisher }
func (IAmConsumer) Type() Type       { return TypeIAmConsumer }
func (PublishChord) Type() Type      { return TypePublishChord }
func (PublishPitches) Type() Type    { return TypePublishPitches }
func (PublishSilence) Type() Type    { return TypePublishSilence }
func (Ping) Type() Type              { return TypePing }
func (Pong) Type() Type              { return TypePong }
func (AlreadyIdentified) Type() Type { return TypeAlreadyIdentified }
func (ProtocolError) Type() Type     { return TypeProtocolError }
func (ChordEvent) Type() Type        { return TypeChordEvent }
func (PitchesEvent) Type() Type      { return TypePitchesEvent }
func (Silence) Type() Type           { return TypeSilence }

func (ProtocolVersion) message()   {}
func (IAmPublisher) message()      {}
func (IAmConsumer) message()       {}
func (PublishChord) message()      {}
func (PublishPitches) message()    {}
func (PublishSilence) message()    {}
func (Ping) message()              {}
func (Pong) message()              {}
func (AlreadyIdentified) message() {}
func (ProtocolError) message()     {}
func (ChordEvent) message()        {}
func (PitchesEvent) message()      {}
func (Silence) message()           {}

// ToConsumerEvent translates a publication into the event fanned out to
// consumers. ok is false for messages that are not publications.
func ToConsumerEvent(m Message) (event Message, ok bool) {
	switch m := m.(type) {
	case PublishChord:
		return ChordEvent{Chord: m.Chord}, true
	case PublishPitches:
		return PitchesEvent{Pitches: m.Pitches}, true
	case PublishSilence:
		return Silence{}, true
	}
	return nil, false
}
