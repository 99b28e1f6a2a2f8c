package protocol

// Role is what a connection identified itself as. It never changes after
// identification.
type Role int

const (
	RoleUnknown Role = iota
	RolePublisher
	RoleConsumer
)

func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleConsumer:
		return "consumer"
	default:
		return "unknown"
	}
}

// Accepts reports whether a client in role r may send messages of type t.
func (r Role) Accepts(t Type) bool {
	switch r {
	case RolePublisher:
		switch t {
		case TypeProtocolVersion, TypeIAmPublisher, TypePublishChord,
			TypePublishPitches, TypePublishSilence, TypePing:
			return true
		}
	case RoleConsumer:
		switch t {
		case TypeProtocolVersion, TypeIAmConsumer, TypePing:
			return true
		}
	}
	return false
}
