package types

// ConnState is the connection state surfaced by the client
type ConnState string

const (
	StateConnected    ConnState = "CONNECTED"
	StateDisconnected ConnState = "DISCONNECTED"
	StateConflict     ConnState = "CONFLICT"
	StateUnpaired     ConnState = "UNPAIRED"
)

// EventKind discriminates the variants of Event
type EventKind int

const (
	EventKindAuthChallenge EventKind = iota + 1
	EventKindStateChanged
	EventKindMessage
)

func (k EventKind) String() string {
	switch k {
	case EventKindAuthChallenge:
		return "auth_challenge"
	case EventKindStateChanged:
		return "state_changed"
	case EventKindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is one notification from the messaging client, delivered in emission order.
// Code is set for auth challenges, State and Cause for state changes, Message for messages.
type Event struct {
	Kind    EventKind
	Code    string
	State   ConnState
	Cause   string
	Message *InboundMessage
}

// AuthChallenge builds an event carrying a pairing code to show the operator
func AuthChallenge(code string) Event {
	return Event{Kind: EventKindAuthChallenge, Code: code}
}

// StateChanged builds a connection state event
func StateChanged(state ConnState, cause string) Event {
	return Event{Kind: EventKindStateChanged, State: state, Cause: cause}
}

// MessageReceived builds an inbound message event
func MessageReceived(msg *InboundMessage) Event {
	return Event{Kind: EventKindMessage, Message: msg}
}

// MapConnState converts stream states and session statuses to a ConnState.
// The second result is false for values that carry no connection change.
func MapConnState(value string) (ConnState, bool) {
	switch value {
	case "CONNECTED", StatusWorking:
		return StateConnected, true
	case "CONFLICT":
		return StateConflict, true
	case "UNPAIRED", "UNPAIRED_IDLE":
		return StateUnpaired, true
	case "DISCONNECTED", "TIMEOUT", "UNLAUNCHED", StatusStopped, StatusFailed:
		return StateDisconnected, true
	default:
		return "", false
	}
}
