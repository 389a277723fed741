package types

import "context"

// WAClient is the messaging network client the bridge drives
type WAClient interface {
	// Start asks the network to (re)establish the session. Progress arrives on Events.
	Start(ctx context.Context) error
	SendText(ctx context.Context, chatID, message string) (*SendMessageResponse, error)
	// Probe checks that the session is currently usable
	Probe(ctx context.Context) error
	Events() <-chan Event
	Close(ctx context.Context) error
}
