package domain

import "context"

// Source produces inbound messages onto a bus until ctx is cancelled or the
// underlying connection fails permanently.
type Source interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
}

// Responder sends a text message into a channel.
type Responder interface {
	Send(ctx context.Context, channelID, content string) error
}
