package publishers

import "context"

// Publisher sends events to a downstream sink (SQS, SNS, Pub/Sub, HTTP).
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Closer is implemented by publishers holding connections that must be
// released on shutdown.
type Closer interface {
	Close() error
}

// Subscriber is implemented by publishers that only take some event kinds.
// Publishers without it take every kind.
type Subscriber interface {
	Accepts(kind string) bool
}
