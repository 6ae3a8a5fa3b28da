package domain

import "context"

// EventPublisher interface for publishing cache lifecycle events
type EventPublisher interface {
	PublishCachePurged(ctx context.Context, event *CachePurgedEvent) error
	Close() error
}

// JSONGetter performs an authenticated GET and returns the parsed JSON
// document.
type JSONGetter interface {
	GetJSON(ctx context.Context, path string) (any, error)
	Ping(ctx context.Context) error
}
