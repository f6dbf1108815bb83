package outbox

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// Repository persists and drains outbox events
type Repository interface {
	// Save persists one event; sessCtx may be a transaction context
	Save(ctx context.Context, event *OutboxEvent) error

	// SaveAll persists a batch of events; sessCtx may be a transaction
	// context
	SaveAll(ctx context.Context, events []*OutboxEvent) error

	// FindUnpublished returns up to limit unpublished events, oldest first
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	// MarkPublished stamps publishedAt on the event
	MarkPublished(ctx context.Context, id string) error

	// IncrementRetry bumps the retry count and records the error
	IncrementRetry(ctx context.Context, id string, lastError string) error
}

// SessionSaver is implemented by repositories that can save within an
// existing mongo session.
type SessionSaver interface {
	SaveAllInSession(sessCtx mongo.SessionContext, events []*OutboxEvent) error
}
