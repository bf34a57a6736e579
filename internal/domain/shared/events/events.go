package events

import "time"

// DomainEvent is the minimal contract the outbox needs to publish a fact.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}
