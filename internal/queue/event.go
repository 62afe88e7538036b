// Package queue defines the domain events exchanged over RabbitMQ, the
// publisher used by the API and the audit consumer run by taskctl.
package queue

import "time"

// DefaultQueue is the durable queue events are published to.
const DefaultQueue = "task-manager.events"

// Event types.
const (
	EventUserRegistered = "user.registered"
	EventUserLoggedIn   = "user.logged_in"
	EventUserLoggedOut  = "user.logged_out"
	EventUserDeleted    = "user.deleted"
	EventTaskCreated    = "task.created"
	EventTaskUpdated    = "task.updated"
	EventTaskDeleted    = "task.deleted"
)

// Event describes something that happened to a user or a task.  It carries
// ids only; consumers that need more look it up.
type Event struct {
	Type       string `json:"type"`
	ActorID    string `json:"actor_id"`              // user who caused the event
	ResourceID string `json:"resource_id,omitempty"` // task or user acted upon
	OccurredAt string `json:"occurred_at"`           // RFC 3339, UTC
}

// NewEvent stamps an event with the current time.
func NewEvent(typ, actorID, resourceID string) Event {
	return Event{
		Type:       typ,
		ActorID:    actorID,
		ResourceID: resourceID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}
