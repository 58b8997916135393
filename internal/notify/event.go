// Package notify implements the notification targeting engine: it consumes
// typed occurrence lifecycle events, computes the set of users to notify and
// the channel to use for each, and hands every (user, channel) pair to the
// dispatcher exactly once per event.
package notify

import (
	"context"

	"github.com/safereport/safereport/internal/database"
)

// EventKind identifies a lifecycle transition that can trigger notifications
type EventKind string

const (
	EventOccurrenceCreated   EventKind = "occurrence_created"
	EventOccurrenceReferred  EventKind = "occurrence_referred"
	EventThreadMessagePosted EventKind = "thread_message_posted"
	EventDepartmentResponded EventKind = "department_responded"
	EventOccurrenceResolved  EventKind = "occurrence_resolved"
)

// Event is a lifecycle transition published by the workflow service after
// its transaction commits. Occurrence is a snapshot taken at publish time.
type Event struct {
	Kind       EventKind
	Occurrence database.Occurrence

	// DepartmentIDs holds the newly referred departments for
	// EventOccurrenceReferred.
	DepartmentIDs []uint

	// SenderID is the message author for EventThreadMessagePosted.
	SenderID uint

	// MessageText carries the thread message body or the submitted root
	// cause, depending on the event kind.
	MessageText string

	// AssignmentID is the completed assignment for
	// EventDepartmentResponded.
	AssignmentID uint
}

// Publisher receives lifecycle events. Implementations are best-effort: a
// failing recipient is logged and skipped, and no error ever reaches the
// workflow action that triggered the event.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}
