package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketUpdated   EventType = "ticket_updated"
	EventTicketCommented EventType = "ticket_commented"
)

// Event represents a domain event emitted by services. ActorID is the
// user who performed the mutation; it is empty for system actions.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload is the outbound shape consumed by the external
// classification workflow.
type TicketCreatedPayload struct {
	TicketID    string `json:"ticketId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   string `json:"createdBy"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	OldStatus   string  `json:"old_status,omitempty"`
	NewStatus   string  `json:"new_status,omitempty"`
	OldAssignee *string `json:"old_assignee,omitempty"`
	NewAssignee *string `json:"new_assignee,omitempty"`
}

// TicketCommentedPayload payload.
type TicketCommentedPayload struct {
	CommentID   string `json:"comment_id"`
	AuthorID    string `json:"author_id"`
	TextPreview string `json:"text_preview"`
	Deleted     bool   `json:"deleted,omitempty"`
}
