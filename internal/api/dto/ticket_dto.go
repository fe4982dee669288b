package dto

import "time"

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateTicketRequest carries optional triage edits.
type UpdateTicketRequest struct {
	Status     *string `json:"status"`
	AssignedTo string  `json:"assignedTo"`
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Text string `json:"text"`
}

// UserRefResponse is a weak user reference resolved to display form.
type UserRefResponse struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

// TicketSummary is the reduced projection plain users get in listings.
type TicketSummary struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CommentResponse represents one thread comment.
type CommentResponse struct {
	ID   string          `json:"_id"`
	By   UserRefResponse `json:"by"`
	Text string          `json:"text"`
	At   time.Time       `json:"at"`
}

// HistoryEntryResponse represents one audit entry.
type HistoryEntryResponse struct {
	Action string          `json:"action"`
	By     UserRefResponse `json:"by"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	At     time.Time       `json:"at"`
}

// TicketResponse is the full projection with references resolved.
type TicketResponse struct {
	ID            string                 `json:"_id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Status        string                 `json:"status"`
	CreatedBy     string                 `json:"createdBy"`
	AssignedTo    *UserRefResponse       `json:"assignedTo"`
	Priority      string                 `json:"priority"`
	Deadline      *time.Time             `json:"deadline"`
	HelpfulNotes  string                 `json:"helpfulNotes"`
	RelatedSkills []string               `json:"relatedSkills"`
	CreatedAt     time.Time              `json:"createdAt"`
	Comments      []CommentResponse      `json:"comments"`
	History       []HistoryEntryResponse `json:"history"`
}
