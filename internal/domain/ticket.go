package domain

import "time"

// Conventional ticket statuses. The field is an open string so that
// triage can introduce new states without a schema change.
const (
	TicketStatusTodo       = "TODO"
	TicketStatusInProgress = "IN_PROGRESS"
	TicketStatusCompleted  = "COMPLETED"
)

// Comment is a message on a ticket thread. It lives embedded in the
// ticket document and references its author by id only.
type Comment struct {
	ID   string    `json:"id"`
	By   string    `json:"by"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Ticket is the aggregate for support requests. Comments and History
// are embedded and persisted together with the ticket as one document;
// a save overwrites the whole row (last write wins).
type Ticket struct {
	ID            string
	Title         string
	Description   string
	Status        string
	CreatedBy     string
	AssignedTo    *string
	Priority      string
	Deadline      *time.Time
	HelpfulNotes  string
	RelatedSkills []string
	CreatedAt     time.Time
	Comments      []Comment
	History       []HistoryEntry
}

// NewTicket builds a ticket owned by createdBy with every other field
// at its default. CreatedBy is set here and never changes afterwards.
func NewTicket(title, description, createdBy string) *Ticket {
	return &Ticket{
		Title:       title,
		Description: description,
		Status:      TicketStatusTodo,
		CreatedBy:   createdBy,
	}
}

// FindComment returns the comment with the given id, or nil.
func (t *Ticket) FindComment(commentID string) *Comment {
	for i := range t.Comments {
		if t.Comments[i].ID == commentID {
			return &t.Comments[i]
		}
	}
	return nil
}

// RemoveComment deletes the comment with the given id from the thread,
// reporting whether anything was removed.
func (t *Ticket) RemoveComment(commentID string) bool {
	for i := range t.Comments {
		if t.Comments[i].ID == commentID {
			t.Comments = append(t.Comments[:i], t.Comments[i+1:]...)
			return true
		}
	}
	return false
}

// AssigneeID resolves the possibly-unset assignee to a bare identifier,
// returning "" when the ticket is unassigned.
func (t *Ticket) AssigneeID() string {
	if t.AssignedTo == nil {
		return ""
	}
	return *t.AssignedTo
}
