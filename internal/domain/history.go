package domain

import "time"

// HistoryAction captures what changed in a history entry.
type HistoryAction string

const (
	ActionStatusUpdate  HistoryAction = "status_update"
	ActionReassignment  HistoryAction = "reassignment"
	ActionComment       HistoryAction = "comment"
	ActionDeleteComment HistoryAction = "delete_comment"
)

// HistoryEntry is one audit record on a ticket: who did what, with the
// before and after values. Entries are append-only except for the
// delete-comment reconciliation in PruneCommentEntry.
type HistoryEntry struct {
	Action HistoryAction `json:"action"`
	By     string        `json:"by"`
	From   string        `json:"from"`
	To     string        `json:"to"`
	At     time.Time     `json:"at"`
}

// Recorder produces history entries. It has no side effects; callers
// append the result to the ticket and persist. The zero value uses
// time.Now as its clock.
type Recorder struct {
	Now func() time.Time
}

func (r Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// StatusUpdate records a status change. No entry is produced when the
// requested status equals the current one.
func (r Recorder) StatusUpdate(actor, from, to string) (HistoryEntry, bool) {
	if from == to {
		return HistoryEntry{}, false
	}
	return HistoryEntry{Action: ActionStatusUpdate, By: actor, From: from, To: to, At: r.now()}, true
}

// Reassignment records an assignee change. From and to are the display
// identifiers (emails) resolved by the caller at write time; either may
// be empty when there was or is no assignee, or when resolution failed.
func (r Recorder) Reassignment(actor, fromEmail, toEmail string) HistoryEntry {
	return HistoryEntry{Action: ActionReassignment, By: actor, From: fromEmail, To: toEmail, At: r.now()}
}

// CommentAdded records a new comment with its full text.
func (r Recorder) CommentAdded(actor, text string) HistoryEntry {
	return HistoryEntry{Action: ActionComment, By: actor, From: "", To: text, At: r.now()}
}

// CommentDeleted records the removal of a comment.
func (r Recorder) CommentDeleted(actor, text string) HistoryEntry {
	return HistoryEntry{Action: ActionDeleteComment, By: actor, From: text, To: "", At: r.now()}
}

// PruneCommentEntry removes the most recent "comment" entry whose text
// and author match the deleted comment, so the log stops showing text
// for a comment that no longer exists. The match is by value, not by a
// stable link: two identical comments by the same author can prune the
// wrong entry. Returns the remaining history and whether an entry was
// removed.
func PruneCommentEntry(history []HistoryEntry, author, text string) ([]HistoryEntry, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if e.Action == ActionComment && e.By == author && e.To == text {
			return append(history[:i:i], history[i+1:]...), true
		}
	}
	return history, false
}
