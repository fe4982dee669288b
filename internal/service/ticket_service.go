package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/triagehub/ticket-tracker/internal/domain"
	"github.com/triagehub/ticket-tracker/internal/events"
	"github.com/triagehub/ticket-tracker/internal/repository"
	apperrors "github.com/triagehub/ticket-tracker/pkg/util"
)

// TicketService coordinates ticket workflows: creation, triage edits,
// the comment thread and the audit history that tracks all of it.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	recorder   domain.Recorder
	dispatcher events.Dispatcher
	outbound   events.Outbound
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Recorder   domain.Recorder
	Dispatcher events.Dispatcher
	Outbound   events.Outbound
}

// TicketUpdateInput carries the optional triage edits. Nil status and
// empty assignee leave the corresponding field untouched.
type TicketUpdateInput struct {
	Status     *string
	AssignedTo string
}

// UserRef is a weak reference resolved to its display form.
type UserRef struct {
	ID    string
	Email string
}

// TicketView pairs a ticket with the resolved display identities of
// every user it references (assignee, comment and history authors).
type TicketView struct {
	Ticket *domain.Ticket
	Users  map[string]UserRef
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		recorder:   deps.Recorder,
		dispatcher: deps.Dispatcher,
		outbound:   deps.Outbound,
	}
}

// Create validates and persists a new ticket owned by the actor, then
// hands the classification workflow its trigger event. The enqueue is
// not transactional with the insert: a failed enqueue surfaces an error
// even though the ticket row exists, and the consumer dedupes retries
// on the ticket id.
func (s *TicketService) Create(ctx context.Context, actor *domain.User, title, description string) (*domain.Ticket, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(description) == "" {
		return nil, apperrors.NewValidationError("Title and description are required")
	}

	ticket := domain.NewTicket(strings.TrimSpace(title), strings.TrimSpace(description), actor.ID)
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError("Internal Server Error", err)
	}

	event := events.Event{
		ID:        ticket.ID,
		Type:      events.EventTicketCreated,
		TicketID:  ticket.ID,
		ActorID:   actor.ID,
		Timestamp: time.Now(),
		Payload: events.TicketCreatedPayload{
			TicketID:    ticket.ID,
			Title:       ticket.Title,
			Description: ticket.Description,
			CreatedBy:   ticket.CreatedBy,
		},
	}
	if s.outbound != nil {
		if err := s.outbound.Enqueue(ctx, event); err != nil {
			return nil, apperrors.NewInternalError("Internal Server Error", err)
		}
	}
	s.publishEvent(ctx, event)
	return ticket, nil
}

// List returns the tickets visible to the actor, newest first. Plain
// users only see their own; staff see everything with the assignee
// reference resolved.
func (s *TicketService) List(ctx context.Context, actor *domain.User) ([]domain.Ticket, map[string]UserRef, error) {
	if !actor.Role.IsStaff() {
		tickets, err := s.tickets.ListByCreator(ctx, actor.ID)
		if err != nil {
			return nil, nil, apperrors.NewInternalError("Internal Server Error", err)
		}
		return tickets, nil, nil
	}

	tickets, err := s.tickets.ListAll(ctx)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("Internal Server Error", err)
	}
	ids := make([]string, 0, len(tickets))
	for i := range tickets {
		if id := tickets[i].AssigneeID(); id != "" {
			ids = append(ids, id)
		}
	}
	refs, err := s.resolveUsers(ctx, ids)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("Internal Server Error", err)
	}
	return tickets, refs, nil
}

// Get fetches one ticket with all user references resolved. A ticket
// that does not exist and one the actor may not see are reported the
// same way, so existence never leaks.
func (s *TicketService) Get(ctx context.Context, actor *domain.User, ticketID string) (*TicketView, error) {
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	return s.viewOf(ctx, ticket)
}

// Update applies the triage edits that differ from the current state,
// recording one history entry per effective change. A request that
// changes nothing saves no entries.
func (s *TicketService) Update(ctx context.Context, actor *domain.User, ticketID string, input TicketUpdateInput) (*TicketView, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	oldAssignee := ticket.AssignedTo

	if input.Status != nil {
		if entry, ok := s.recorder.StatusUpdate(actor.ID, ticket.Status, *input.Status); ok {
			ticket.History = append(ticket.History, entry)
			ticket.Status = *input.Status
		}
	}

	if input.AssignedTo != "" && input.AssignedTo != ticket.AssigneeID() {
		from := s.resolveEmail(ctx, ticket.AssigneeID())
		to := s.resolveEmail(ctx, input.AssignedTo)
		ticket.History = append(ticket.History, s.recorder.Reassignment(actor.ID, from, to))
		assignee := input.AssignedTo
		ticket.AssignedTo = &assignee
	}

	if err := s.saveTicket(ctx, ticket, "Update failed"); err != nil {
		return nil, err
	}

	if ticket.Status != oldStatus || ticket.AssignedTo != oldAssignee {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketUpdated,
			TicketID: ticket.ID,
			ActorID:  actor.ID,
			Payload: events.TicketUpdatedPayload{
				OldStatus:   oldStatus,
				NewStatus:   ticket.Status,
				OldAssignee: oldAssignee,
				NewAssignee: ticket.AssignedTo,
			},
		})
	}
	return s.viewOf(ctx, ticket)
}

// AddComment appends a comment and its matching history entry in one
// save.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.User, ticketID, text string) (*TicketView, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("Comment text required")
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	comment := domain.Comment{
		ID:   uuid.NewString(),
		By:   actor.ID,
		Text: text,
		At:   time.Now(),
	}
	ticket.Comments = append(ticket.Comments, comment)
	ticket.History = append(ticket.History, s.recorder.CommentAdded(actor.ID, text))

	if err := s.saveTicket(ctx, ticket, "Failed to add comment"); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommented,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketCommentedPayload{
			CommentID:   comment.ID,
			AuthorID:    comment.By,
			TextPreview: textPreview(comment.Text, 120),
		},
	})
	return s.viewOf(ctx, ticket)
}

// DeleteComment removes a comment for its author or an admin. The
// history gains a delete_comment entry and loses the most recent
// matching comment entry, so the log stops quoting deleted text.
func (s *TicketService) DeleteComment(ctx context.Context, actor *domain.User, ticketID, commentID string) (*TicketView, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	comment := ticket.FindComment(commentID)
	if comment == nil {
		return nil, apperrors.NewNotFound("Comment")
	}
	if actor.Role != domain.RoleAdmin && comment.By != actor.ID {
		return nil, apperrors.NewForbidden("Not authorized to delete this comment")
	}

	author, text := comment.By, comment.Text
	ticket.History = append(ticket.History, s.recorder.CommentDeleted(actor.ID, text))
	ticket.RemoveComment(commentID)
	ticket.History, _ = domain.PruneCommentEntry(ticket.History, author, text)

	if err := s.saveTicket(ctx, ticket, "Failed to delete comment"); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommented,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketCommentedPayload{
			CommentID: commentID,
			AuthorID:  author,
			Deleted:   true,
		},
	})
	return s.viewOf(ctx, ticket)
}

func (s *TicketService) loadVisible(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() && ticket.CreatedBy != actor.ID {
		return nil, apperrors.NewNotFound("Ticket")
	}
	return ticket, nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("Ticket")
		}
		return nil, apperrors.NewInternalError("Internal Server Error", err)
	}
	return ticket, nil
}

func (s *TicketService) saveTicket(ctx context.Context, ticket *domain.Ticket, failMessage string) error {
	if err := s.tickets.Save(ctx, ticket); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("Ticket")
		}
		return apperrors.NewInternalError(failMessage, err)
	}
	return nil
}

// viewOf resolves every user the ticket references to its display
// identity. Unresolvable ids keep an empty email rather than failing
// the read.
func (s *TicketService) viewOf(ctx context.Context, ticket *domain.Ticket) (*TicketView, error) {
	ids := make([]string, 0, len(ticket.Comments)+len(ticket.History)+1)
	if id := ticket.AssigneeID(); id != "" {
		ids = append(ids, id)
	}
	for _, c := range ticket.Comments {
		ids = append(ids, c.By)
	}
	for _, h := range ticket.History {
		if h.By != "" {
			ids = append(ids, h.By)
		}
	}
	refs, err := s.resolveUsers(ctx, ids)
	if err != nil {
		return nil, apperrors.NewInternalError("Internal Server Error", err)
	}
	return &TicketView{Ticket: ticket, Users: refs}, nil
}

func (s *TicketService) resolveUsers(ctx context.Context, ids []string) (map[string]UserRef, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	refs := make(map[string]UserRef, len(unique))
	if len(unique) == 0 {
		return refs, nil
	}
	users, err := s.users.GetByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		refs[u.ID] = UserRef{ID: u.ID, Email: u.Email}
	}
	return refs, nil
}

// resolveEmail degrades to "" when the id is empty or the lookup
// fails; a dangling assignee reference must not abort the update.
func (s *TicketService) resolveEmail(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Email
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func textPreview(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}
