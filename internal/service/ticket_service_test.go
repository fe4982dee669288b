package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagehub/ticket-tracker/internal/domain"
	"github.com/triagehub/ticket-tracker/internal/events"
	apperrors "github.com/triagehub/ticket-tracker/pkg/util"
)

// fakeTicketRepo stores tickets by value so that in-memory mutations
// are not visible until Save, like a real round trip.
type fakeTicketRepo struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]domain.Ticket
	saveErr error
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]domain.Ticket)}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ticket.ID = fmt.Sprintf("t%d", r.seq)
	ticket.CreatedAt = time.Unix(int64(1000+r.seq), 0)
	r.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r *fakeTicketRepo) Save(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := cloneTicket(stored)
	return &copied, nil
}

func (r *fakeTicketRepo) ListAll(_ context.Context) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, t := range r.tickets {
		result = append(result, cloneTicket(t))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *fakeTicketRepo) ListByCreator(_ context.Context, creatorID string) ([]domain.Ticket, error) {
	all, _ := r.ListAll(context.Background())
	var result []domain.Ticket
	for _, t := range all {
		if t.CreatedBy == creatorID {
			result = append(result, t)
		}
	}
	return result, nil
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	t.Comments = append([]domain.Comment(nil), t.Comments...)
	t.History = append([]domain.HistoryEntry(nil), t.History...)
	t.RelatedSkills = append([]string(nil), t.RelatedSkills...)
	if t.AssignedTo != nil {
		id := *t.AssignedTo
		t.AssignedTo = &id
	}
	return t
}

type fakeUserRepo struct {
	users map[string]domain.User
}

func newFakeUserRepo(users ...domain.User) *fakeUserRepo {
	m := make(map[string]domain.User, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return &fakeUserRepo{users: m}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = fmt.Sprintf("u-gen-%d", len(r.users)+1)
	}
	user.CreatedAt = time.Unix(int64(2000+len(r.users)), 0)
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) GetByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	var result []domain.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			result = append(result, u)
		}
	}
	return result, nil
}

func (r *fakeUserRepo) List(_ context.Context) ([]domain.User, error) {
	var result []domain.User
	for _, u := range r.users {
		result = append(result, u)
	}
	return result, nil
}

func (r *fakeUserRepo) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	var result []domain.User
	for _, u := range r.users {
		if u.Role == role {
			result = append(result, u)
		}
	}
	return result, nil
}

type captureOutbound struct {
	events []events.Event
	err    error
}

func (c *captureOutbound) Enqueue(_ context.Context, event events.Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

var (
	requester = domain.User{ID: "u-req", Email: "req@example.com", Role: domain.RoleUser}
	stranger  = domain.User{ID: "u-other", Email: "other@example.com", Role: domain.RoleUser}
	moderator = domain.User{ID: "u-mod", Email: "mod@example.com", Role: domain.RoleModerator}
	admin     = domain.User{ID: "u-adm", Email: "adm@example.com", Role: domain.RoleAdmin}
)

func newTestService(t *testing.T) (*TicketService, *fakeTicketRepo, *fakeUserRepo, *captureOutbound) {
	t.Helper()
	ticketRepo := newFakeTicketRepo()
	userRepo := newFakeUserRepo(requester, stranger, moderator, admin)
	outbound := &captureOutbound{}
	svc := NewTicketService(TicketDependencies{
		TicketRepo: ticketRepo,
		UserRepo:   userRepo,
		Dispatcher: events.NewInMemoryDispatcher(),
		Outbound:   outbound,
	})
	return svc, ticketRepo, userRepo, outbound
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr), "expected DomainError, got %v", err)
	return domainErr.HTTPStatus
}

func TestCreateValidation(t *testing.T) {
	svc, repo, _, outbound := newTestService(t)
	ctx := context.Background()

	for _, tc := range []struct{ title, description string }{
		{"", "desc"},
		{"title", ""},
		{"  ", "desc"},
	} {
		_, err := svc.Create(ctx, &requester, tc.title, tc.description)
		require.Error(t, err)
		assert.Equal(t, 400, httpStatus(t, err))
	}
	assert.Empty(t, repo.tickets, "validation failures must not persist")
	assert.Empty(t, outbound.events)
}

func TestCreateEmitsOutboundEvent(t *testing.T) {
	svc, _, _, outbound := newTestService(t)

	ticket, err := svc.Create(context.Background(), &requester, "Printer down", "won't print")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusTodo, ticket.Status)
	assert.Equal(t, requester.ID, ticket.CreatedBy)
	assert.Empty(t, ticket.History)

	require.Len(t, outbound.events, 1)
	event := outbound.events[0]
	assert.Equal(t, events.EventTicketCreated, event.Type)
	assert.Equal(t, ticket.ID, event.ID, "ticket id doubles as idempotency key")
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, ticket.ID, payload.TicketID)
	assert.Equal(t, "Printer down", payload.Title)
	assert.Equal(t, "won't print", payload.Description)
	assert.Equal(t, requester.ID, payload.CreatedBy)
}

func TestCreateEnqueueFailureLeavesTicket(t *testing.T) {
	svc, repo, _, outbound := newTestService(t)
	outbound.err = errors.New("redis gone")

	_, err := svc.Create(context.Background(), &requester, "Printer down", "won't print")
	require.Error(t, err)
	assert.Equal(t, 500, httpStatus(t, err))
	assert.Len(t, repo.tickets, 1, "the row stays committed even when the enqueue fails")
}

func TestUpdateStatusNoopCreatesNoHistory(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)

	status := domain.TicketStatusTodo
	view, err := svc.Update(ctx, &moderator, ticket.ID, TicketUpdateInput{Status: &status})
	require.NoError(t, err)
	assert.Empty(t, view.Ticket.History, "same status must not be recorded")
	assert.Equal(t, domain.TicketStatusTodo, repo.tickets[ticket.ID].Status)
}

func TestUpdateStatusRecordsHistory(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)

	status := domain.TicketStatusInProgress
	view, err := svc.Update(ctx, &moderator, ticket.ID, TicketUpdateInput{Status: &status})
	require.NoError(t, err)
	require.Len(t, view.Ticket.History, 1)
	entry := view.Ticket.History[0]
	assert.Equal(t, domain.ActionStatusUpdate, entry.Action)
	assert.Equal(t, moderator.ID, entry.By)
	assert.Equal(t, domain.TicketStatusTodo, entry.From)
	assert.Equal(t, domain.TicketStatusInProgress, entry.To)
	assert.Equal(t, domain.TicketStatusInProgress, view.Ticket.Status)
}

func TestUpdateReassignment(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)

	view, err := svc.Update(ctx, &admin, ticket.ID, TicketUpdateInput{AssignedTo: moderator.ID})
	require.NoError(t, err)
	require.Len(t, view.Ticket.History, 1)
	entry := view.Ticket.History[0]
	assert.Equal(t, domain.ActionReassignment, entry.Action)
	assert.Equal(t, "", entry.From, "previously unassigned")
	assert.Equal(t, moderator.Email, entry.To, "rendered as display identifier")
	require.NotNil(t, view.Ticket.AssignedTo)
	assert.Equal(t, moderator.ID, *view.Ticket.AssignedTo)

	// same assignee again: compared by identifier, no entry added
	view, err = svc.Update(ctx, &admin, ticket.ID, TicketUpdateInput{AssignedTo: moderator.ID})
	require.NoError(t, err)
	assert.Len(t, view.Ticket.History, 1)

	// moving to another user renders both sides
	view, err = svc.Update(ctx, &admin, ticket.ID, TicketUpdateInput{AssignedTo: admin.ID})
	require.NoError(t, err)
	require.Len(t, view.Ticket.History, 2)
	assert.Equal(t, moderator.Email, view.Ticket.History[1].From)
	assert.Equal(t, admin.Email, view.Ticket.History[1].To)

	stored := repo.tickets[ticket.ID]
	assert.Equal(t, admin.ID, *stored.AssignedTo)
}

func TestUpdateReassignmentUnknownAssigneeDegrades(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)

	view, err := svc.Update(ctx, &admin, ticket.ID, TicketUpdateInput{AssignedTo: "u-ghost"})
	require.NoError(t, err, "resolution failure must not abort the update")
	require.Len(t, view.Ticket.History, 1)
	assert.Equal(t, "", view.Ticket.History[0].To)
	assert.Equal(t, "u-ghost", *view.Ticket.AssignedTo)
}

func TestUpdateNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	status := domain.TicketStatusCompleted
	_, err := svc.Update(context.Background(), &admin, "t-missing", TicketUpdateInput{Status: &status})
	require.Error(t, err)
	assert.Equal(t, 404, httpStatus(t, err))
}

func TestCreatedByImmutable(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)

	status := domain.TicketStatusInProgress
	_, err = svc.Update(ctx, &admin, ticket.ID, TicketUpdateInput{Status: &status, AssignedTo: moderator.ID})
	require.NoError(t, err)
	_, err = svc.AddComment(ctx, &moderator, ticket.ID, "on it")
	require.NoError(t, err)

	assert.Equal(t, requester.ID, repo.tickets[ticket.ID].CreatedBy)
}

func TestAddComment(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)

	view, err := svc.AddComment(ctx, &moderator, ticket.ID, "checking now")
	require.NoError(t, err)

	require.Len(t, view.Ticket.Comments, 1)
	comment := view.Ticket.Comments[0]
	assert.NotEmpty(t, comment.ID)
	assert.Equal(t, moderator.ID, comment.By)
	assert.Equal(t, "checking now", comment.Text)

	require.Len(t, view.Ticket.History, 1, "exactly one matching history entry per comment")
	entry := view.Ticket.History[0]
	assert.Equal(t, domain.ActionComment, entry.Action)
	assert.Equal(t, "", entry.From)
	assert.Equal(t, "checking now", entry.To)

	stored := repo.tickets[ticket.ID]
	assert.Len(t, stored.Comments, 1, "comment and history land in the same save")
	assert.Len(t, stored.History, 1)

	// author reference resolved to display form
	assert.Equal(t, moderator.Email, view.Users[moderator.ID].Email)
}

func TestAddCommentValidation(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)

	_, err = svc.AddComment(ctx, &moderator, ticket.ID, "   ")
	require.Error(t, err)
	assert.Equal(t, 400, httpStatus(t, err))
	assert.Empty(t, repo.tickets[ticket.ID].Comments, "rejected before any mutation")
}

func TestDeleteCommentAuthorization(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)
	view, err := svc.AddComment(ctx, &requester, ticket.ID, "mine")
	require.NoError(t, err)
	commentID := view.Ticket.Comments[0].ID

	_, err = svc.DeleteComment(ctx, &stranger, ticket.ID, commentID)
	require.Error(t, err)
	assert.Equal(t, 403, httpStatus(t, err))
	stored := repo.tickets[ticket.ID]
	assert.Len(t, stored.Comments, 1, "forbidden delete must not mutate")
	assert.Len(t, stored.History, 1)

	// moderators are not exempt; only admins and the author are
	_, err = svc.DeleteComment(ctx, &moderator, ticket.ID, commentID)
	require.Error(t, err)
	assert.Equal(t, 403, httpStatus(t, err))

	_, err = svc.DeleteComment(ctx, &admin, ticket.ID, commentID)
	require.NoError(t, err)
}

func TestDeleteCommentByAuthorPrunesHistory(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)
	view, err := svc.AddComment(ctx, &requester, ticket.ID, "oops typo")
	require.NoError(t, err)
	commentID := view.Ticket.Comments[0].ID

	view, err = svc.DeleteComment(ctx, &requester, ticket.ID, commentID)
	require.NoError(t, err)

	assert.Empty(t, view.Ticket.Comments)
	require.Len(t, view.Ticket.History, 1, "comment entry pruned, delete entry appended")
	entry := view.Ticket.History[0]
	assert.Equal(t, domain.ActionDeleteComment, entry.Action)
	assert.Equal(t, "oops typo", entry.From)
	assert.Equal(t, "", entry.To)

	stored := repo.tickets[ticket.ID]
	assert.Empty(t, stored.Comments)
	assert.Len(t, stored.History, 1)
}

func TestDeleteCommentMissing(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)

	_, err = svc.DeleteComment(ctx, &admin, ticket.ID, "c-missing")
	require.Error(t, err)
	assert.Equal(t, 404, httpStatus(t, err))
}

func TestListVisibility(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	mine, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)
	_, err = svc.Create(ctx, &stranger, "VPN broken", "cannot connect")
	require.NoError(t, err)

	tickets, _, err := svc.List(ctx, &requester)
	require.NoError(t, err)
	require.Len(t, tickets, 1, "plain users never receive foreign tickets")
	assert.Equal(t, mine.ID, tickets[0].ID)

	tickets, _, err = svc.List(ctx, &moderator)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.True(t, !tickets[0].CreatedAt.Before(tickets[1].CreatedAt), "staff listing is newest first")
}

func TestListResolvesAssignees(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)
	_, err = svc.Update(ctx, &admin, ticket.ID, TicketUpdateInput{AssignedTo: moderator.ID})
	require.NoError(t, err)

	_, refs, err := svc.List(ctx, &admin)
	require.NoError(t, err)
	assert.Equal(t, moderator.Email, refs[moderator.ID].Email)
}

func TestGetVisibility(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)

	// owner sees it
	view, err := svc.Get(ctx, &requester, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, view.Ticket.ID)

	// another user gets the same not-found as a truly absent ticket
	_, err = svc.Get(ctx, &stranger, ticket.ID)
	require.Error(t, err)
	assert.Equal(t, 404, httpStatus(t, err))

	_, err = svc.Get(ctx, &stranger, "t-missing")
	require.Error(t, err)
	assert.Equal(t, 404, httpStatus(t, err))

	// staff see everything
	_, err = svc.Get(ctx, &moderator, ticket.ID)
	require.NoError(t, err)
}

// TestTicketLifecycleScenario walks the full flow: create, move to
// in-progress, comment, then delete the comment and verify the history
// reconciliation.
func TestTicketLifecycleScenario(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)
	assert.Equal(t, "TODO", ticket.Status)
	assert.Equal(t, requester.ID, ticket.CreatedBy)
	assert.Empty(t, ticket.History)

	status := "IN_PROGRESS"
	view, err := svc.Update(ctx, &moderator, ticket.ID, TicketUpdateInput{Status: &status})
	require.NoError(t, err)
	require.Len(t, view.Ticket.History, 1)
	assert.Equal(t, domain.ActionStatusUpdate, view.Ticket.History[0].Action)
	assert.Equal(t, "TODO", view.Ticket.History[0].From)
	assert.Equal(t, "IN_PROGRESS", view.Ticket.History[0].To)

	view, err = svc.AddComment(ctx, &moderator, ticket.ID, "checking now")
	require.NoError(t, err)
	assert.Len(t, view.Ticket.Comments, 1)
	assert.Len(t, view.Ticket.History, 2)
	commentID := view.Ticket.Comments[0].ID

	view, err = svc.DeleteComment(ctx, &moderator, ticket.ID, commentID)
	require.NoError(t, err)
	assert.Empty(t, view.Ticket.Comments)
	require.Len(t, view.Ticket.History, 2, "comment entry pruned, delete entry appended")
	assert.Equal(t, domain.ActionStatusUpdate, view.Ticket.History[0].Action)
	assert.Equal(t, domain.ActionDeleteComment, view.Ticket.History[1].Action)
	assert.Equal(t, "checking now", view.Ticket.History[1].From)
}

func TestSaveFailureLeavesStoredState(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	ticket, err := svc.Create(ctx, &requester, "Printer down", "won't print")
	require.NoError(t, err)

	repo.saveErr = errors.New("connection reset")
	_, err = svc.AddComment(ctx, &moderator, ticket.ID, "lost comment")
	require.Error(t, err)
	assert.Equal(t, 500, httpStatus(t, err))

	stored := repo.tickets[ticket.ID]
	assert.Empty(t, stored.Comments, "failed save leaves the persisted state untouched")
	assert.Empty(t, stored.History)
}
