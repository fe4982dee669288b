package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/triagehub/ticket-tracker/internal/domain"
	"github.com/triagehub/ticket-tracker/internal/events"
)

func TestTriageFillsBlankFields(t *testing.T) {
	ticketRepo := newFakeTicketRepo()
	userRepo := newFakeUserRepo(requester, moderator, admin)
	dispatcher := events.NewInMemoryDispatcher()

	triage := NewTriageService(ticketRepo, userRepo, dispatcher, zap.NewNop())
	triage.RegisterHandlers()

	svc := NewTicketService(TicketDependencies{
		TicketRepo: ticketRepo,
		UserRepo:   userRepo,
		Dispatcher: dispatcher,
	})

	ticket, err := svc.Create(context.Background(), &requester, "Printer down", "the office printer crashed and won't print")
	require.NoError(t, err)

	triaged, err := ticketRepo.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "high", triaged.Priority, "crash keywords raise priority")
	assert.Contains(t, triaged.RelatedSkills, "hardware")
	assert.NotEmpty(t, triaged.HelpfulNotes)
	require.NotNil(t, triaged.AssignedTo)
	assert.Equal(t, moderator.ID, *triaged.AssignedTo)
	assert.Empty(t, triaged.History, "triage edits are system changes, not audited")
}

func TestTriageKeepsExistingValues(t *testing.T) {
	ticketRepo := newFakeTicketRepo()
	userRepo := newFakeUserRepo(requester, moderator)
	dispatcher := events.NewInMemoryDispatcher()

	triage := NewTriageService(ticketRepo, userRepo, dispatcher, zap.NewNop())
	triage.RegisterHandlers()

	ticket := domain.NewTicket("Printer down", "won't print", requester.ID)
	ticket.Priority = "low"
	require.NoError(t, ticketRepo.Create(context.Background(), ticket))

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
	})
	require.NoError(t, err)

	triaged, err := ticketRepo.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "low", triaged.Priority, "an already-set priority is not overwritten")
}
