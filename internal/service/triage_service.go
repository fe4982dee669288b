package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/triagehub/ticket-tracker/internal/domain"
	"github.com/triagehub/ticket-tracker/internal/events"
	"github.com/triagehub/ticket-tracker/internal/repository"
)

// TriageService consumes ticket-created events and fills in the fields
// the requester leaves blank: priority, helpful notes, related skills
// and a first assignee. It is a deterministic stand-in for the external
// classification workflow; triage edits are system changes and do not
// produce history entries.
type TriageService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewTriageService creates the service.
func NewTriageService(tickets repository.TicketRepository, users repository.UserRepository, dispatcher events.Dispatcher, logger *zap.Logger) *TriageService {
	return &TriageService{
		tickets:    tickets,
		users:      users,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (t *TriageService) RegisterHandlers() {
	if t.dispatcher == nil {
		return
	}
	t.dispatcher.Subscribe(events.EventTicketCreated, t.handleTicketCreated)
}

var skillKeywords = map[string][]string{
	"network":  {"network", "vpn", "wifi", "dns"},
	"hardware": {"printer", "laptop", "monitor", "keyboard"},
	"accounts": {"password", "login", "account", "access"},
	"software": {"install", "update", "crash", "error"},
}

var urgentKeywords = []string{"down", "outage", "crash", "urgent", "cannot work"}

func (t *TriageService) handleTicketCreated(ctx context.Context, event events.Event) error {
	ticket, err := t.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		t.logger.Warn("triage: load ticket", zap.String("ticket_id", event.TicketID), zap.Error(err))
		return err
	}

	text := strings.ToLower(ticket.Title + " " + ticket.Description)

	if ticket.Priority == "" {
		ticket.Priority = classifyPriority(text)
	}
	if len(ticket.RelatedSkills) == 0 {
		ticket.RelatedSkills = classifySkills(text)
	}
	if ticket.HelpfulNotes == "" && len(ticket.RelatedSkills) > 0 {
		ticket.HelpfulNotes = "Likely needs: " + strings.Join(ticket.RelatedSkills, ", ")
	}
	if ticket.AssignedTo == nil {
		if assignee := t.pickModerator(ctx, ticket.RelatedSkills); assignee != "" {
			ticket.AssignedTo = &assignee
		}
	}

	if err := t.tickets.Save(ctx, ticket); err != nil {
		t.logger.Warn("triage: save ticket", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return err
	}
	t.logger.Info("ticket triaged",
		zap.String("ticket_id", ticket.ID),
		zap.String("priority", ticket.Priority),
		zap.Strings("skills", ticket.RelatedSkills))
	return nil
}

func classifyPriority(text string) string {
	for _, kw := range urgentKeywords {
		if strings.Contains(text, kw) {
			return "high"
		}
	}
	return "medium"
}

func classifySkills(text string) []string {
	var skills []string
	for skill, keywords := range skillKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				skills = append(skills, skill)
				break
			}
		}
	}
	sort.Strings(skills)
	return skills
}

// pickModerator prefers a moderator whose skills overlap the ticket,
// falling back to the first moderator, then the first admin.
func (t *TriageService) pickModerator(ctx context.Context, skills []string) string {
	moderators, err := t.users.ListByRole(ctx, domain.RoleModerator)
	if err != nil {
		t.logger.Warn("triage: list moderators", zap.Error(err))
		return ""
	}
	for _, m := range moderators {
		for _, have := range m.Skills {
			for _, want := range skills {
				if strings.EqualFold(have, want) {
					return m.ID
				}
			}
		}
	}
	if len(moderators) > 0 {
		return moderators[0].ID
	}
	admins, err := t.users.ListByRole(ctx, domain.RoleAdmin)
	if err != nil || len(admins) == 0 {
		return ""
	}
	return admins[0].ID
}
