package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/triagehub/ticket-tracker/internal/api/dto"
	"github.com/triagehub/ticket-tracker/internal/auth"
	"github.com/triagehub/ticket-tracker/internal/domain"
	"github.com/triagehub/ticket-tracker/internal/service"
	apperrors "github.com/triagehub/ticket-tracker/pkg/util"
)

// TicketsHandler manages the ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload")
	}

	ticket, err := h.service.Create(c.UserContext(), actor, req.Title, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Ticket created and processing started",
		"ticket":  ticketResponse(ticket, nil),
	})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	tickets, refs, err := h.service.List(c.UserContext(), actor)
	if err != nil {
		return err
	}

	if !actor.Role.IsStaff() {
		items := make([]dto.TicketSummary, 0, len(tickets))
		for i := range tickets {
			items = append(items, ticketSummary(&tickets[i]))
		}
		return c.JSON(fiber.Map{"tickets": items})
	}

	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i], refs))
	}
	return c.JSON(fiber.Map{"tickets": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	view, err := h.service.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ticket": ticketViewResponse(view)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload")
	}
	input := service.TicketUpdateInput{AssignedTo: strings.TrimSpace(req.AssignedTo)}
	if req.Status != nil && strings.TrimSpace(*req.Status) != "" {
		status := strings.TrimSpace(*req.Status)
		input.Status = &status
	}

	view, err := h.service.Update(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ticket": ticketViewResponse(view)})
}

// AddComment POST /tickets/:id/comment.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload")
	}

	view, err := h.service.AddComment(c.UserContext(), actor, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ticket": ticketViewResponse(view)})
}

// DeleteComment DELETE /tickets/:id/comment/:commentId.
func (h *TicketsHandler) DeleteComment(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	view, err := h.service.DeleteComment(c.UserContext(), actor, c.Params("id"), c.Params("commentId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ticket": ticketViewResponse(view)})
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:          ticket.ID,
		Title:       ticket.Title,
		Description: ticket.Description,
		Status:      ticket.Status,
		CreatedAt:   ticket.CreatedAt,
	}
}

func ticketViewResponse(view *service.TicketView) dto.TicketResponse {
	return ticketResponse(view.Ticket, view.Users)
}

func ticketResponse(ticket *domain.Ticket, refs map[string]service.UserRef) dto.TicketResponse {
	comments := make([]dto.CommentResponse, 0, len(ticket.Comments))
	for _, comment := range ticket.Comments {
		comments = append(comments, dto.CommentResponse{
			ID:   comment.ID,
			By:   userRef(comment.By, refs),
			Text: comment.Text,
			At:   comment.At,
		})
	}
	history := make([]dto.HistoryEntryResponse, 0, len(ticket.History))
	for _, entry := range ticket.History {
		history = append(history, dto.HistoryEntryResponse{
			Action: string(entry.Action),
			By:     userRef(entry.By, refs),
			From:   entry.From,
			To:     entry.To,
			At:     entry.At,
		})
	}
	var assignee *dto.UserRefResponse
	if id := ticket.AssigneeID(); id != "" {
		ref := userRef(id, refs)
		assignee = &ref
	}
	return dto.TicketResponse{
		ID:            ticket.ID,
		Title:         ticket.Title,
		Description:   ticket.Description,
		Status:        ticket.Status,
		CreatedBy:     ticket.CreatedBy,
		AssignedTo:    assignee,
		Priority:      ticket.Priority,
		Deadline:      ticket.Deadline,
		HelpfulNotes:  ticket.HelpfulNotes,
		RelatedSkills: ticket.RelatedSkills,
		CreatedAt:     ticket.CreatedAt,
		Comments:      comments,
		History:       history,
	}
}

// userRef falls back to the bare id when the reference was not
// resolved; a dangling user reference never breaks a read.
func userRef(id string, refs map[string]service.UserRef) dto.UserRefResponse {
	if ref, ok := refs[id]; ok {
		return dto.UserRefResponse{ID: ref.ID, Email: ref.Email}
	}
	return dto.UserRefResponse{ID: id}
}
