package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triagehub/ticket-tracker/internal/domain"
)

// TicketRepository encapsulates ticket persistence. Comments and
// history travel with the ticket row as JSONB, so Save is a whole
// document overwrite.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Save(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListAll(ctx context.Context) ([]domain.Ticket, error)
	ListByCreator(ctx context.Context, creatorID string) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, status, created_by, assigned_to,
       priority, deadline, helpful_notes, related_skills, created_at, comments, history`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	comments, history, err := encodeEmbedded(ticket)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (title, description, status, created_by, assigned_to, priority, deadline, helpful_notes, related_skills, comments, history)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.Priority,
		ticket.Deadline,
		ticket.HelpfulNotes,
		ticket.RelatedSkills,
		comments,
		history,
	).Scan(&ticket.ID, &ticket.CreatedAt)
}

func (r *ticketRepository) Save(ctx context.Context, ticket *domain.Ticket) error {
	comments, history, err := encodeEmbedded(ticket)
	if err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, assigned_to=$4, priority=$5,
            deadline=$6, helpful_notes=$7, related_skills=$8, comments=$9, history=$10
        WHERE id=$11`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.AssignedTo,
		ticket.Priority,
		ticket.Deadline,
		ticket.HelpfulNotes,
		ticket.RelatedSkills,
		comments,
		history,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	row := r.pool.QueryRow(ctx, query, id)
	return scanTicketRow(row)
}

func (r *ticketRepository) ListAll(ctx context.Context) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets ORDER BY created_at DESC`, ticketColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListByCreator(ctx context.Context, creatorID string) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE created_by=$1 ORDER BY created_at DESC`, ticketColumns)
	rows, err := r.pool.Query(ctx, query, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func encodeEmbedded(ticket *domain.Ticket) ([]byte, []byte, error) {
	comments := ticket.Comments
	if comments == nil {
		comments = []domain.Comment{}
	}
	history := ticket.History
	if history == nil {
		history = []domain.HistoryEntry{}
	}
	commentsJSON, err := json.Marshal(comments)
	if err != nil {
		return nil, nil, fmt.Errorf("encode comments: %w", err)
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, nil, fmt.Errorf("encode history: %w", err)
	}
	return commentsJSON, historyJSON, nil
}

func scanTicketRow(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var comments, history []byte
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.Priority,
		&ticket.Deadline,
		&ticket.HelpfulNotes,
		&ticket.RelatedSkills,
		&ticket.CreatedAt,
		&comments,
		&history,
	); err != nil {
		return nil, err
	}
	if err := decodeEmbedded(&ticket, comments, history); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicketRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func decodeEmbedded(ticket *domain.Ticket, comments, history []byte) error {
	if len(comments) > 0 {
		if err := json.Unmarshal(comments, &ticket.Comments); err != nil {
			return fmt.Errorf("decode comments: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &ticket.History); err != nil {
			return fmt.Errorf("decode history: %w", err)
		}
	}
	return nil
}
