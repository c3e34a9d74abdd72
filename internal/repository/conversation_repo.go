package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chatrelay-backend/internal/models"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	query := `INSERT INTO conversations (id, title, participants)
		VALUES ($1, $2, $3) RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query, c.ID, c.Title, c.Participants).
		Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	c := &models.Conversation{}
	query := `SELECT id, title, participants, created_at, updated_at
		FROM conversations WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Title, &c.Participants, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ConversationRepo) ListByParticipant(ctx context.Context, userID string) ([]*models.Conversation, error) {
	query := `SELECT id, title, participants, created_at, updated_at
		FROM conversations WHERE $1 = ANY(participants)
		ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		c := &models.Conversation{}
		if err := rows.Scan(&c.ID, &c.Title, &c.Participants, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// Touch bumps updated_at, keeping participant conversation lists ordered
// by recent activity.
func (r *ConversationRepo) Touch(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE conversations SET updated_at = $1 WHERE id = $2",
		time.Now().UTC(), id,
	)
	return err
}
