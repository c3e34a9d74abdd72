package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatrelay-backend/internal/models"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Create(ctx context.Context, m *models.Message) error {
	m.ID = uuid.New()

	query := `INSERT INTO messages (id, conversation_id, sender, content, message_type)
		VALUES ($1, $2, $3, $4, $5) RETURNING timestamp`

	return r.pool.QueryRow(ctx, query,
		m.ID, m.ConversationID, m.Sender, m.Content, m.MessageType,
	).Scan(&m.Timestamp)
}

// ListByConversation returns the conversation's messages in timestamp
// order, oldest first.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]*models.Message, error) {
	query := `SELECT id, conversation_id, sender, content, message_type, timestamp
		FROM messages WHERE conversation_id = $1
		ORDER BY timestamp ASC`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &m.MessageType, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
