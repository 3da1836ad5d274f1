package repo

import (
	"context"
	"database/sql"

	"taskpilot/internal/domain"
)

func (r Repo) InsertConversation(ctx context.Context, tx *sql.Tx, c domain.Conversation) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO conversations(user_id,title,created_at,updated_at) VALUES (?,?,?,?)`,
		c.UserID, c.Title, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetConversation(ctx context.Context, userID string, id int64) (domain.Conversation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,user_id,title,created_at,updated_at FROM conversations WHERE id=? AND user_id=?`, id, userID)
	var c domain.Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,user_id,title,created_at,updated_at FROM conversations WHERE user_id=? ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) TouchConversation(ctx context.Context, tx *sql.Tx, id int64, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at=? WHERE id=?`, updatedAt, id)
	return err
}

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO messages(conversation_id,role,content,created_at) VALUES (?,?,?,?)`,
		m.ConversationID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListMessages returns the most recent messages of a conversation in
// chronological order.
func (r Repo) ListMessages(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	query := `SELECT id,conversation_id,role,content,created_at FROM messages WHERE conversation_id=? ORDER BY created_at DESC, id DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res, nil
}
