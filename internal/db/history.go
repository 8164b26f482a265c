package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ChatMessage is a persisted conversation message.
type ChatMessage struct {
	ID             int64     `json:"id,omitempty"`
	ChatID         string    `json:"chat_id"`
	Role           string    `json:"role"` // user, assistant
	Content        string    `json:"content"`
	AttachmentName string    `json:"attachment_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Chat is conversation metadata.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnsureChat creates a chats row if one doesn't exist, so message
// foreign keys are satisfied.
func (s *Store) EnsureChat(ctx context.Context, chatID, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chats (id, title) VALUES (?, ?)`,
		chatID, title,
	)
	return err
}

// AppendMessage stores one message at the end of a chat.
func (s *Store) AppendMessage(ctx context.Context, msg ChatMessage) error {
	if msg.ChatID == "" {
		return errors.New("append message: empty chat id")
	}
	if err := s.EnsureChat(ctx, msg.ChatID, ""); err != nil {
		return fmt.Errorf("ensure chat %s: %w", msg.ChatID, err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (chat_id, role, content, attachment_name) VALUES (?, ?, ?, ?)`,
		msg.ChatID, msg.Role, msg.Content, msg.AttachmentName,
	)
	if err != nil {
		return fmt.Errorf("append message to %s: %w", msg.ChatID, err)
	}
	_, _ = s.db.ExecContext(ctx,
		`UPDATE chats SET updated_at = unixepoch() WHERE id = ?`, msg.ChatID)
	return nil
}

// RecentMessages returns up to limit most recent messages of a chat in
// chronological order. limit <= 0 returns the whole chat.
func (s *Store) RecentMessages(ctx context.Context, chatID string, limit int) ([]ChatMessage, error) {
	query := `SELECT id, chat_id, role, content, attachment_name, created_at
		FROM chat_messages WHERE chat_id = ? ORDER BY id DESC`
	args := []any{chatID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", chatID, err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var created int64
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.AttachmentName, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(created, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; callers want oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListChats returns all chats, most recently updated first.
func (s *Store) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chats ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.Title, &created, &updated); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(created, 0)
		c.UpdatedAt = time.Unix(updated, 0)
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and its messages.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
