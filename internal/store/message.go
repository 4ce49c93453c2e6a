package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateMessage persists a new message with status "sent" and queues its
// outbox entry in the same transaction, so a stored message always has a
// pending live-delivery record. Returns the stored record.
func (db *DB) CreateMessage(senderID, receiverID, content, msgType string) (*Message, error) {
	m := &Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Type:       msgType,
		Status:     StatusSent,
		CreatedAt:  time.Now().UnixMilli(),
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		INSERT INTO messages (id, sender_id, receiver_id, content, type, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SenderID, m.ReceiverID, m.Content, m.Type, m.Status, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if m.Seq, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("message seq: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO outbox (message_id, receiver_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ReceiverID, OutboxQueued, m.CreatedAt, m.CreatedAt); err != nil {
		return nil, fmt.Errorf("queue outbox: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}
	return m, nil
}

// History returns every message between the two users, either direction,
// in creation order. Reads are non-destructive and restartable.
func (db *DB) History(userA, userB string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT seq, id, sender_id, receiver_id, content, type, status, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, seq ASC`,
		userA, userB, userB, userA)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage returns a single message by id, or nil when absent.
func (db *DB) GetMessage(id string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT seq, id, sender_id, receiver_id, content, type, status, created_at
		FROM messages WHERE id = ?`, id).
		Scan(&m.Seq, &m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type, &m.Status, &m.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// MarkRead bulk-transitions every unread message from one sender to one
// receiver to "read". Idempotent: affects zero rows when nothing is pending.
// Returns the number of rows changed.
func (db *DB) MarkRead(fromUserID, toUserID string) (int64, error) {
	res, err := db.Exec(`
		UPDATE messages SET status = ?
		WHERE sender_id = ? AND receiver_id = ? AND status != ?`,
		StatusRead, fromUserID, toUserID, StatusRead)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkAllRead transitions every unread message addressed to the user,
// regardless of sender. Idempotent.
func (db *DB) MarkAllRead(toUserID string) (int64, error) {
	res, err := db.Exec(`
		UPDATE messages SET status = ?
		WHERE receiver_id = ? AND status != ?`,
		StatusRead, toUserID, StatusRead)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkDelivered applies the sent -> delivered transition for one message.
// The guard keeps the transition monotonic: a message already delivered or
// read is left untouched. Reports whether a row changed.
func (db *DB) MarkDelivered(messageID string) (bool, error) {
	res, err := db.Exec(`
		UPDATE messages SET status = ?
		WHERE id = ? AND status = ?`,
		StatusDelivered, messageID, StatusSent)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UnreadCount counts stored messages from one sender to one receiver that
// have not been read.
func (db *DB) UnreadCount(fromUserID, toUserID string) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM messages
		WHERE sender_id = ? AND receiver_id = ? AND status != ?`,
		fromUserID, toUserID, StatusRead).Scan(&n)
	return n, err
}
