package store

import "time"

// PendingOutbox returns queued delivery entries in creation order.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, message_id, receiver_id, status
		FROM outbox WHERE status = ? ORDER BY id ASC`, OutboxQueued)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.MessageID, &e.ReceiverID, &e.Status); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkOutboxRelayed marks an entry as handled by the relay loop. Relayed
// entries are terminal whether or not a live member received the event:
// offline receivers fall back to the durable history.
func (db *DB) MarkOutboxRelayed(messageID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE outbox SET status = ?, updated_at = ? WHERE message_id = ?`,
		OutboxRelayed, now, messageID)
	return err
}
