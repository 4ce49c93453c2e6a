package store

// Conversations derives the per-counterpart aggregate for a user: one entry
// per distinct counterpart carrying the temporally latest message of either
// direction and the count of unread messages from that counterpart. Ordered
// by last message time descending.
func (db *DB) Conversations(userID string) ([]Conversation, error) {
	// Latest message per counterpart, both directions collapsed.
	rows, err := db.Query(`
		SELECT m.seq, m.id, m.sender_id, m.receiver_id, m.content, m.type, m.status, m.created_at
		FROM messages m
		JOIN (
			SELECT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS counterpart,
			       MAX(seq) AS max_seq
			FROM messages
			WHERE sender_id = ? OR receiver_id = ?
			GROUP BY counterpart
		) latest ON latest.max_seq = m.seq
		ORDER BY m.created_at DESC, m.seq DESC`,
		userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		counterpart := m.SenderID
		if m.SenderID == userID {
			counterpart = m.ReceiverID
		}
		convs = append(convs, Conversation{CounterpartID: counterpart, LastMessage: m})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// One aggregate query for the unread counts in the counterpart -> self
	// direction.
	unread, err := db.unreadBySender(userID)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		convs[i].UnreadCount = unread[convs[i].CounterpartID]
	}
	return convs, nil
}

func (db *DB) unreadBySender(receiverID string) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT sender_id, COUNT(*) FROM messages
		WHERE receiver_id = ? AND status != ?
		GROUP BY sender_id`,
		receiverID, StatusRead)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var sender string
		var n int
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, err
		}
		counts[sender] = n
	}
	return counts, rows.Err()
}
