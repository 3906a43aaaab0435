package db

import "context"

// ListMessages returns a chat's message log in order
func ListMessages(ctx context.Context, q Querier, nodeID string) ([]MessageRecord, error) {
	return Select(ctx, q,
		`SELECT `+messageColumns+` FROM messages WHERE node_id = ? ORDER BY position ASC`,
		[]any{nodeID}, scanMessageRows)
}

// CountMessages returns the length of a chat's message log
func CountMessages(ctx context.Context, q Querier, nodeID string) (int, error) {
	return Count(ctx, q, `SELECT COUNT(*) FROM messages WHERE node_id = ?`, nodeID)
}

// LastMessage returns the final message of a chat (nil when the log is empty)
func LastMessage(ctx context.Context, q Querier, nodeID string) (*MessageRecord, error) {
	return SelectOne(ctx, q,
		`SELECT `+messageColumns+` FROM messages WHERE node_id = ? ORDER BY position DESC LIMIT 1`,
		[]any{nodeID}, scanMessageRow)
}

// InsertMessage stores a message and returns its row id
func InsertMessage(ctx context.Context, q Querier, m MessageRecord) (int64, error) {
	if m.CreatedAt == 0 {
		m.CreatedAt = NowMs()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO messages (node_id, role, content, media, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.NodeID, m.Role, m.Content, NullString(m.Media), m.Position, m.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AppendContent concatenates text onto an existing message
func AppendContent(ctx context.Context, q Querier, id int64, text string) error {
	_, err := q.ExecContext(ctx, `UPDATE messages SET content = content || ? WHERE id = ?`, text, id)
	return err
}

// DeleteMessagesByNode empties a chat's log
func DeleteMessagesByNode(ctx context.Context, q Querier, nodeID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM messages WHERE node_id = ?`, nodeID)
	return err
}

// DeleteMessagesFrom removes every message at or after position from
func DeleteMessagesFrom(ctx context.Context, q Querier, nodeID string, from int) error {
	_, err := q.ExecContext(ctx, `DELETE FROM messages WHERE node_id = ? AND position >= ?`, nodeID, from)
	return err
}

// DeleteMessagesInRange removes positions start..end inclusive and closes the gap
func DeleteMessagesInRange(ctx context.Context, q Querier, nodeID string, start, end int) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM messages WHERE node_id = ? AND position >= ? AND position <= ?`,
		nodeID, start, end); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx,
		`UPDATE messages SET position = position - ? WHERE node_id = ? AND position > ?`,
		end-start+1, nodeID, end)
	return err
}

// DeleteMessagesByRole removes every message of role and renumbers the remainder
func DeleteMessagesByRole(ctx context.Context, q Querier, nodeID, role string) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM messages WHERE node_id = ? AND role = ?`, nodeID, role)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := RenumberMessages(ctx, q, nodeID); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// RenumberMessages rewrites positions of a chat's log to 0..n-1 keeping their order
func RenumberMessages(ctx context.Context, q Querier, nodeID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE messages SET position = (
			SELECT r.rn FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY position) - 1 AS rn
				FROM messages WHERE node_id = ?
			) r WHERE r.id = messages.id
		)
		WHERE node_id = ?
	`, nodeID, nodeID)
	return err
}
