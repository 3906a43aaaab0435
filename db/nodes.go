package db

import (
	"context"
	"database/sql"
	"strings"
)

// GetRootNode returns the tree root, or nil when the tree has not been initialised
func GetRootNode(ctx context.Context, q Querier) (*NodeRecord, error) {
	return SelectOne(ctx, q,
		`SELECT `+nodeColumns+` FROM nodes WHERE parent_id IS NULL LIMIT 1`,
		nil, scanNodeRow)
}

// GetNode returns a node by id (nil if not found)
func GetNode(ctx context.Context, q Querier, id string) (*NodeRecord, error) {
	return SelectOne(ctx, q,
		`SELECT `+nodeColumns+` FROM nodes WHERE id = ?`,
		[]any{id}, scanNodeRow)
}

// GetChildByName returns the child of parentID called name (nil if not found)
func GetChildByName(ctx context.Context, q Querier, parentID, name string) (*NodeRecord, error) {
	return SelectOne(ctx, q,
		`SELECT `+nodeColumns+` FROM nodes WHERE parent_id = ? AND name = ?`,
		[]any{parentID, name}, scanNodeRow)
}

// ListChildren returns the children of parentID in position order
func ListChildren(ctx context.Context, q Querier, parentID string) ([]NodeRecord, error) {
	return Select(ctx, q,
		`SELECT `+nodeColumns+` FROM nodes WHERE parent_id = ? ORDER BY position ASC`,
		[]any{parentID}, scanNodeRows)
}

// ListAllNodes returns every node grouped by parent, each group in position order
func ListAllNodes(ctx context.Context, q Querier) ([]NodeRecord, error) {
	return Select(ctx, q,
		`SELECT `+nodeColumns+` FROM nodes ORDER BY parent_id ASC, position ASC`,
		nil, scanNodeRows)
}

// CountChildren returns the number of direct children of parentID
func CountChildren(ctx context.Context, q Querier, parentID string) (int, error) {
	return Count(ctx, q, `SELECT COUNT(*) FROM nodes WHERE parent_id = ?`, parentID)
}

// InsertNode inserts a new node row
func InsertNode(ctx context.Context, q Querier, n NodeRecord) error {
	now := NowMs()
	if n.CreatedAt == 0 {
		n.CreatedAt = now
	}
	if n.UpdatedAt == 0 {
		n.UpdatedAt = now
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO nodes (id, parent_id, name, kind, position, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, NullString(n.ParentID), n.Name, n.Kind, n.Position, NullString(n.Settings), n.CreatedAt, n.UpdatedAt)
	return err
}

// UpdateNodeName renames a node in place
func UpdateNodeName(ctx context.Context, q Querier, id, name string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE nodes SET name = ?, updated_at = ? WHERE id = ?`,
		name, NowMs(), id)
	return err
}

// UpdateNodeParent re-parents a node and sets its position under the new parent
func UpdateNodeParent(ctx context.Context, q Querier, id, parentID string, position int) error {
	_, err := q.ExecContext(ctx,
		`UPDATE nodes SET parent_id = ?, position = ?, updated_at = ? WHERE id = ?`,
		parentID, position, NowMs(), id)
	return err
}

// UpdateNodeSettings stores the sparse settings document of a chat (nil clears it)
func UpdateNodeSettings(ctx context.Context, q Querier, id string, settings *string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE nodes SET settings = ?, updated_at = ? WHERE id = ?`,
		NullString(settings), NowMs(), id)
	return err
}

// ShiftPositions adds delta to the position of every child of parentID at or after from.
// Used to open a gap before an insert (delta 1) or close one after a removal (delta -1).
func ShiftPositions(ctx context.Context, q Querier, parentID string, from, delta int) error {
	_, err := q.ExecContext(ctx,
		`UPDATE nodes SET position = position + ? WHERE parent_id = ? AND position >= ?`,
		delta, parentID, from)
	return err
}

// SubtreeIDs returns the ids of id and all its descendants, deepest first
func SubtreeIDs(ctx context.Context, q Querier, id string) ([]string, error) {
	return Select(ctx, q, `
		WITH RECURSIVE subtree(id, depth) AS (
			SELECT id, 0 FROM nodes WHERE id = ?
			UNION ALL
			SELECT n.id, subtree.depth + 1 FROM nodes n JOIN subtree ON n.parent_id = subtree.id
		)
		SELECT id FROM subtree ORDER BY depth DESC
	`, []any{id}, scanString)
}

// DeleteNodes removes the given nodes and their message logs. ids must be
// ordered children before parents, as returned by SubtreeIDs.
func DeleteNodes(ctx context.Context, q Querier, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM messages WHERE node_id IN (`+placeholders+`)`, args...); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := q.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAll empties the tree and all message logs, including the root
func DeleteAll(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return err
	}
	// Children reference parents; drop leaves repeatedly until nothing remains.
	for {
		res, err := q.ExecContext(ctx, `DELETE FROM nodes WHERE id NOT IN (SELECT parent_id FROM nodes WHERE parent_id IS NOT NULL)`)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func scanString(rows *sql.Rows) (string, error) {
	var s string
	err := rows.Scan(&s)
	return s, err
}
