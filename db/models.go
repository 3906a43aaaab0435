package db

import (
	"database/sql"
	"time"
)

// NodeRecord is one row of the nodes table
type NodeRecord struct {
	ID        string
	ParentID  *string
	Name      string
	Kind      string
	Position  int
	Settings  *string
	CreatedAt int64
	UpdatedAt int64
}

// IsRoot reports whether the record is the tree root
func (n NodeRecord) IsRoot() bool {
	return n.ParentID == nil
}

// MessageRecord is one row of the messages table
type MessageRecord struct {
	ID        int64
	NodeID    string
	Role      string
	Content   string
	Media     *string
	Position  int
	CreatedAt int64
}

const nodeColumns = `id, parent_id, name, kind, position, settings, created_at, updated_at`

const messageColumns = `id, node_id, role, content, media, position, created_at`

func scanNode(row interface{ Scan(...any) error }) (NodeRecord, error) {
	var n NodeRecord
	var parentID, settings sql.NullString
	err := row.Scan(&n.ID, &parentID, &n.Name, &n.Kind, &n.Position, &settings, &n.CreatedAt, &n.UpdatedAt)
	n.ParentID = StringPtr(parentID)
	n.Settings = StringPtr(settings)
	return n, err
}

func scanNodeRows(rows *sql.Rows) (NodeRecord, error) { return scanNode(rows) }

func scanNodeRow(row *sql.Row) (NodeRecord, error) { return scanNode(row) }

func scanMessage(row interface{ Scan(...any) error }) (MessageRecord, error) {
	var m MessageRecord
	var media sql.NullString
	err := row.Scan(&m.ID, &m.NodeID, &m.Role, &m.Content, &media, &m.Position, &m.CreatedAt)
	m.Media = StringPtr(media)
	return m, err
}

func scanMessageRows(rows *sql.Rows) (MessageRecord, error) { return scanMessage(rows) }

func scanMessageRow(row *sql.Row) (MessageRecord, error) { return scanMessage(row) }

// NowMs returns the current time as Unix milliseconds (int64)
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// NullString converts *string to sql.NullString
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// StringPtr converts sql.NullString to *string
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
