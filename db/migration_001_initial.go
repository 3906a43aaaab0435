package db

import "database/sql"

func init() {
	RegisterMigration(Migration{
		Version:     1,
		Description: "Initial schema - chat tree, message logs and meta",
		Up:          migration001_initial,
	})
}

func migration001_initial(tx *sql.Tx) error {
	statements := []string{
		// Groups and chats share one table; the root is the single row with a NULL parent.
		// Positions are kept dense per parent by the application, so they carry no unique index.
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			parent_id TEXT REFERENCES nodes(id),
			name TEXT NOT NULL,
			kind TEXT NOT NULL CHECK (kind IN ('group', 'chat')),
			position INTEGER NOT NULL DEFAULT 0,
			settings TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (parent_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_parent_position ON nodes(parent_id, position)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id TEXT NOT NULL REFERENCES nodes(id),
			role TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			media TEXT,
			position INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_node_position ON messages(node_id, position)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
