package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema for the design store.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS designs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TEXT NOT NULL,
    config_yaml TEXT NOT NULL,
    score REAL NOT NULL,
    subsets_tested INTEGER NOT NULL,

    -- JSON columns: small matrices and per-direction records
    receptor_classes TEXT NOT NULL,
    sensitivities TEXT NOT NULL,
    directions TEXT NOT NULL,
    outcome TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_designs_created ON designs(created_at);

CREATE TABLE IF NOT EXISTS schema_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// InitSchema creates the schema and records its version.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO schema_meta (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", SchemaVersion))
	if err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	return nil
}
