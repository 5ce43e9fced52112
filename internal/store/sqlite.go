package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DesignStore persists design bundles in a SQLite database.
type DesignStore struct {
	db     *sql.DB
	dbPath string
}

// Open creates a DesignStore at dir/designs.db, creating the directory and
// schema when absent.
func Open(dir string) (*DesignStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	dbPath := filepath.Join(dir, "designs.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &DesignStore{db: db, dbPath: dbPath}, nil
}

// Close closes the underlying database.
func (s *DesignStore) Close() error {
	return s.db.Close()
}

// Save persists a bundle and returns it with its assigned ID and timestamp.
func (s *DesignStore) Save(ctx context.Context, bundle Bundle) (Bundle, error) {
	bundle.CreatedAt = time.Now().UTC()

	classes, err := json.Marshal(bundle.ReceptorClasses)
	if err != nil {
		return Bundle{}, fmt.Errorf("encoding receptor classes: %w", err)
	}
	sens, err := json.Marshal(bundle.Sensitivities)
	if err != nil {
		return Bundle{}, fmt.Errorf("encoding sensitivities: %w", err)
	}
	dirs, err := json.Marshal(bundle.Directions)
	if err != nil {
		return Bundle{}, fmt.Errorf("encoding directions: %w", err)
	}
	outcome, err := json.Marshal(bundle.Outcome)
	if err != nil {
		return Bundle{}, fmt.Errorf("encoding outcome: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO designs
		(created_at, config_yaml, score, subsets_tested, receptor_classes, sensitivities, directions, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		bundle.CreatedAt.Format(time.RFC3339Nano),
		bundle.ConfigYAML,
		bundle.Score,
		bundle.SubsetsTested,
		string(classes), string(sens), string(dirs), string(outcome),
	)
	if err != nil {
		return Bundle{}, fmt.Errorf("inserting design: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Bundle{}, fmt.Errorf("reading design id: %w", err)
	}
	bundle.ID = id
	return bundle, nil
}

// Load retrieves one bundle by ID.
func (s *DesignStore) Load(ctx context.Context, id int64) (Bundle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, config_yaml, score, subsets_tested,
		       receptor_classes, sensitivities, directions, outcome
		FROM designs WHERE id = ?`, id)
	return scanBundle(row)
}

// Latest retrieves the most recently saved bundle.
func (s *DesignStore) Latest(ctx context.Context) (Bundle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, config_yaml, score, subsets_tested,
		       receptor_classes, sensitivities, directions, outcome
		FROM designs ORDER BY id DESC LIMIT 1`)
	return scanBundle(row)
}

// ListEntry summarizes one stored design.
type ListEntry struct {
	ID            int64     `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Score         float64   `json:"score"`
	SubsetsTested int       `json:"subsets_tested"`
	Names         []string  `json:"names"`
}

// List returns summaries of all stored designs, newest first.
func (s *DesignStore) List(ctx context.Context) ([]ListEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, score, subsets_tested, outcome
		FROM designs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing designs: %w", err)
	}
	defer rows.Close()

	var entries []ListEntry
	for rows.Next() {
		var e ListEntry
		var created, outcomeJSON string
		if err := rows.Scan(&e.ID, &created, &e.Score, &e.SubsetsTested, &outcomeJSON); err != nil {
			return nil, fmt.Errorf("scanning design row: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		var outcome struct {
			Names []string `json:"names"`
		}
		if err := json.Unmarshal([]byte(outcomeJSON), &outcome); err != nil {
			return nil, fmt.Errorf("decoding outcome: %w", err)
		}
		e.Names = outcome.Names
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanBundle(row *sql.Row) (Bundle, error) {
	var b Bundle
	var created, classes, sens, dirs, outcome string
	err := row.Scan(&b.ID, &created, &b.ConfigYAML, &b.Score, &b.SubsetsTested,
		&classes, &sens, &dirs, &outcome)
	if err != nil {
		return Bundle{}, fmt.Errorf("scanning design: %w", err)
	}

	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Bundle{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(classes), &b.ReceptorClasses); err != nil {
		return Bundle{}, fmt.Errorf("decoding receptor classes: %w", err)
	}
	if err := json.Unmarshal([]byte(sens), &b.Sensitivities); err != nil {
		return Bundle{}, fmt.Errorf("decoding sensitivities: %w", err)
	}
	if err := json.Unmarshal([]byte(dirs), &b.Directions); err != nil {
		return Bundle{}, fmt.Errorf("decoding directions: %w", err)
	}
	if err := json.Unmarshal([]byte(outcome), &b.Outcome); err != nil {
		return Bundle{}, fmt.Errorf("decoding outcome: %w", err)
	}
	return b, nil
}
