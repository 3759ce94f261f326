package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	e "nuclight.org/terabox-relay-bot/pkg/entities"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, filePath string) (*SQLite, error) {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", filePath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite3 database: %w", err)
	}

	client := &SQLite{
		db: db,
	}

	err = client.init(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing sqlite3 database: %w", err)
	}

	return client, nil
}

func (c *SQLite) Close() error {
	return c.db.Close()
}

func (c *SQLite) SaveTransfer(ctx context.Context, rec e.TransferRecord) error {
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO transfers (
			id, chat_id, user_id, link, title, size, direct_link, outcome, reason, created_at, finished_at
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)`,
		rec.ID, rec.ChatID, rec.UserID, rec.Link, rec.Title, rec.Size, rec.DirectLink,
		string(rec.Outcome), rec.Reason, rec.CreatedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting transfer: %w", err)
	}

	return nil
}

// ListTransfers returns up to limit records, newest first.
func (c *SQLite) ListTransfers(ctx context.Context, limit int) ([]e.TransferRecord, error) {
	rows, err := c.db.QueryContext(
		ctx,
		`SELECT id, chat_id, user_id, link, title, size, direct_link, outcome, reason, created_at, finished_at
			FROM transfers
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transfers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []e.TransferRecord
	for rows.Next() {
		var (
			rec     e.TransferRecord
			outcome string
		)
		err = rows.Scan(
			&rec.ID, &rec.ChatID, &rec.UserID, &rec.Link, &rec.Title, &rec.Size, &rec.DirectLink,
			&outcome, &rec.Reason, &rec.CreatedAt, &rec.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		rec.Outcome = e.Outcome(outcome)
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transfers: %w", err)
	}

	return records, nil
}

// CountOutcomes returns how many transfers ended with each outcome since the given time.
func (c *SQLite) CountOutcomes(ctx context.Context, since time.Time) (map[e.Outcome]int, error) {
	rows, err := c.db.QueryContext(
		ctx,
		`SELECT outcome, COUNT(*) FROM transfers WHERE created_at >= ? GROUP BY outcome`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[e.Outcome]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err = rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		counts[e.Outcome(outcome)] = n
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcomes: %w", err)
	}

	return counts, nil
}

//go:embed init.sql
var initQuery string

func (c *SQLite) init(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, initQuery)
	return err
}
