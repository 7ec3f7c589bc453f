package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"filerelay/internal/models"
)

const (
	DefaultRecentLimit = 50
	maxRecentLimit     = 500
	// width of the handle and file_name columns, in characters
	maxNameLength = 255
)

// Journal records settled dispatch outcomes. Only metadata is stored.
type Journal struct {
	db *sql.DB
}

func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record inserts all deliveries in a single transaction.
func (j *Journal) Record(ctx context.Context, deliveries []models.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO deliveries (handle, file_name, size, destination, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare journal insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, d := range deliveries {
		createdAt := d.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx, truncate(d.Handle), truncate(d.FileName), d.Size, d.Destination, string(d.Status), d.Error, createdAt); err != nil {
			return fmt.Errorf("insert delivery %s: %w", d.Handle, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal tx: %w", err)
	}
	return nil
}

// Recent returns the newest deliveries first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.Delivery, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, handle, file_name, size, destination, status, error, created_at
		FROM deliveries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []models.Delivery
	for rows.Next() {
		var (
			d      models.Delivery
			status string
		)
		if err := rows.Scan(&d.ID, &d.Handle, &d.FileName, &d.Size, &d.Destination, &status, &d.Error, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Status = models.DispatchStatus(status)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxNameLength {
		return s
	}
	return string([]rune(s)[:maxNameLength])
}
