// Package journal keeps a local SQLite record of every batch transmission
// attempt, so past sends can be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docker/eventreporter/pkg/analytics"
)

// Entry is one transmission attempt.
type Entry struct {
	BatchID     string
	SessionUUID string
	Events      int
	OK          bool
	HTTPStatus  int
	StatusText  string
	SentAt      time.Time
}

// EntryFromResponse converts an observer callback argument into an entry.
func EntryFromResponse(resp analytics.Response) Entry {
	return Entry{
		BatchID:     resp.BatchID,
		SessionUUID: resp.SessionUUID,
		Events:      resp.Events,
		OK:          resp.OK,
		HTTPStatus:  resp.HTTPStatus,
		StatusText:  resp.StatusText,
		SentAt:      resp.SentAt,
	}
}

// Summary aggregates the whole journal.
type Summary struct {
	Batches  int
	Failed   int
	Events   int
	Sessions int
	Last     time.Time
}

type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path and brings its schema up to date.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.BatchID == "" {
		return errors.New("entry has no batch ID")
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transmissions (batch_id, session_uuid, events, ok, http_status, status_text, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.BatchID, e.SessionUUID, e.Events, e.OK, e.HTTPStatus, e.StatusText, e.SentAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording batch %s: %w", e.BatchID, err)
	}
	return nil
}

// List returns the most recent entries first. A limit of zero or less
// returns everything.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT batch_id, session_uuid, events, ok, http_status, status_text, sent_at
		FROM transmissions ORDER BY sent_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transmissions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var sentAt int64
		if err := rows.Scan(&e.BatchID, &e.SessionUUID, &e.Events, &e.OK, &e.HTTPStatus, &e.StatusText, &sentAt); err != nil {
			return nil, err
		}
		e.SentAt = time.UnixMilli(sentAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *Journal) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	var last sql.NullInt64
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN ok THEN 0 ELSE 1 END), 0),
		       COALESCE(SUM(events), 0),
		       COUNT(DISTINCT session_uuid),
		       MAX(sent_at)
		FROM transmissions`).Scan(&s.Batches, &s.Failed, &s.Events, &s.Sessions, &last)
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing transmissions: %w", err)
	}
	if last.Valid {
		s.Last = time.UnixMilli(last.Int64)
	}
	return s, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
