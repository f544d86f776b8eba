// Package queue implements the durable offline mutation queue.
//
// Entries are replayed in enqueue order by the sync engine. The queue is the
// single record of what has not yet been confirmed against the remote source,
// so it is stored in SQLite and survives restarts. Every rewrite (remove,
// rename) runs in a transaction, which keeps a crash from leaving a half
// rewritten log.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/workq/internal/db"
	"github.com/mschirtzinger/workq/internal/types"
)

// ErrEntryNotFound is returned when no queue entry matches a removal.
var ErrEntryNotFound = errors.New("queue entry not found")

// Snapshot is a point-in-time copy of the pending entries in FIFO order.
type Snapshot struct {
	Pending []types.QueueEntry
}

// Queue is the mutation queue backed by the mutations table.
type Queue struct {
	db  *db.DB
	now func() time.Time
}

// New returns a queue over an initialized database.
func New(database *db.DB) *Queue {
	return &Queue{
		db:  database,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Append adds an entry at the tail. A zero Timestamp is filled in with the
// current time. The stored entry, including its sequence number, is returned.
func (q *Queue) Append(ctx context.Context, entry types.QueueEntry) (types.QueueEntry, error) {
	if !entry.Action.IsValid() {
		return entry, fmt.Errorf("invalid queue action %q", entry.Action)
	}
	if entry.ItemID == "" {
		return entry, fmt.Errorf("queue entry requires an item id")
	}
	if entry.Action == types.ActionComment && entry.Comment == nil {
		return entry, fmt.Errorf("comment entry for %s has no payload", entry.ItemID)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = q.now()
	}

	var author, body sql.NullString
	if entry.Comment != nil {
		author = sql.NullString{String: entry.Comment.Author, Valid: true}
		body = sql.NullString{String: entry.Comment.Body, Valid: true}
	}

	query := `
	INSERT INTO mutations (action, item_id, timestamp, comment_author, comment_body)
	VALUES (?, ?, ?, ?, ?)
	`
	res, err := q.db.RawDB().ExecContext(ctx, query,
		string(entry.Action),
		entry.ItemID,
		entry.Timestamp.Format(time.RFC3339Nano),
		author,
		body,
	)
	if err != nil {
		return entry, fmt.Errorf("failed to append %s %s: %w", entry.Action, entry.ItemID, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return entry, fmt.Errorf("failed to read queue sequence: %w", err)
	}
	entry.Seq = seq
	return entry, nil
}

// Read returns a snapshot of the pending entries in replay order.
func (q *Queue) Read(ctx context.Context) (*Snapshot, error) {
	query := `
	SELECT seq, action, item_id, timestamp, comment_author, comment_body
	FROM mutations
	ORDER BY seq
	`
	rows, err := q.db.RawDB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	defer rows.Close()

	snap := &Snapshot{Pending: []types.QueueEntry{}}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		snap.Pending = append(snap.Pending, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue: %w", err)
	}
	return snap, nil
}

// Remove deletes the first entry matching itemID and action.
func (q *Queue) Remove(ctx context.Context, itemID string, action types.Action) error {
	return q.db.WithTx(ctx, func(tx *sql.Tx) error {
		var seq int64
		err := tx.QueryRowContext(ctx,
			`SELECT seq FROM mutations WHERE item_id = ? AND action = ? ORDER BY seq LIMIT 1`,
			itemID, string(action),
		).Scan(&seq)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", action, itemID, ErrEntryNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to find queue entry: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM mutations WHERE seq = ?`, seq); err != nil {
			return fmt.Errorf("failed to remove queue entry %d: %w", seq, err)
		}
		return nil
	})
}

// RemoveEntry deletes the entry with the given sequence number.
func (q *Queue) RemoveEntry(ctx context.Context, seq int64) error {
	res, err := q.db.RawDB().ExecContext(ctx, `DELETE FROM mutations WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("failed to remove queue entry %d: %w", seq, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove queue entry %d: %w", seq, err)
	}
	if n == 0 {
		return fmt.Errorf("entry %d: %w", seq, ErrEntryNotFound)
	}
	return nil
}

// RenameItem rewrites the item id of every entry that references oldID.
// Relative order is unchanged because the sequence numbers are untouched.
func (q *Queue) RenameItem(ctx context.Context, oldID, newID string) error {
	return q.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE mutations SET item_id = ? WHERE item_id = ?`, newID, oldID,
		); err != nil {
			return fmt.Errorf("failed to rename %s to %s in queue: %w", oldID, newID, err)
		}
		return nil
	})
}

// Len returns the number of pending entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var count int
	if err := q.db.RawDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM mutations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return count, nil
}

// PendingIDs returns the set of item ids referenced by any pending entry.
func (q *Queue) PendingIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := q.db.RawDB().QueryContext(ctx, `SELECT DISTINCT item_id FROM mutations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan pending id: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending ids: %w", err)
	}
	return ids, nil
}

func scanEntry(rows *sql.Rows) (types.QueueEntry, error) {
	var (
		entry         types.QueueEntry
		action, stamp string
		author, body  sql.NullString
	)
	if err := rows.Scan(&entry.Seq, &action, &entry.ItemID, &stamp, &author, &body); err != nil {
		return entry, fmt.Errorf("failed to scan queue entry: %w", err)
	}

	entry.Action = types.Action(action)
	ts, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return entry, fmt.Errorf("invalid timestamp on queue entry %d: %w", entry.Seq, err)
	}
	entry.Timestamp = ts

	if author.Valid || body.Valid {
		entry.Comment = &types.CommentInput{Author: author.String, Body: body.String}
	}
	return entry, nil
}
