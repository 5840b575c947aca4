package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"analytics-sdk/internal/storage"
)

type queueStore struct {
	adapter *Adapter
}

const unexpired = `(expiry < 0 OR expiry >= ?)`

func (q *queueStore) Insert(ctx context.Context, record storage.QueuedRecord) error {
	// REPLACE assigns a new seq, moving a re-queued key to the back.
	_, err := q.adapter.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO dispatches (key, payload, expiry, timestamp) VALUES (?, ?, ?, ?)`,
		record.Key, record.Payload, int64(record.Expiry), record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dispatch: %w", err)
	}
	return nil
}

func (q *queueStore) Pop(ctx context.Context, limit int, now time.Time) ([]storage.QueuedRecord, error) {
	if limit < 0 {
		limit = -1
	}

	tx, err := q.adapter.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT seq, key, payload, expiry, timestamp FROM dispatches
		WHERE `+unexpired+` ORDER BY seq LIMIT ?`,
		now.Unix(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select dispatches: %w", err)
	}

	var records []storage.QueuedRecord
	var seqs []int64
	for rows.Next() {
		var r storage.QueuedRecord
		var seq, expiry int64
		if err := rows.Scan(&seq, &r.Key, &r.Payload, &expiry, &r.Timestamp); err != nil {
			rows.Close()
			return nil, err
		}
		r.Expiry = storage.Expiry(expiry)
		records = append(records, r)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM dispatches WHERE seq = ?`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	for _, seq := range seqs {
		if _, err := stmt.ExecContext(ctx, seq); err != nil {
			return nil, fmt.Errorf("failed to delete dispatch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dequeue: %w", err)
	}
	return records, nil
}

func (q *queueStore) Count(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := q.adapter.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dispatches WHERE `+unexpired, now.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count dispatches: %w", err)
	}
	return n, nil
}

func (q *queueStore) Keys(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := q.adapter.db.QueryContext(ctx,
		`SELECT key FROM dispatches WHERE `+unexpired+` ORDER BY seq`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatch keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (q *queueStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	return affected(q.adapter.db.ExecContext(ctx,
		`DELETE FROM dispatches WHERE expiry >= 0 AND expiry < ?`, now.Unix()))
}

func (q *queueStore) PurgeSession(ctx context.Context) (int, error) {
	return affected(q.adapter.db.ExecContext(ctx,
		`DELETE FROM dispatches WHERE expiry = ?`, int64(storage.Session)))
}

func (q *queueStore) Trim(ctx context.Context, max int) (int, error) {
	if max < 0 {
		return 0, nil
	}

	tx, err := q.adapter.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatches`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count dispatches: %w", err)
	}
	if total <= max {
		return 0, nil
	}

	n, err := affected(tx.ExecContext(ctx, `
		DELETE FROM dispatches WHERE seq IN (
			SELECT seq FROM dispatches ORDER BY seq LIMIT ?
		)`, total-max))
	if err != nil {
		return 0, fmt.Errorf("failed to trim dispatches: %w", err)
	}
	return n, tx.Commit()
}

func (q *queueStore) Clear(ctx context.Context) error {
	_, err := q.adapter.db.ExecContext(ctx, `DELETE FROM dispatches`)
	return err
}

func affected(result sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}
