// Package notify implements the cross-session notification log: a
// category-partitioned, multi-writer store that UI consumers discover by
// polling. Unlike the telemetry channel there is no push here; a write
// from one session becomes visible to another on its next poll tick.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wardflow/tanksentry/internal/store"
	"github.com/wardflow/tanksentry/pkg/models"
)

// ErrNotFound is returned when a record does not exist (or was already
// removed by a racing consumer, which is the documented weak-consistency
// outcome, not corruption).
var ErrNotFound = errors.New("notification not found")

// Store provides database access to the notification log.
type Store struct {
	db *store.SQLiteStore
}

// NewStore creates a Store backed by the shared database. Migrate must
// have been run first.
func NewStore(db *store.SQLiteStore) *Store {
	return &Store{db: db}
}

// Migrate applies the notification schema.
func Migrate(ctx context.Context, db *store.SQLiteStore) error {
	return db.Migrate(ctx, "notify", migrations())
}

// Append adds a record to the end of its category's sequence. A missing
// ID gets a fresh UUID; a zero CreatedAt gets the current time.
func (s *Store) Append(ctx context.Context, rec *models.NotificationRecord) error {
	if !models.KnownCategory(rec.Category) {
		return fmt.Errorf("unknown category %q", rec.Category)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Payload == nil {
		rec.Payload = map[string]any{}
	}

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = s.db.DB().ExecContext(ctx, `
		INSERT INTO notifications (id, category, actor, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Category), rec.Actor, string(payload), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

// List returns a category's records newest first. Ties on creation time
// break on ID so the order is stable across pollers.
func (s *Store) List(ctx context.Context, category models.Category) ([]models.NotificationRecord, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, category, actor, payload, created_at
		FROM notifications
		WHERE category = ?
		ORDER BY created_at DESC, id DESC`,
		string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Remove deletes all records in a category matching the predicate and
// returns how many were removed. The read and the delete run in one
// transaction, so a concurrent poller sees either all matches present or
// all gone.
func (s *Store) Remove(ctx context.Context, category models.Category, match func(models.NotificationRecord) bool) (int, error) {
	removed := 0
	err := s.db.Tx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, category, actor, payload, created_at
			FROM notifications WHERE category = ?`,
			string(category),
		)
		if err != nil {
			return fmt.Errorf("select for remove: %w", err)
		}
		var ids []string
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return err
			}
			if match(rec) {
				ids = append(ids, rec.ID)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
		}
		removed = len(ids)
		return nil
	})
	return removed, err
}

// RemoveByID dismisses one record. Returns ErrNotFound when the record
// is absent, including when another consumer won the race to dismiss it.
func (s *Store) RemoveByID(ctx context.Context, category models.Category, id string) error {
	res, err := s.db.DB().ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ? AND category = ?`,
		id, string(category),
	)
	if err != nil {
		return fmt.Errorf("dismiss %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes every record in a category.
func (s *Store) Clear(ctx context.Context, category models.Category) error {
	_, err := s.db.DB().ExecContext(ctx,
		`DELETE FROM notifications WHERE category = ?`, string(category),
	)
	if err != nil {
		return fmt.Errorf("clear %s: %w", category, err)
	}
	return nil
}

// Approve resolves an asset-registration request: the request leaves its
// partition and an approval-result addressed to the original actor is
// appended, as one transaction. A poller never observes the half-done
// state. Returns the appended result record.
func (s *Store) Approve(ctx context.Context, id string) (*models.NotificationRecord, error) {
	return s.resolveRegistration(ctx, id, models.OutcomeApproved)
}

// Reject is Approve with a rejected outcome.
func (s *Store) Reject(ctx context.Context, id string) (*models.NotificationRecord, error) {
	return s.resolveRegistration(ctx, id, models.OutcomeRejected)
}

func (s *Store) resolveRegistration(ctx context.Context, id, outcome string) (*models.NotificationRecord, error) {
	result := &models.NotificationRecord{
		ID:        uuid.NewString(),
		Category:  models.CategoryApprovalResult,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.Tx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, category, actor, payload, created_at
			FROM notifications WHERE id = ? AND category = ?`,
			id, string(models.CategoryAssetRegistration),
		)
		req, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id); err != nil {
			return fmt.Errorf("remove registration: %w", err)
		}

		result.Actor = req.Actor
		result.Payload = map[string]any{
			"outcome":    outcome,
			"request_id": req.ID,
		}
		if tank, ok := req.Payload["resource_id"]; ok {
			result.Payload["resource_id"] = tank
		}
		payload, err := json.Marshal(result.Payload)
		if err != nil {
			return fmt.Errorf("marshal result payload: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (id, category, actor, payload, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			result.ID, string(result.Category), result.Actor, string(payload), result.CreatedAt,
		); err != nil {
			return fmt.Errorf("append approval result: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.NotificationRecord, error) {
	var rec models.NotificationRecord
	var category, payload string
	if err := row.Scan(&rec.ID, &category, &rec.Actor, &payload, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, sql.ErrNoRows
		}
		return rec, fmt.Errorf("scan notification: %w", err)
	}
	rec.Category = models.Category(category)
	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return rec, fmt.Errorf("unmarshal payload of %s: %w", rec.ID, err)
	}
	return rec, nil
}
