package notify

import (
	"database/sql"

	"github.com/wardflow/tanksentry/internal/store"
)

func migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create notifications table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS notifications (
						id         TEXT     PRIMARY KEY,
						category   TEXT     NOT NULL,
						actor      TEXT     NOT NULL DEFAULT '',
						payload    TEXT     NOT NULL DEFAULT '{}',
						created_at DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_category_time
						ON notifications(category, created_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
