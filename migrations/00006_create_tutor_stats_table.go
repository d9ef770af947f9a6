package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateTutorStatsTable, downCreateTutorStatsTable)
}

func upCreateTutorStatsTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE tutor_stats (
			tutor_id TEXT PRIMARY KEY,
			lessons_completed INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);
	`

	_, err := tx.ExecContext(ctx, query)
	return err
}

func downCreateTutorStatsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS tutor_stats;`)
	return err
}
