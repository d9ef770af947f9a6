package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateHourLedgerEntriesTable, downCreateHourLedgerEntriesTable)
}

// The lesson reference is deferred: the booking debit is journaled before the lesson row exists.
func upCreateHourLedgerEntriesTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE hour_ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			assignment_id TEXT NOT NULL REFERENCES package_assignments(id) ON DELETE CASCADE,
			lesson_id TEXT REFERENCES lessons(id) DEFERRABLE INITIALLY DEFERRED,
			delta INT NOT NULL CHECK (delta <> 0),
			balance_after INT NOT NULL CHECK (balance_after >= 0),
			reason TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);
		CREATE INDEX idx_hour_ledger_entries_assignment ON hour_ledger_entries (assignment_id, id);
	`

	_, err := tx.ExecContext(ctx, query)
	return err
}

func downCreateHourLedgerEntriesTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS hour_ledger_entries;`)
	return err
}
