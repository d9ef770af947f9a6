package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreatePackageAssignmentsTable, downCreatePackageAssignmentsTable)
}

func upCreatePackageAssignmentsTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE package_assignments (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			package_id TEXT NOT NULL,
			hours_remaining INT NOT NULL CHECK (hours_remaining >= 0),
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);
		CREATE INDEX idx_package_assignments_student ON package_assignments (student_id);
		CREATE INDEX idx_package_assignments_expiry ON package_assignments (expires_at) WHERE is_active;
	`

	_, err := tx.ExecContext(ctx, query)
	return err
}

func downCreatePackageAssignmentsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS package_assignments;`)
	return err
}
