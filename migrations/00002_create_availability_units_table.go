package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateAvailabilityUnitsTable, downCreateAvailabilityUnitsTable)
}

// One row per tutor hour. The CHECKs hold the unit invariant even if a caller skips the service.
func upCreateAvailabilityUnitsTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE availability_units (
			tutor_id TEXT NOT NULL,
			unit_date DATE NOT NULL,
			hour SMALLINT NOT NULL CHECK (hour BETWEEN 0 AND 23),
			is_open BOOLEAN NOT NULL DEFAULT TRUE,
			hours_booked INT NOT NULL DEFAULT 0,
			capacity INT NOT NULL DEFAULT 1 CHECK (capacity >= 1),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			PRIMARY KEY (tutor_id, unit_date, hour),
			CONSTRAINT availability_units_booked_range CHECK (hours_booked >= 0 AND hours_booked <= capacity),
			CONSTRAINT availability_units_full_closed CHECK (hours_booked < capacity OR NOT is_open)
		);
		CREATE INDEX idx_availability_units_open ON availability_units (tutor_id, unit_date, hour)
			WHERE is_open AND hours_booked < capacity;
	`

	_, err := tx.ExecContext(ctx, query)
	return err
}

func downCreateAvailabilityUnitsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS availability_units;`)
	return err
}
