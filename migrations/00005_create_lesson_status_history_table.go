package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateLessonStatusHistoryTable, downCreateLessonStatusHistoryTable)
}

// History rows are append-only; the trigger rejects UPDATE and DELETE.
func upCreateLessonStatusHistoryTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE lesson_status_history (
			id BIGSERIAL PRIMARY KEY,
			lesson_id TEXT NOT NULL REFERENCES lessons(id),
			status TEXT NOT NULL,
			previous_status TEXT,
			reason TEXT NOT NULL DEFAULT '',
			changed_by_role TEXT NOT NULL,
			changed_by_user_id TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);
		CREATE INDEX idx_lesson_status_history_lesson ON lesson_status_history (lesson_id, id);

		CREATE FUNCTION lesson_status_history_immutable() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'lesson_status_history rows are immutable';
		END;
		$$ LANGUAGE plpgsql;

		CREATE TRIGGER trg_lesson_status_history_immutable
			BEFORE UPDATE OR DELETE ON lesson_status_history
			FOR EACH ROW EXECUTE FUNCTION lesson_status_history_immutable();
	`

	_, err := tx.ExecContext(ctx, query)
	return err
}

func downCreateLessonStatusHistoryTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		DROP TABLE IF EXISTS lesson_status_history;
		DROP FUNCTION IF EXISTS lesson_status_history_immutable();
	`
	_, err := tx.ExecContext(ctx, query)
	return err
}
