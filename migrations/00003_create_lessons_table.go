package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateLessonsTable, downCreateLessonsTable)
}

func upCreateLessonsTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE lessons (
			id TEXT PRIMARY KEY,
			tutor_id TEXT NOT NULL,
			student_id TEXT NOT NULL,
			package_assignment_id TEXT REFERENCES package_assignments(id),
			lesson_date DATE NOT NULL,
			start_hour SMALLINT NOT NULL CHECK (start_hour BETWEEN 0 AND 23),
			starts_at TIMESTAMP WITH TIME ZONE NOT NULL,
			duration_minutes INT NOT NULL CHECK (duration_minutes > 0 AND duration_minutes % 60 = 0),
			lesson_type TEXT NOT NULL DEFAULT '',
			topic TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK (status IN (
				'scheduled', 'in_progress', 'completed', 'cancelled',
				'no_show_student', 'no_show_tutor', 'technical_issues'
			)),
			meeting_url TEXT,
			refunded BOOLEAN NOT NULL DEFAULT FALSE,
			cancelled_by TEXT,
			cancelled_at TIMESTAMP WITH TIME ZONE,
			cancellation_reason TEXT,
			started_at TIMESTAMP WITH TIME ZONE,
			completed_at TIMESTAMP WITH TIME ZONE,
			tutor_feedback TEXT,
			student_feedback TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);
		CREATE INDEX idx_lessons_tutor_start ON lessons (tutor_id, starts_at);
		CREATE INDEX idx_lessons_student_start ON lessons (student_id, starts_at);
	`

	_, err := tx.ExecContext(ctx, query)
	return err
}

func downCreateLessonsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS lessons;`)
	return err
}
