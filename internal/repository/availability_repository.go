package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lingo-tutor-api/internal/models"
)

const availabilityColumns = `tutor_id, unit_date, hour, is_open, hours_booked, capacity, created_at, updated_at`

// AvailabilityRepository stores per-hour tutor availability units.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository builds repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockRange loads and row-locks the units of a range, hour ascending.
func (r *AvailabilityRepository) LockRange(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours models.HourRange) ([]models.AvailabilityUnit, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_units
WHERE tutor_id = $1 AND unit_date = $2 AND hour >= $3 AND hour < $4 ORDER BY hour ASC FOR UPDATE`
	var units []models.AvailabilityUnit
	if err := sqlx.SelectContext(ctx, r.exec(exec), &units, query, tutorID, date, hours.From, hours.To); err != nil {
		return nil, fmt.Errorf("lock availability range: %w", err)
	}
	return units, nil
}

// LockDay loads and row-locks every unit of a tutor day, hour ascending.
func (r *AvailabilityRepository) LockDay(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time) ([]models.AvailabilityUnit, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_units
WHERE tutor_id = $1 AND unit_date = $2 ORDER BY hour ASC FOR UPDATE`
	var units []models.AvailabilityUnit
	if err := sqlx.SelectContext(ctx, r.exec(exec), &units, query, tutorID, date); err != nil {
		return nil, fmt.Errorf("lock availability day: %w", err)
	}
	return units, nil
}

// Reserve books one hour of capacity on every unit of the range or none of them.
func (r *AvailabilityRepository) Reserve(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours models.HourRange, now time.Time) error {
	target := r.exec(exec)
	units, err := r.LockRange(ctx, target, tutorID, date, hours)
	if err != nil {
		return err
	}
	if err := CheckReservable(units, hours); err != nil {
		return err
	}

	const query = `UPDATE availability_units
SET hours_booked = hours_booked + 1, is_open = (hours_booked + 1 < capacity), updated_at = $1
WHERE tutor_id = $2 AND unit_date = $3 AND hour >= $4 AND hour < $5 AND hours_booked < capacity`
	result, err := target.ExecContext(ctx, query, now, tutorID, date, hours.From, hours.To)
	if err != nil {
		return fmt.Errorf("reserve availability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve availability rows affected: %w", err)
	}
	if affected != int64(hours.Len()) {
		return ErrCapacityExceeded
	}
	return nil
}

// CheckReservable validates locked units against the requested range.
func CheckReservable(units []models.AvailabilityUnit, hours models.HourRange) error {
	byHour := make(map[int]models.AvailabilityUnit, len(units))
	for _, u := range units {
		byHour[u.Hour] = u
	}
	for _, h := range hours.Hours() {
		unit, ok := byHour[h]
		switch {
		case !ok:
			return fmt.Errorf("hour %02d:00: %w", h, ErrNotOpen)
		case unit.Full():
			return fmt.Errorf("hour %02d:00: %w", h, ErrCapacityExceeded)
		case !unit.IsOpen:
			return fmt.Errorf("hour %02d:00: %w", h, ErrNotOpen)
		}
	}
	return nil
}

// Release gives back one hour of capacity on every booked unit of the range.
// Units with nothing booked are left untouched, which makes repeated releases no-ops.
func (r *AvailabilityRepository) Release(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours models.HourRange, now time.Time) (int64, error) {
	target := r.exec(exec)
	if _, err := r.LockRange(ctx, target, tutorID, date, hours); err != nil {
		return 0, err
	}
	const query = `UPDATE availability_units
SET hours_booked = hours_booked - 1, is_open = TRUE, updated_at = $1
WHERE tutor_id = $2 AND unit_date = $3 AND hour >= $4 AND hour < $5 AND hours_booked > 0`
	result, err := target.ExecContext(ctx, query, now, tutorID, date, hours.From, hours.To)
	if err != nil {
		return 0, fmt.Errorf("release availability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release availability rows affected: %w", err)
	}
	return affected, nil
}

// UpsertOpen opens every hour of the range. With exact=false capacity only grows;
// with exact=true it is set to capacity, so callers must check bookings first.
func (r *AvailabilityRepository) UpsertOpen(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours models.HourRange, capacity int, exact bool, now time.Time) error {
	capacityExpr := `GREATEST(availability_units.capacity, EXCLUDED.capacity)`
	if exact {
		capacityExpr = `EXCLUDED.capacity`
	}
	query := `INSERT INTO availability_units (tutor_id, unit_date, hour, is_open, hours_booked, capacity, created_at, updated_at)
SELECT $1, $2, h, TRUE, 0, $3, $4, $4 FROM generate_series($5::int, $6::int - 1) AS h
ON CONFLICT (tutor_id, unit_date, hour) DO UPDATE
SET capacity = ` + capacityExpr + `,
    is_open = availability_units.hours_booked < ` + capacityExpr + `,
    updated_at = EXCLUDED.updated_at`
	if _, err := r.exec(exec).ExecContext(ctx, query, tutorID, date, capacity, now, hours.From, hours.To); err != nil {
		return fmt.Errorf("upsert availability: %w", err)
	}
	return nil
}

// Close marks the given hours closed. Units keep their booking counters.
func (r *AvailabilityRepository) Close(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours []int, now time.Time) error {
	if len(hours) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE availability_units SET is_open = FALSE, updated_at = ?
WHERE tutor_id = ? AND unit_date = ? AND hour IN (?) AND is_open`, now, tutorID, date, hours)
	if err != nil {
		return fmt.Errorf("build close availability query: %w", err)
	}
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, target.Rebind(query), args...); err != nil {
		return fmt.Errorf("close availability: %w", err)
	}
	return nil
}

// ListOpenPage returns bookable units strictly after the (afterDate, afterHour) cursor.
func (r *AvailabilityRepository) ListOpenPage(ctx context.Context, tutorID string, from, to, afterDate time.Time, afterHour, limit int) ([]models.AvailabilityUnit, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_units
WHERE tutor_id = $1 AND unit_date >= $2 AND unit_date <= $3 AND is_open AND hours_booked < capacity
AND (unit_date, hour) > ($4, $5) ORDER BY unit_date ASC, hour ASC LIMIT $6`
	var units []models.AvailabilityUnit
	if err := r.db.SelectContext(ctx, &units, query, tutorID, from, to, afterDate, afterHour, limit); err != nil {
		return nil, fmt.Errorf("list open availability: %w", err)
	}
	return units, nil
}

// ListDay returns every unit of a tutor day without locking.
func (r *AvailabilityRepository) ListDay(ctx context.Context, tutorID string, date time.Time) ([]models.AvailabilityUnit, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_units WHERE tutor_id = $1 AND unit_date = $2 ORDER BY hour ASC`
	var units []models.AvailabilityUnit
	if err := r.db.SelectContext(ctx, &units, query, tutorID, date); err != nil {
		return nil, fmt.Errorf("list availability day: %w", err)
	}
	return units, nil
}
