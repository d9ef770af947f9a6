package service

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lingo-tutor-api/internal/dto"
	"github.com/noah-isme/lingo-tutor-api/internal/models"
	"github.com/noah-isme/lingo-tutor-api/pkg/clock"
	appErrors "github.com/noah-isme/lingo-tutor-api/pkg/errors"
)

const maxAvailabilityQueryDays = 62

type availabilityStore interface {
	LockDay(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time) ([]models.AvailabilityUnit, error)
	UpsertOpen(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours models.HourRange, capacity int, exact bool, now time.Time) error
	Close(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours []int, now time.Time) error
	ListOpenPage(ctx context.Context, tutorID string, from, to, afterDate time.Time, afterHour, limit int) ([]models.AvailabilityUnit, error)
	ListDay(ctx context.Context, tutorID string, date time.Time) ([]models.AvailabilityUnit, error)
}

// AvailabilityConfig tunes publishing defaults and the coarse block view.
type AvailabilityConfig struct {
	DefaultCapacity int
	BlockStarts     []int
	BlockHours      int
	PageSize        int
	CacheTTL        time.Duration
	Location        *time.Location
}

func (c AvailabilityConfig) withDefaults() AvailabilityConfig {
	if c.DefaultCapacity <= 0 {
		c.DefaultCapacity = 1
	}
	if len(c.BlockStarts) == 0 {
		c.BlockStarts = []int{6, 14}
	}
	if c.BlockHours <= 0 {
		c.BlockHours = 8
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// AvailabilityService publishes tutor hours and serves availability reads.
type AvailabilityService struct {
	store     availabilityStore
	tx        transactor
	cache     *CacheService
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
	cfg       AvailabilityConfig
}

// NewAvailabilityService constructs the availability service.
func NewAvailabilityService(store availabilityStore, tx transactor, cache *CacheService, clk clock.Clock, validate *validator.Validate, logger *zap.Logger, cfg AvailabilityConfig) *AvailabilityService {
	if clk == nil {
		clk = clock.Real{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		store:     store,
		tx:        tx,
		cache:     cache,
		clock:     clk,
		validator: validate,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

// Publish opens hours for a tutor. Additive publishes never fail on bookings;
// a replace publish makes the range the day's whole open set and is rejected
// when it would close or shrink hours that hold bookings.
func (s *AvailabilityService) Publish(ctx context.Context, tutorID string, req dto.PublishAvailabilityRequest) ([]models.AvailabilityUnit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	date, err := s.parseFutureDate(req.Date)
	if err != nil {
		return nil, err
	}
	hours := models.HourRange{From: req.FromHour, To: req.ToHour}
	capacity := req.Capacity
	if capacity <= 0 {
		capacity = s.cfg.DefaultCapacity
	}
	now := s.clock.Now()

	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if !req.Replace {
			return s.store.UpsertOpen(ctx, exec, tutorID, date, hours, capacity, false, now)
		}

		units, err := s.store.LockDay(ctx, exec, tutorID, date)
		if err != nil {
			return err
		}
		closing := make([]int, 0, len(units))
		for _, unit := range units {
			if hours.Contains(unit.Hour) {
				if unit.HoursBooked > capacity {
					return conflict(fmt.Sprintf("hour %02d:00 already holds %d bookings", unit.Hour, unit.HoursBooked))
				}
				continue
			}
			if unit.HoursBooked > 0 {
				return conflict(fmt.Sprintf("hour %02d:00 is booked and cannot be closed", unit.Hour))
			}
			if unit.IsOpen {
				closing = append(closing, unit.Hour)
			}
		}
		if err := s.store.Close(ctx, exec, tutorID, date, closing, now); err != nil {
			return err
		}
		return s.store.UpsertOpen(ctx, exec, tutorID, date, hours, capacity, true, now)
	})
	if err != nil {
		return nil, mapSchedulingError(err, "availability not found", "failed to publish availability")
	}

	s.Invalidate(ctx, tutorID, date)
	units, err := s.store.ListDay(ctx, tutorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	return units, nil
}

// Withdraw closes a range of hours. Hours holding bookings make the whole call fail.
func (s *AvailabilityService) Withdraw(ctx context.Context, tutorID string, req dto.WithdrawAvailabilityRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return err
	}
	hours := models.HourRange{From: req.FromHour, To: req.ToHour}
	now := s.clock.Now()

	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		units, err := s.store.LockDay(ctx, exec, tutorID, date)
		if err != nil {
			return err
		}
		closing := make([]int, 0, hours.Len())
		for _, unit := range units {
			if !hours.Contains(unit.Hour) {
				continue
			}
			if unit.HoursBooked > 0 {
				return conflict(fmt.Sprintf("hour %02d:00 is booked and cannot be withdrawn", unit.Hour))
			}
			closing = append(closing, unit.Hour)
		}
		return s.store.Close(ctx, exec, tutorID, date, closing, now)
	})
	if err != nil {
		return mapSchedulingError(err, "availability not found", "failed to withdraw availability")
	}
	s.Invalidate(ctx, tutorID, date)
	return nil
}

// AvailableHours lazily yields bookable units between from and to (inclusive dates)
// in (date, hour) order. Each range over the sequence starts again from the beginning.
func (s *AvailabilityService) AvailableHours(ctx context.Context, tutorID string, from, to time.Time) iter.Seq2[models.AvailabilityUnit, error] {
	from, to = models.TruncateDate(from), models.TruncateDate(to)
	return func(yield func(models.AvailabilityUnit, error) bool) {
		afterDate, afterHour := from, -1
		for {
			page, err := s.store.ListOpenPage(ctx, tutorID, from, to, afterDate, afterHour, s.cfg.PageSize)
			if err != nil {
				yield(models.AvailabilityUnit{}, err)
				return
			}
			for _, unit := range page {
				if !yield(unit, nil) {
					return
				}
			}
			if len(page) < s.cfg.PageSize {
				return
			}
			last := page[len(page)-1]
			afterDate, afterHour = last.Date, last.Hour
		}
	}
}

// QueryAvailability collects the bookable units of a date window.
func (s *AvailabilityService) QueryAvailability(ctx context.Context, tutorID string, query dto.AvailabilityQuery) ([]models.AvailabilityUnit, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability query")
	}
	from, err := parseDate(query.From)
	if err != nil {
		return nil, err
	}
	to, err := parseDate(query.To)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	if to.Sub(from) > maxAvailabilityQueryDays*24*time.Hour {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("date window cannot exceed %d days", maxAvailabilityQueryDays))
	}

	units := make([]models.AvailabilityUnit, 0)
	for unit, err := range s.AvailableHours(ctx, tutorID, from, to) {
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
		}
		units = append(units, unit)
	}
	return units, nil
}

// Blocks returns the coarse half-day view of a tutor date, served from cache when possible.
func (s *AvailabilityService) Blocks(ctx context.Context, tutorID, rawDate string) ([]models.AvailabilityBlock, error) {
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, err
	}

	key := blocksCacheKey(tutorID, date)
	var cached []models.AvailabilityBlock
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	units, err := s.store.ListDay(ctx, tutorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	blocks := BuildBlocks(tutorID, date, units, s.cfg.BlockStarts, s.cfg.BlockHours)
	_ = s.cache.Set(ctx, key, blocks, s.cfg.CacheTTL)
	return blocks, nil
}

// Invalidate drops the cached block view of a tutor date. Failures are logged by the cache.
func (s *AvailabilityService) Invalidate(ctx context.Context, tutorID string, date time.Time) {
	_ = s.cache.Invalidate(ctx, blocksCacheKey(tutorID, date))
}

// BuildBlocks aggregates per-hour units into fixed blocks. Capacity is the number of
// hours in the block, HoursBooked counts hours with at least one booking and OpenHours
// lists hours that can still take a booking.
func BuildBlocks(tutorID string, date time.Time, units []models.AvailabilityUnit, starts []int, length int) []models.AvailabilityBlock {
	byHour := make(map[int]models.AvailabilityUnit, len(units))
	for _, unit := range units {
		byHour[unit.Hour] = unit
	}
	ordered := append([]int(nil), starts...)
	sort.Ints(ordered)

	blocks := make([]models.AvailabilityBlock, 0, len(ordered))
	for _, start := range ordered {
		end := start + length
		if end > 24 {
			end = 24
		}
		block := models.AvailabilityBlock{
			TutorID:   tutorID,
			Date:      date,
			StartHour: start,
			EndHour:   end,
			Capacity:  end - start,
			OpenHours: []int{},
		}
		for hour := start; hour < end; hour++ {
			unit, ok := byHour[hour]
			if !ok {
				continue
			}
			if unit.HoursBooked > 0 {
				block.HoursBooked++
			}
			if unit.Bookable() {
				block.OpenHours = append(block.OpenHours, hour)
			}
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func (s *AvailabilityService) parseFutureDate(raw string) (time.Time, error) {
	date, err := parseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	today := models.TruncateDate(s.clock.Now().In(s.cfg.Location))
	if date.Before(today) {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "cannot publish availability in the past")
	}
	return date, nil
}

func blocksCacheKey(tutorID string, date time.Time) string {
	return fmt.Sprintf("availability:blocks:%s:%s", tutorID, date.Format(models.DateLayout))
}

func parseDate(raw string) (time.Time, error) {
	date, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date, expected YYYY-MM-DD")
	}
	return date, nil
}

func conflict(message string) error {
	return appErrors.Clone(appErrors.ErrConflict, message)
}
