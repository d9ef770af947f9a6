package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lingo-tutor-api/internal/events"
	"github.com/noah-isme/lingo-tutor-api/internal/models"
	"github.com/noah-isme/lingo-tutor-api/internal/repository"
	appErrors "github.com/noah-isme/lingo-tutor-api/pkg/errors"
)

// memoryDB is an in-memory stand-in for the scheduling tables. WithinTx holds the
// mutex for the whole unit of work and restores a snapshot on error, which gives
// the same all-or-nothing and serialized behaviour as row locks in PostgreSQL.
type memoryDB struct {
	mu          sync.Mutex
	units       map[unitKey]models.AvailabilityUnit
	assignments map[string]models.PackageAssignment
	entries     []models.LedgerEntry
	lessons     map[string]models.Lesson
	history     []models.LessonStatusHistory
	commits     int
}

type unitKey struct {
	tutorID string
	date    string
	hour    int
}

type memorySnapshot struct {
	units       map[unitKey]models.AvailabilityUnit
	assignments map[string]models.PackageAssignment
	entries     []models.LedgerEntry
	lessons     map[string]models.Lesson
	history     []models.LessonStatusHistory
}

// memExec marks calls made inside WithinTx; it is never dereferenced.
type memExec struct {
	sqlx.ExtContext
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		units:       map[unitKey]models.AvailabilityUnit{},
		assignments: map[string]models.PackageAssignment{},
		lessons:     map[string]models.Lesson{},
	}
}

func (db *memoryDB) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	snap := db.snapshot()
	if err := fn(&memExec{}); err != nil {
		db.restore(snap)
		return err
	}
	db.commits++
	return nil
}

func (db *memoryDB) snapshot() memorySnapshot {
	snap := memorySnapshot{
		units:       make(map[unitKey]models.AvailabilityUnit, len(db.units)),
		assignments: make(map[string]models.PackageAssignment, len(db.assignments)),
		entries:     append([]models.LedgerEntry(nil), db.entries...),
		lessons:     make(map[string]models.Lesson, len(db.lessons)),
		history:     append([]models.LessonStatusHistory(nil), db.history...),
	}
	for k, v := range db.units {
		snap.units[k] = v
	}
	for k, v := range db.assignments {
		snap.assignments[k] = v
	}
	for k, v := range db.lessons {
		snap.lessons[k] = v
	}
	return snap
}

func (db *memoryDB) restore(snap memorySnapshot) {
	db.units = snap.units
	db.assignments = snap.assignments
	db.entries = snap.entries
	db.lessons = snap.lessons
	db.history = snap.history
}

// lock acquires the mutex for calls made outside a transaction.
func (db *memoryDB) lock(exec sqlx.ExtContext) func() {
	if exec != nil {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

func (db *memoryDB) unit(tutorID string, date time.Time, hour int) (models.AvailabilityUnit, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, ok := db.units[unitKey{tutorID, date.Format(models.DateLayout), hour}]
	return u, ok
}

func (db *memoryDB) assignment(id string) models.PackageAssignment {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.assignments[id]
}

func (db *memoryDB) putAssignment(a models.PackageAssignment) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.assignments[a.ID] = a
}

func (db *memoryDB) historyCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.history)
}

func (db *memoryDB) lessonCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.lessons)
}

type memUnits struct{ db *memoryDB }

func (m memUnits) dayUnits(tutorID string, date time.Time, hours models.HourRange) []models.AvailabilityUnit {
	var units []models.AvailabilityUnit
	for k, u := range m.db.units {
		if k.tutorID == tutorID && k.date == date.Format(models.DateLayout) && hours.Contains(k.hour) {
			units = append(units, u)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Hour < units[j].Hour })
	return units
}

func (m memUnits) LockDay(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time) ([]models.AvailabilityUnit, error) {
	defer m.db.lock(exec)()
	return m.dayUnits(tutorID, date, models.HourRange{From: 0, To: 24}), nil
}

func (m memUnits) Reserve(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours models.HourRange, now time.Time) error {
	defer m.db.lock(exec)()
	if err := repository.CheckReservable(m.dayUnits(tutorID, date, hours), hours); err != nil {
		return err
	}
	for _, h := range hours.Hours() {
		key := unitKey{tutorID, date.Format(models.DateLayout), h}
		u := m.db.units[key]
		u.HoursBooked++
		u.IsOpen = u.HoursBooked < u.Capacity
		u.UpdatedAt = now
		m.db.units[key] = u
	}
	return nil
}

func (m memUnits) Release(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours models.HourRange, now time.Time) (int64, error) {
	defer m.db.lock(exec)()
	var released int64
	for _, h := range hours.Hours() {
		key := unitKey{tutorID, date.Format(models.DateLayout), h}
		u, ok := m.db.units[key]
		if !ok || u.HoursBooked == 0 {
			continue
		}
		u.HoursBooked--
		u.IsOpen = true
		u.UpdatedAt = now
		m.db.units[key] = u
		released++
	}
	return released, nil
}

func (m memUnits) UpsertOpen(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours models.HourRange, capacity int, exact bool, now time.Time) error {
	defer m.db.lock(exec)()
	for _, h := range hours.Hours() {
		key := unitKey{tutorID, date.Format(models.DateLayout), h}
		u, ok := m.db.units[key]
		if !ok {
			u = models.AvailabilityUnit{TutorID: tutorID, Date: date, Hour: h, Capacity: capacity, CreatedAt: now}
		} else if exact || capacity > u.Capacity {
			u.Capacity = capacity
		}
		u.IsOpen = u.HoursBooked < u.Capacity
		u.UpdatedAt = now
		m.db.units[key] = u
	}
	return nil
}

func (m memUnits) Close(ctx context.Context, exec sqlx.ExtContext, tutorID string, date time.Time, hours []int, now time.Time) error {
	defer m.db.lock(exec)()
	for _, h := range hours {
		key := unitKey{tutorID, date.Format(models.DateLayout), h}
		if u, ok := m.db.units[key]; ok {
			u.IsOpen = false
			u.UpdatedAt = now
			m.db.units[key] = u
		}
	}
	return nil
}

func (m memUnits) ListOpenPage(ctx context.Context, tutorID string, from, to, afterDate time.Time, afterHour, limit int) ([]models.AvailabilityUnit, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var units []models.AvailabilityUnit
	for k, u := range m.db.units {
		if k.tutorID != tutorID || !u.Bookable() || u.Date.Before(from) || u.Date.After(to) {
			continue
		}
		if u.Date.Before(afterDate) || (u.Date.Equal(afterDate) && u.Hour <= afterHour) {
			continue
		}
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool {
		if !units[i].Date.Equal(units[j].Date) {
			return units[i].Date.Before(units[j].Date)
		}
		return units[i].Hour < units[j].Hour
	})
	if len(units) > limit {
		units = units[:limit]
	}
	return units, nil
}

func (m memUnits) ListDay(ctx context.Context, tutorID string, date time.Time) ([]models.AvailabilityUnit, error) {
	return m.LockDay(ctx, nil, tutorID, date)
}

type memLedger struct{ db *memoryDB }

func (m memLedger) Create(ctx context.Context, exec sqlx.ExtContext, a *models.PackageAssignment) error {
	defer m.db.lock(exec)()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.db.assignments[a.ID] = *a
	return nil
}

func (m memLedger) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PackageAssignment, error) {
	defer m.db.lock(exec)()
	a, ok := m.db.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (m memLedger) Debit(ctx context.Context, exec sqlx.ExtContext, id string, hours int, now time.Time) (int, error) {
	defer m.db.lock(exec)()
	a, ok := m.db.assignments[id]
	switch {
	case !ok:
		return 0, sql.ErrNoRows
	case !a.IsActive:
		return 0, repository.ErrAssignmentInactive
	case a.Expired(now):
		return 0, repository.ErrAssignmentExpired
	case a.HoursRemaining < hours:
		return 0, repository.ErrInsufficientHours
	}
	a.HoursRemaining -= hours
	m.db.assignments[id] = a
	return a.HoursRemaining, nil
}

func (m memLedger) Credit(ctx context.Context, exec sqlx.ExtContext, id string, hours int, now time.Time) (int, error) {
	defer m.db.lock(exec)()
	a, ok := m.db.assignments[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	a.HoursRemaining += hours
	m.db.assignments[id] = a
	return a.HoursRemaining, nil
}

func (m memLedger) AppendEntry(ctx context.Context, exec sqlx.ExtContext, entry *models.LedgerEntry) error {
	defer m.db.lock(exec)()
	entry.ID = int64(len(m.db.entries) + 1)
	m.db.entries = append(m.db.entries, *entry)
	return nil
}

func (m memLedger) ListEntries(ctx context.Context, assignmentID string) ([]models.LedgerEntry, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var entries []models.LedgerEntry
	for _, e := range m.db.entries {
		if e.AssignmentID == assignmentID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (m memLedger) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var count int64
	for id, a := range m.db.assignments {
		if a.IsActive && a.Expired(now) {
			a.IsActive = false
			m.db.assignments[id] = a
			count++
		}
	}
	return count, nil
}

type memLessons struct{ db *memoryDB }

func (m memLessons) Create(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	defer m.db.lock(exec)()
	m.db.lessons[lesson.ID] = *lesson
	return nil
}

func (m memLessons) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	return m.FindByIDForUpdate(ctx, nil, id)
}

func (m memLessons) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error) {
	defer m.db.lock(exec)()
	lesson, ok := m.db.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &lesson, nil
}

func (m memLessons) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, update models.LessonStatusUpdate) error {
	defer m.db.lock(exec)()
	lesson, ok := m.db.lessons[update.LessonID]
	if !ok || lesson.Status != update.From {
		return repository.ErrStatusChanged
	}
	applyStatusUpdate(&lesson, update)
	m.db.lessons[lesson.ID] = lesson
	return nil
}

func (m memLessons) UpdateFeedback(ctx context.Context, id string, tutorFeedback, studentFeedback *string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	lesson, ok := m.db.lessons[id]
	if !ok {
		return sql.ErrNoRows
	}
	if tutorFeedback != nil {
		lesson.TutorFeedback = tutorFeedback
	}
	if studentFeedback != nil {
		lesson.StudentFeedback = studentFeedback
	}
	m.db.lessons[id] = lesson
	return nil
}

type memHistory struct{ db *memoryDB }

func (m memHistory) Append(ctx context.Context, exec sqlx.ExtContext, entry *models.LessonStatusHistory) error {
	defer m.db.lock(exec)()
	entry.ID = int64(len(m.db.history) + 1)
	m.db.history = append(m.db.history, *entry)
	return nil
}

func (m memHistory) ListByLesson(ctx context.Context, lessonID string) ([]models.LessonStatusHistory, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var entries []models.LessonStatusHistory
	for _, e := range m.db.history {
		if e.LessonID == lessonID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.LessonEvent
}

func (r *recordingEmitter) Emit(ctx context.Context, event events.LessonEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

type memoryCache struct {
	mu      sync.Mutex
	values  map[string][]byte
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.values, key)
		c.deleted = append(c.deleted, key)
	}
	return nil
}
