package models

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// HourRange is a half-open range of hours of day [From, To).
type HourRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Validate ensures the range lies inside a single day and is non-empty.
func (r HourRange) Validate() error {
	if r.From < 0 || r.To > 24 || r.From >= r.To {
		return fmt.Errorf("invalid hour range %d-%d", r.From, r.To)
	}
	return nil
}

// Len returns the number of hours covered.
func (r HourRange) Len() int {
	if r.To <= r.From {
		return 0
	}
	return r.To - r.From
}

// Hours lists the covered hours in ascending order.
func (r HourRange) Hours() []int {
	hours := make([]int, 0, r.Len())
	for h := r.From; h < r.To; h++ {
		hours = append(hours, h)
	}
	return hours
}

// Contains reports whether hour falls inside the range.
func (r HourRange) Contains(hour int) bool {
	return hour >= r.From && hour < r.To
}

// AvailabilityUnit is one bookable tutor hour.
type AvailabilityUnit struct {
	TutorID     string    `db:"tutor_id" json:"tutor_id"`
	Date        time.Time `db:"unit_date" json:"date"`
	Hour        int       `db:"hour" json:"hour"`
	IsOpen      bool      `db:"is_open" json:"is_open"`
	HoursBooked int       `db:"hours_booked" json:"hours_booked"`
	Capacity    int       `db:"capacity" json:"capacity"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Full reports whether every hour of capacity is booked.
func (u AvailabilityUnit) Full() bool {
	return u.HoursBooked >= u.Capacity
}

// Bookable reports whether one more booking fits.
func (u AvailabilityUnit) Bookable() bool {
	return u.IsOpen && !u.Full()
}

// AvailabilityBlock is the coarse half-day view over contiguous units.
type AvailabilityBlock struct {
	TutorID     string    `json:"tutor_id"`
	Date        time.Time `json:"date"`
	StartHour   int       `json:"start_hour"`
	EndHour     int       `json:"end_hour"`
	Capacity    int       `json:"capacity"`
	HoursBooked int       `json:"hours_booked"`
	OpenHours   []int     `json:"open_hours"`
}

// Remaining reports how many hours are still bookable in the block.
func (b AvailabilityBlock) Remaining() int {
	if b.HoursBooked >= b.Capacity {
		return 0
	}
	return b.Capacity - b.HoursBooked
}

// TruncateDate drops the clock part of t keeping its calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
