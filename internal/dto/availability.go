package dto

// PublishAvailabilityRequest opens a range of hours on one date.
// Replace narrows the day to exactly this range and capacity.
type PublishAvailabilityRequest struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	FromHour int    `json:"from_hour" validate:"min=0,max=23"`
	ToHour   int    `json:"to_hour" validate:"min=1,max=24,gtfield=FromHour"`
	Capacity int    `json:"capacity" validate:"omitempty,min=1,max=8"`
	Replace  bool   `json:"replace"`
}

// WithdrawAvailabilityRequest closes a range of hours on one date.
type WithdrawAvailabilityRequest struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	FromHour int    `json:"from_hour" validate:"min=0,max=23"`
	ToHour   int    `json:"to_hour" validate:"min=1,max=24,gtfield=FromHour"`
}

// AvailabilityQuery is the date window of an availability lookup.
type AvailabilityQuery struct {
	From string `form:"from" validate:"required,datetime=2006-01-02"`
	To   string `form:"to" validate:"required,datetime=2006-01-02"`
}
