package types

// WorkerPatch holds the worker fields to change; nil fields are left alone.
type WorkerPatch struct {
	Name       *string       `json:"name,omitempty"`
	Role       *string       `json:"role,omitempty"`
	Phone      *string       `json:"phone,omitempty"`
	Email      *string       `json:"email,omitempty"`
	Status     *WorkerStatus `json:"status,omitempty"`
	HourlyRate *float64      `json:"hourlyRate,omitempty"`
}

// Apply merges the patch into w.
func (p WorkerPatch) Apply(w *Worker) {
	set(&w.Name, p.Name)
	set(&w.Role, p.Role)
	set(&w.Phone, p.Phone)
	set(&w.Email, p.Email)
	set(&w.Status, p.Status)
	set(&w.HourlyRate, p.HourlyRate)
}

// SitePatch holds the site fields to change.
type SitePatch struct {
	Name         *string     `json:"name,omitempty"`
	Owner        *string     `json:"owner,omitempty"`
	Address      *string     `json:"address,omitempty"`
	Status       *SiteStatus `json:"status,omitempty"`
	StartDate    *string     `json:"startDate,omitempty"`
	EstimatedEnd *string     `json:"estimatedEnd,omitempty"`
}

// Apply merges the patch into s.
func (p SitePatch) Apply(s *Site) {
	set(&s.Name, p.Name)
	set(&s.Owner, p.Owner)
	set(&s.Address, p.Address)
	set(&s.Status, p.Status)
	set(&s.StartDate, p.StartDate)
	set(&s.EstimatedEnd, p.EstimatedEnd)
}

// TimeEntryPatch holds the time entry fields to change.
type TimeEntryPatch struct {
	WorkerID   *int64       `json:"workerId,omitempty"`
	SiteID     *int64       `json:"siteId,omitempty"`
	Date       *string      `json:"date,omitempty"`
	StartTime  *string      `json:"startTime,omitempty"`
	EndTime    *string      `json:"endTime,omitempty"`
	TotalHours *float64     `json:"totalHours,omitempty"`
	Status     *EntryStatus `json:"status,omitempty"`
}

// Apply merges the patch into e.
func (p TimeEntryPatch) Apply(e *TimeEntry) {
	set(&e.WorkerID, p.WorkerID)
	set(&e.SiteID, p.SiteID)
	set(&e.Date, p.Date)
	set(&e.StartTime, p.StartTime)
	set(&e.EndTime, p.EndTime)
	set(&e.TotalHours, p.TotalHours)
	set(&e.Status, p.Status)
}

// PaymentPatch holds the payment fields to change.
type PaymentPatch struct {
	WorkerID    *int64         `json:"workerId,omitempty"`
	Week        *string        `json:"week,omitempty"`
	Hours       *float64       `json:"hours,omitempty"`
	HourlyRate  *float64       `json:"hourlyRate,omitempty"`
	TotalAmount *float64       `json:"totalAmount,omitempty"`
	Overtime    *float64       `json:"overtime,omitempty"`
	Status      *PaymentStatus `json:"status,omitempty"`
	PaidDate    *string        `json:"paidDate,omitempty"`
	Method      *string        `json:"method,omitempty"`
}

// Apply merges the patch into pay.
func (p PaymentPatch) Apply(pay *Payment) {
	set(&pay.WorkerID, p.WorkerID)
	set(&pay.Week, p.Week)
	set(&pay.Hours, p.Hours)
	set(&pay.HourlyRate, p.HourlyRate)
	set(&pay.TotalAmount, p.TotalAmount)
	set(&pay.Overtime, p.Overtime)
	set(&pay.Status, p.Status)
	set(&pay.PaidDate, p.PaidDate)
	set(&pay.Method, p.Method)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
