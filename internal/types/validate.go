package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the worker's field values.
func (w *Worker) Validate() error { return check("worker", w) }

// Validate checks the site's field values.
func (s *Site) Validate() error { return check("site", s) }

// Validate checks the time entry's field values.
func (e *TimeEntry) Validate() error { return check("time entry", e) }

// Validate checks the payment's field values.
func (p *Payment) Validate() error { return check("payment", p) }

// SetDefaults fills optional fields that have a natural default.
func (w *Worker) SetDefaults() {
	if w.Status == "" {
		w.Status = WorkerActive
	}
}

// SetDefaults fills optional fields that have a natural default.
func (s *Site) SetDefaults() {
	if s.Status == "" {
		s.Status = SiteActive
	}
}

// SetDefaults fills the status and derives TotalHours from the clock
// readings when it was left at zero.
func (e *TimeEntry) SetDefaults() {
	if e.Status == "" {
		e.Status = EntryPending
	}
	if e.TotalHours == 0 && e.StartTime != "" && e.EndTime != "" {
		if h, err := HoursBetween(e.StartTime, e.EndTime); err == nil {
			e.TotalHours = h
		}
	}
}

// SetDefaults fills the status and derives TotalAmount when it was left at
// zero.
func (p *Payment) SetDefaults() {
	if p.Status == "" {
		p.Status = PaymentDue
	}
	if p.TotalAmount == 0 {
		p.TotalAmount = (p.Hours + p.Overtime) * p.HourlyRate
	}
}

func check(kind string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid %s: %w", kind, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid %s: %s", kind, strings.Join(msgs, "; "))
}
