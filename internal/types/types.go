// Package types defines the Edil-Check records: workers, job sites, time
// entries and payments, plus the per-account container that holds them.
package types

import (
	"fmt"
	"time"
)

// WorkerStatus is the employment state of a worker.
type WorkerStatus string

const (
	WorkerActive   WorkerStatus = "Attivo"
	WorkerOnLeave  WorkerStatus = "In Permesso"
	WorkerInactive WorkerStatus = "Inattivo"
)

// SiteStatus is the progress state of a job site.
type SiteStatus string

const (
	SiteActive    SiteStatus = "Attivo"
	SitePaused    SiteStatus = "In Pausa"
	SiteCompleted SiteStatus = "Completato"
)

// EntryStatus is the approval state of a time entry.
type EntryStatus string

const (
	EntryConfirmed EntryStatus = "Confermato"
	EntryPending   EntryStatus = "In Attesa"
)

// PaymentStatus is the settlement state of a payment.
type PaymentStatus string

const (
	PaymentDue  PaymentStatus = "Da Pagare"
	PaymentPaid PaymentStatus = "Pagato"
)

// Layouts used by the string date and time fields.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Worker is a crew member.
type Worker struct {
	ID         int64        `json:"id" yaml:"id"`
	Name       string       `json:"name" yaml:"name" validate:"required"`
	Role       string       `json:"role" yaml:"role"`
	Phone      string       `json:"phone" yaml:"phone"`
	Email      string       `json:"email" yaml:"email" validate:"required,email"`
	Status     WorkerStatus `json:"status" yaml:"status" validate:"oneof=Attivo 'In Permesso' Inattivo"`
	HourlyRate float64      `json:"hourlyRate" yaml:"hourlyRate" validate:"gte=0"`
	CreatedAt  time.Time    `json:"created_at" yaml:"created_at"`
}

// Site is a job site.
type Site struct {
	ID           int64      `json:"id" yaml:"id"`
	Name         string     `json:"name" yaml:"name" validate:"required"`
	Owner        string     `json:"owner" yaml:"owner"`
	Address      string     `json:"address" yaml:"address" validate:"required"`
	Status       SiteStatus `json:"status" yaml:"status" validate:"oneof=Attivo 'In Pausa' Completato"`
	StartDate    string     `json:"startDate" yaml:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EstimatedEnd string     `json:"estimatedEnd" yaml:"estimatedEnd" validate:"omitempty,datetime=2006-01-02"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
}

// TimeEntry records the hours a worker spent on a site on one day.
type TimeEntry struct {
	ID         int64       `json:"id" yaml:"id"`
	WorkerID   int64       `json:"workerId" yaml:"workerId" validate:"gt=0"`
	SiteID     int64       `json:"siteId" yaml:"siteId" validate:"gt=0"`
	Date       string      `json:"date" yaml:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string      `json:"startTime" yaml:"startTime" validate:"required,datetime=15:04"`
	EndTime    string      `json:"endTime" yaml:"endTime" validate:"omitempty,datetime=15:04"`
	TotalHours float64     `json:"totalHours" yaml:"totalHours" validate:"gte=0"`
	Status     EntryStatus `json:"status" yaml:"status" validate:"oneof=Confermato 'In Attesa'"`
	CreatedAt  time.Time   `json:"created_at" yaml:"created_at"`
}

// Payment is the weekly pay owed to or settled with a worker.
type Payment struct {
	ID          int64         `json:"id" yaml:"id"`
	WorkerID    int64         `json:"workerId" yaml:"workerId" validate:"gt=0"`
	Week        string        `json:"week" yaml:"week" validate:"required"`
	Hours       float64       `json:"hours" yaml:"hours" validate:"gte=0"`
	HourlyRate  float64       `json:"hourlyRate" yaml:"hourlyRate" validate:"gte=0"`
	TotalAmount float64       `json:"totalAmount" yaml:"totalAmount" validate:"gte=0"`
	Overtime    float64       `json:"overtime" yaml:"overtime" validate:"gte=0"`
	Status      PaymentStatus `json:"status" yaml:"status" validate:"oneof='Da Pagare' Pagato"`
	PaidDate    string        `json:"paidDate" yaml:"paidDate" validate:"omitempty,datetime=2006-01-02"`
	Method      string        `json:"method" yaml:"method"`
	CreatedAt   time.Time     `json:"created_at" yaml:"created_at"`
}

// TimeEntryView is a time entry joined with its worker and site names.
type TimeEntryView struct {
	TimeEntry
	WorkerName string `json:"workerName" yaml:"workerName"`
	SiteName   string `json:"siteName" yaml:"siteName"`
}

// PaymentView is a payment joined with its worker name.
type PaymentView struct {
	Payment
	WorkerName string `json:"workerName" yaml:"workerName"`
}

// Stats is the dashboard summary for one account.
type Stats struct {
	ActiveWorkers   int     `json:"activeWorkers"`
	ActiveSites     int     `json:"activeSites"`
	PendingPayments int     `json:"pendingPayments"`
	TodayHours      float64 `json:"todayHours"`
}

// HoursBetween returns the hours between two HH:MM clock readings on the
// same day.
func HoursBetween(start, end string) (float64, error) {
	s, err := time.Parse(ClockLayout, start)
	if err != nil {
		return 0, fmt.Errorf("invalid start time %q: %w", start, err)
	}
	e, err := time.Parse(ClockLayout, end)
	if err != nil {
		return 0, fmt.Errorf("invalid end time %q: %w", end, err)
	}
	if e.Before(s) {
		return 0, fmt.Errorf("end time %s is before start time %s", end, start)
	}
	return e.Sub(s).Hours(), nil
}
