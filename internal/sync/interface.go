package sync

import (
	"context"
	"errors"
	"time"

	"github.com/edilcheck/edilcheck/internal/types"
)

var (
	// ErrRemoteUnavailable is returned when the server fails its health
	// check before a pass starts.
	ErrRemoteUnavailable = errors.New("backup server unavailable")

	// ErrSyncInProgress is returned when Sync is called while a pass is
	// already running.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Status is the state of the syncer as seen by observers.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
	StatusSuccess Status = "success"
)

// Result aggregates one pass.
type Result struct {
	LocalToRemote int `json:"localToRemote"`
	RemoteToLocal int `json:"remoteToLocal"`
	// Conflicts is never incremented: every divergence is settled by
	// created_at.
	Conflicts   int                          `json:"conflicts"`
	Failed      int                          `json:"failed"`
	Collections map[string]CollectionResult `json:"collections"`
	StartedAt   time.Time                    `json:"startedAt"`
	Duration    time.Duration                `json:"duration"`
}

// CollectionResult holds the counters of one collection.
type CollectionResult struct {
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Pulled        int `json:"pulled"`
	PulledUpdated int `json:"pulledUpdated"`
	Failed        int `json:"failed"`
}

// Event is delivered to observers on every status change.
type Event struct {
	Account string    `json:"account"`
	Status  Status    `json:"status"`
	Result  *Result   `json:"result,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// Observer receives status events.
type Observer func(Event)

// Syncer reconciles the local store with the backup server.
type Syncer interface {
	// Sync runs one bidirectional pass for account.
	//
	// Returns ErrRemoteUnavailable if the server does not answer its health
	// check, ErrSyncInProgress if another pass is running, or the error of
	// a collection that could not be listed. Failures of single records do
	// not fail the pass; they are counted in Result.Failed.
	//
	// Example:
	//   result, err := syncer.Sync(ctx, "demo@edilcheck.it")
	Sync(ctx context.Context, account string) (*Result, error)

	// Status returns the current state.
	Status() Status

	// LastSync returns the end time of the last successful pass, or the
	// zero time.
	LastSync() time.Time

	// LastError returns the error of the last failed pass, or nil.
	LastError() error

	// Subscribe registers fn for status events and returns a function that
	// removes it.
	Subscribe(fn Observer) (unsubscribe func())
}

// LocalStore is the subset of the local store a pass needs.
type LocalStore interface {
	Workers(ctx context.Context, account string) ([]types.Worker, error)
	ImportWorker(ctx context.Context, account string, w types.Worker) (*types.Worker, error)
	ReplaceWorker(ctx context.Context, account string, id int64, w types.Worker) (*types.Worker, error)

	Sites(ctx context.Context, account string) ([]types.Site, error)
	ImportSite(ctx context.Context, account string, s types.Site) (*types.Site, error)
	ReplaceSite(ctx context.Context, account string, id int64, s types.Site) (*types.Site, error)

	TimeEntries(ctx context.Context, account string) ([]types.TimeEntryView, error)
	ImportTimeEntry(ctx context.Context, account string, e types.TimeEntry) (*types.TimeEntryView, error)
	ReplaceTimeEntry(ctx context.Context, account string, id int64, e types.TimeEntry) (*types.TimeEntryView, error)

	Payments(ctx context.Context, account string) ([]types.PaymentView, error)
	ImportPayment(ctx context.Context, account string, p types.Payment) (*types.PaymentView, error)
	ReplacePayment(ctx context.Context, account string, id int64, p types.Payment) (*types.PaymentView, error)
}

// RemoteStore is the subset of the remote client a pass needs. The account
// is implied by the client's credentials.
type RemoteStore interface {
	TestConnection(ctx context.Context) bool

	Workers(ctx context.Context) ([]types.Worker, error)
	CreateWorker(ctx context.Context, w types.Worker) (*types.Worker, error)
	UpdateWorker(ctx context.Context, id int64, w types.Worker) (*types.Worker, error)

	Sites(ctx context.Context) ([]types.Site, error)
	CreateSite(ctx context.Context, s types.Site) (*types.Site, error)
	UpdateSite(ctx context.Context, id int64, s types.Site) (*types.Site, error)

	TimeEntries(ctx context.Context) ([]types.TimeEntry, error)
	CreateTimeEntry(ctx context.Context, e types.TimeEntry) (*types.TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, id int64, e types.TimeEntry) (*types.TimeEntry, error)

	Payments(ctx context.Context) ([]types.Payment, error)
	CreatePayment(ctx context.Context, p types.Payment) (*types.Payment, error)
	UpdatePayment(ctx context.Context, id int64, p types.Payment) (*types.Payment, error)
}
