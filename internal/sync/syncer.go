package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"time"

	"github.com/edilcheck/edilcheck/internal/types"
)

// syncer implements the Syncer interface.
type syncer struct {
	local  LocalStore
	remote RemoteStore
	logger *log.Logger
	now    func() time.Time

	running stdsync.Mutex

	mu        stdsync.RWMutex
	status    Status
	lastSync  time.Time
	lastErr   error
	observers map[int]Observer
	nextObs   int
}

// New creates a new Syncer instance.
//
// If logger is nil, a default logger writing to stderr is used.
//
// Example:
//
//	store, err := localdb.Open(path)
//	if err != nil {
//	    return err
//	}
//	client := remote.New(host, port)
//	client.SetCredentials(email, password)
//	syncer := sync.New(store, client, nil)
func New(local LocalStore, remote RemoteStore, logger *log.Logger) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{
		local:     local,
		remote:    remote,
		logger:    logger,
		now:       time.Now,
		status:    StatusIdle,
		observers: make(map[int]Observer),
	}
}

// Sync implements Syncer.Sync.
func (s *syncer) Sync(ctx context.Context, account string) (*Result, error) {
	if !s.running.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.running.Unlock()

	start := s.now()
	s.setStatus(account, StatusSyncing, nil, nil)
	s.logger.Printf("Starting sync for %s", account)

	if !s.remote.TestConnection(ctx) {
		s.fail(account, ErrRemoteUnavailable)
		return nil, ErrRemoteUnavailable
	}

	result := &Result{
		Collections: make(map[string]CollectionResult, 4),
		StartedAt:   start,
	}

	steps := []struct {
		name string
		run  func(context.Context, string) (CollectionResult, error)
	}{
		{"workers", s.syncWorkers},
		{"sites", s.syncSites},
		{"timeEntries", s.syncTimeEntries},
		{"payments", s.syncPayments},
	}

	for _, step := range steps {
		cr, err := step.run(ctx, account)
		if err != nil {
			err = fmt.Errorf("failed to sync %s: %w", step.name, err)
			s.fail(account, err)
			return nil, err
		}
		result.Collections[step.name] = cr
		result.LocalToRemote += cr.Created + cr.Updated
		result.RemoteToLocal += cr.Pulled + cr.PulledUpdated
		result.Failed += cr.Failed
	}

	end := s.now()
	result.Duration = end.Sub(start)

	s.mu.Lock()
	s.lastSync = end
	s.lastErr = nil
	s.mu.Unlock()
	s.setStatus(account, StatusSuccess, result, nil)

	s.logger.Printf("Sync complete for %s: pushed=%d pulled=%d failed=%d (%s)",
		account, result.LocalToRemote, result.RemoteToLocal, result.Failed, result.Duration.Round(time.Millisecond))

	return result, nil
}

func (s *syncer) syncWorkers(ctx context.Context, account string) (CollectionResult, error) {
	return reconcile(ctx, collection[types.Worker]{
		name:      "worker",
		key:       types.WorkerKey,
		id:        func(w types.Worker) int64 { return w.ID },
		createdAt: func(w types.Worker) time.Time { return w.CreatedAt },
		listLocal: func(ctx context.Context) ([]types.Worker, error) {
			return s.local.Workers(ctx, account)
		},
		listRemote: s.remote.Workers,
		pushCreate: func(ctx context.Context, w types.Worker) error {
			_, err := s.remote.CreateWorker(ctx, w)
			return err
		},
		pushUpdate: func(ctx context.Context, id int64, w types.Worker) error {
			_, err := s.remote.UpdateWorker(ctx, id, w)
			return err
		},
		pullCreate: func(ctx context.Context, w types.Worker) error {
			_, err := s.local.ImportWorker(ctx, account, w)
			return err
		},
		pullUpdate: func(ctx context.Context, id int64, w types.Worker) error {
			_, err := s.local.ReplaceWorker(ctx, account, id, w)
			return err
		},
	}, s.logger)
}

func (s *syncer) syncSites(ctx context.Context, account string) (CollectionResult, error) {
	return reconcile(ctx, collection[types.Site]{
		name:      "site",
		key:       types.SiteKey,
		id:        func(st types.Site) int64 { return st.ID },
		createdAt: func(st types.Site) time.Time { return st.CreatedAt },
		listLocal: func(ctx context.Context) ([]types.Site, error) {
			return s.local.Sites(ctx, account)
		},
		listRemote: s.remote.Sites,
		pushCreate: func(ctx context.Context, st types.Site) error {
			_, err := s.remote.CreateSite(ctx, st)
			return err
		},
		pushUpdate: func(ctx context.Context, id int64, st types.Site) error {
			_, err := s.remote.UpdateSite(ctx, id, st)
			return err
		},
		pullCreate: func(ctx context.Context, st types.Site) error {
			_, err := s.local.ImportSite(ctx, account, st)
			return err
		},
		pullUpdate: func(ctx context.Context, id int64, st types.Site) error {
			_, err := s.local.ReplaceSite(ctx, account, id, st)
			return err
		},
	}, s.logger)
}

func (s *syncer) syncTimeEntries(ctx context.Context, account string) (CollectionResult, error) {
	return reconcile(ctx, collection[types.TimeEntry]{
		name:      "time entry",
		key:       types.TimeEntryKey,
		id:        func(e types.TimeEntry) int64 { return e.ID },
		createdAt: func(e types.TimeEntry) time.Time { return e.CreatedAt },
		listLocal: func(ctx context.Context) ([]types.TimeEntry, error) {
			views, err := s.local.TimeEntries(ctx, account)
			if err != nil {
				return nil, err
			}
			out := make([]types.TimeEntry, len(views))
			for i, v := range views {
				out[i] = v.TimeEntry
			}
			return out, nil
		},
		listRemote: s.remote.TimeEntries,
		pushCreate: func(ctx context.Context, e types.TimeEntry) error {
			_, err := s.remote.CreateTimeEntry(ctx, e)
			return err
		},
		pushUpdate: func(ctx context.Context, id int64, e types.TimeEntry) error {
			_, err := s.remote.UpdateTimeEntry(ctx, id, e)
			return err
		},
		pullCreate: func(ctx context.Context, e types.TimeEntry) error {
			view, err := s.local.ImportTimeEntry(ctx, account, e)
			if err != nil {
				return err
			}
			// Views join names by id; an empty name means a dangling id.
			if view.WorkerName == "" || view.SiteName == "" {
				s.logger.Printf("WARNING: Pulled time entry %q refers to worker %d and site %d, not both present locally",
					types.TimeEntryKey(e), e.WorkerID, e.SiteID)
			}
			return nil
		},
		pullUpdate: func(ctx context.Context, id int64, e types.TimeEntry) error {
			_, err := s.local.ReplaceTimeEntry(ctx, account, id, e)
			return err
		},
	}, s.logger)
}

func (s *syncer) syncPayments(ctx context.Context, account string) (CollectionResult, error) {
	return reconcile(ctx, collection[types.Payment]{
		name:      "payment",
		key:       types.PaymentKey,
		id:        func(p types.Payment) int64 { return p.ID },
		createdAt: func(p types.Payment) time.Time { return p.CreatedAt },
		listLocal: func(ctx context.Context) ([]types.Payment, error) {
			views, err := s.local.Payments(ctx, account)
			if err != nil {
				return nil, err
			}
			out := make([]types.Payment, len(views))
			for i, v := range views {
				out[i] = v.Payment
			}
			return out, nil
		},
		listRemote: s.remote.Payments,
		pushCreate: func(ctx context.Context, p types.Payment) error {
			_, err := s.remote.CreatePayment(ctx, p)
			return err
		},
		pushUpdate: func(ctx context.Context, id int64, p types.Payment) error {
			_, err := s.remote.UpdatePayment(ctx, id, p)
			return err
		},
		pullCreate: func(ctx context.Context, p types.Payment) error {
			view, err := s.local.ImportPayment(ctx, account, p)
			if err != nil {
				return err
			}
			if view.WorkerName == "" {
				s.logger.Printf("WARNING: Pulled payment %q refers to worker %d, not present locally",
					types.PaymentKey(p), p.WorkerID)
			}
			return nil
		},
		pullUpdate: func(ctx context.Context, id int64, p types.Payment) error {
			_, err := s.local.ReplacePayment(ctx, account, id, p)
			return err
		},
	}, s.logger)
}

// Status implements Syncer.Status.
func (s *syncer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastSync implements Syncer.LastSync.
func (s *syncer) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// LastError implements Syncer.LastError.
func (s *syncer) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Subscribe implements Syncer.Subscribe.
func (s *syncer) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *syncer) fail(account string, err error) {
	s.logger.Printf("ERROR: Sync failed for %s: %v", account, err)
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.setStatus(account, StatusError, nil, err)
}

// setStatus records the new status and notifies observers outside the lock.
func (s *syncer) setStatus(account string, status Status, result *Result, err error) {
	s.mu.Lock()
	s.status = status
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	ev := Event{
		Account: account,
		Status:  status,
		Result:  result,
		Time:    s.now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	for _, fn := range observers {
		fn(ev)
	}
}
