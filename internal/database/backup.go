package database

import (
	"context"
	"fmt"

	"github.com/edilcheck/edilcheck/internal/remote"
	edilsync "github.com/edilcheck/edilcheck/internal/sync"
	"github.com/edilcheck/edilcheck/internal/types"
)

// RestoreResult counts what a restore wrote locally.
type RestoreResult struct {
	Replaced    bool `json:"replaced"`
	Workers     int  `json:"workers"`
	Sites       int  `json:"sites"`
	TimeEntries int  `json:"timeEntries"`
	Payments    int  `json:"payments"`
	// Skipped counts remote records whose business key already exists
	// locally, or whose worker or site is unknown on both sides.
	Skipped int `json:"skipped"`
}

// Total returns the number of records written.
func (r *RestoreResult) Total() int {
	return r.Workers + r.Sites + r.TimeEntries + r.Payments
}

// Backup overwrites the server copy of the account with the full local
// container.
func (s *Service) Backup(ctx context.Context) error {
	if err := s.requireBackup(); err != nil {
		return err
	}
	if !s.remote.HasCredentials() {
		return remote.ErrCredentialsNotSet
	}

	c, err := s.store.LoadContext(ctx, s.Account())
	if err != nil {
		return fmt.Errorf("failed to load local data: %w", err)
	}
	if err := s.remote.PutBackup(ctx, c); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	counts := c.Counts()
	s.logger.Printf("Backup complete for %s: workers=%d sites=%d timeEntries=%d payments=%d",
		s.Account(), counts["workers"], counts["sites"], counts["timeEntries"], counts["payments"])
	return nil
}

// Restore pulls the server copy of the account. With replace the local
// container is overwritten. Otherwise remote records are merged in: records
// whose business key already exists locally are skipped and worker and
// site references are remapped to local ids.
func (s *Service) Restore(ctx context.Context, replace bool) (*RestoreResult, error) {
	if err := s.requireBackup(); err != nil {
		return nil, err
	}
	if !s.remote.HasCredentials() {
		return nil, remote.ErrCredentialsNotSet
	}

	src, err := s.remote.GetBackup(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to download backup: %w", err)
	}
	src.Normalize()

	account := s.Account()
	if replace {
		if err := s.store.SaveContext(ctx, account, src); err != nil {
			return nil, fmt.Errorf("failed to replace local data: %w", err)
		}
		res := &RestoreResult{
			Replaced:    true,
			Workers:     len(src.Workers),
			Sites:       len(src.Sites),
			TimeEntries: len(src.TimeEntries),
			Payments:    len(src.Payments),
		}
		s.logger.Printf("Restore (replace) complete for %s: %d records", account, res.Total())
		return res, nil
	}

	var res RestoreResult
	err = s.store.Mutate(ctx, account, func(dst *types.Container) error {
		res = merge(dst, src)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to merge backup: %w", err)
	}
	s.logger.Printf("Restore (merge) complete for %s: added=%d skipped=%d", account, res.Total(), res.Skipped)
	return &res, nil
}

// merge adds the records of src that dst lacks. Ids are allocated from dst.
func merge(dst, src *types.Container) RestoreResult {
	var res RestoreResult

	workerIDs := make(map[int64]int64, len(src.Workers))
	workersByKey := make(map[string]int64, len(dst.Workers))
	for _, w := range dst.Workers {
		workersByKey[types.WorkerKey(w)] = w.ID
	}
	for _, w := range src.Workers {
		if id, ok := workersByKey[types.WorkerKey(w)]; ok {
			workerIDs[w.ID] = id
			res.Skipped++
			continue
		}
		old := w.ID
		w.ID = dst.AllocateID()
		dst.Workers = append(dst.Workers, w)
		workersByKey[types.WorkerKey(w)] = w.ID
		workerIDs[old] = w.ID
		res.Workers++
	}

	siteIDs := make(map[int64]int64, len(src.Sites))
	sitesByKey := make(map[string]int64, len(dst.Sites))
	for _, st := range dst.Sites {
		sitesByKey[types.SiteKey(st)] = st.ID
	}
	for _, st := range src.Sites {
		if id, ok := sitesByKey[types.SiteKey(st)]; ok {
			siteIDs[st.ID] = id
			res.Skipped++
			continue
		}
		old := st.ID
		st.ID = dst.AllocateID()
		dst.Sites = append(dst.Sites, st)
		sitesByKey[types.SiteKey(st)] = st.ID
		siteIDs[old] = st.ID
		res.Sites++
	}

	entryKeys := make(map[string]bool, len(dst.TimeEntries))
	for _, e := range dst.TimeEntries {
		entryKeys[types.TimeEntryKey(e)] = true
	}
	for _, e := range src.TimeEntries {
		wid, wok := workerIDs[e.WorkerID]
		sid, sok := siteIDs[e.SiteID]
		if !wok || !sok {
			res.Skipped++
			continue
		}
		e.WorkerID, e.SiteID = wid, sid
		if entryKeys[types.TimeEntryKey(e)] {
			res.Skipped++
			continue
		}
		e.ID = dst.AllocateID()
		dst.TimeEntries = append(dst.TimeEntries, e)
		entryKeys[types.TimeEntryKey(e)] = true
		res.TimeEntries++
	}

	paymentKeys := make(map[string]bool, len(dst.Payments))
	for _, p := range dst.Payments {
		paymentKeys[types.PaymentKey(p)] = true
	}
	for _, p := range src.Payments {
		wid, ok := workerIDs[p.WorkerID]
		if !ok {
			res.Skipped++
			continue
		}
		p.WorkerID = wid
		if paymentKeys[types.PaymentKey(p)] {
			res.Skipped++
			continue
		}
		p.ID = dst.AllocateID()
		dst.Payments = append(dst.Payments, p)
		paymentKeys[types.PaymentKey(p)] = true
		res.Payments++
	}

	return res
}

// Sync runs one reconciliation pass for the current account.
func (s *Service) Sync(ctx context.Context) (*edilsync.Result, error) {
	if err := s.requireBackup(); err != nil {
		return nil, err
	}
	if !s.remote.HasCredentials() {
		return nil, remote.ErrCredentialsNotSet
	}
	return s.syncer.Sync(ctx, s.Account())
}
