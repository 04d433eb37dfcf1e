package localdb

import (
	"context"
	"fmt"

	"github.com/edilcheck/edilcheck/internal/types"
)

// Workers returns every worker of account.
func (db *DB) Workers(ctx context.Context, account string) ([]types.Worker, error) {
	var out []types.Worker
	err := db.view(ctx, account, func(c *types.Container) { out = c.Workers })
	return out, err
}

// AddWorker stores a new worker with the next id and the current time as
// created_at.
func (db *DB) AddWorker(ctx context.Context, account string, w types.Worker) (*types.Worker, error) {
	w.SetDefaults()
	if err := w.Validate(); err != nil {
		return nil, err
	}

	err := db.mutate(ctx, account, func(c *types.Container) error {
		if err := checkWorkerKey(c, w); err != nil {
			return err
		}
		w.ID = c.AllocateID()
		w.CreatedAt = db.now()
		c.Workers = append(c.Workers, w)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add worker: %w", err)
	}
	return &w, nil
}

// UpdateWorker merges patch into the worker with the given id. It fails
// with ErrNotFound when there is no such worker.
func (db *DB) UpdateWorker(ctx context.Context, account string, id int64, patch types.WorkerPatch) (*types.Worker, error) {
	var out types.Worker
	err := db.mutate(ctx, account, func(c *types.Container) error {
		i := c.WorkerIndex(id)
		if i < 0 {
			return notFound("worker", id)
		}
		w := c.Workers[i]
		patch.Apply(&w)
		if err := w.Validate(); err != nil {
			return err
		}
		if err := checkWorkerKey(c, w); err != nil {
			return err
		}
		c.Workers[i] = w
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteWorker removes the worker together with its time entries and
// payments. Deleting a missing id is not an error.
func (db *DB) DeleteWorker(ctx context.Context, account string, id int64) error {
	return db.mutate(ctx, account, func(c *types.Container) error {
		c.RemoveWorker(id)
		return nil
	})
}

// ImportWorker appends w under a fresh local id, keeping its created_at.
func (db *DB) ImportWorker(ctx context.Context, account string, w types.Worker) (*types.Worker, error) {
	err := db.mutate(ctx, account, func(c *types.Container) error {
		w.ID = c.AllocateID()
		if w.CreatedAt.IsZero() {
			w.CreatedAt = db.now()
		}
		c.Workers = append(c.Workers, w)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import worker: %w", err)
	}
	return &w, nil
}

// ReplaceWorker overwrites every field of worker id, created_at included,
// with the fields of w.
func (db *DB) ReplaceWorker(ctx context.Context, account string, id int64, w types.Worker) (*types.Worker, error) {
	err := db.mutate(ctx, account, func(c *types.Container) error {
		i := c.WorkerIndex(id)
		if i < 0 {
			return notFound("worker", id)
		}
		w.ID = id
		c.Workers[i] = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Sites returns every site of account.
func (db *DB) Sites(ctx context.Context, account string) ([]types.Site, error) {
	var out []types.Site
	err := db.view(ctx, account, func(c *types.Container) { out = c.Sites })
	return out, err
}

// AddSite stores a new site.
func (db *DB) AddSite(ctx context.Context, account string, s types.Site) (*types.Site, error) {
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}

	err := db.mutate(ctx, account, func(c *types.Container) error {
		if err := checkSiteKey(c, s); err != nil {
			return err
		}
		s.ID = c.AllocateID()
		s.CreatedAt = db.now()
		c.Sites = append(c.Sites, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add site: %w", err)
	}
	return &s, nil
}

// UpdateSite merges patch into the site with the given id.
func (db *DB) UpdateSite(ctx context.Context, account string, id int64, patch types.SitePatch) (*types.Site, error) {
	var out types.Site
	err := db.mutate(ctx, account, func(c *types.Container) error {
		i := c.SiteIndex(id)
		if i < 0 {
			return notFound("site", id)
		}
		s := c.Sites[i]
		patch.Apply(&s)
		if err := s.Validate(); err != nil {
			return err
		}
		if err := checkSiteKey(c, s); err != nil {
			return err
		}
		c.Sites[i] = s
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSite removes the site together with its time entries.
func (db *DB) DeleteSite(ctx context.Context, account string, id int64) error {
	return db.mutate(ctx, account, func(c *types.Container) error {
		c.RemoveSite(id)
		return nil
	})
}

// ImportSite appends s under a fresh local id, keeping its created_at.
func (db *DB) ImportSite(ctx context.Context, account string, s types.Site) (*types.Site, error) {
	err := db.mutate(ctx, account, func(c *types.Container) error {
		s.ID = c.AllocateID()
		if s.CreatedAt.IsZero() {
			s.CreatedAt = db.now()
		}
		c.Sites = append(c.Sites, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import site: %w", err)
	}
	return &s, nil
}

// ReplaceSite overwrites every field of site id with the fields of s.
func (db *DB) ReplaceSite(ctx context.Context, account string, id int64, s types.Site) (*types.Site, error) {
	err := db.mutate(ctx, account, func(c *types.Container) error {
		i := c.SiteIndex(id)
		if i < 0 {
			return notFound("site", id)
		}
		s.ID = id
		c.Sites[i] = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// TimeEntries returns every time entry of account joined with worker and
// site names.
func (db *DB) TimeEntries(ctx context.Context, account string) ([]types.TimeEntryView, error) {
	var out []types.TimeEntryView
	err := db.view(ctx, account, func(c *types.Container) { out = c.TimeEntryViews() })
	return out, err
}

// AddTimeEntry stores a new time entry. The referenced worker and site must
// exist.
func (db *DB) AddTimeEntry(ctx context.Context, account string, e types.TimeEntry) (*types.TimeEntryView, error) {
	e.SetDefaults()
	if err := e.Validate(); err != nil {
		return nil, err
	}

	var out types.TimeEntryView
	err := db.mutate(ctx, account, func(c *types.Container) error {
		if err := checkEntryRefs(c, e); err != nil {
			return err
		}
		if err := checkTimeEntryKey(c, e); err != nil {
			return err
		}
		e.ID = c.AllocateID()
		e.CreatedAt = db.now()
		c.TimeEntries = append(c.TimeEntries, e)
		out = c.TimeEntryView(e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add time entry: %w", err)
	}
	return &out, nil
}

// UpdateTimeEntry merges patch into the time entry with the given id.
func (db *DB) UpdateTimeEntry(ctx context.Context, account string, id int64, patch types.TimeEntryPatch) (*types.TimeEntryView, error) {
	var out types.TimeEntryView
	err := db.mutate(ctx, account, func(c *types.Container) error {
		i := c.TimeEntryIndex(id)
		if i < 0 {
			return notFound("time entry", id)
		}
		e := c.TimeEntries[i]
		patch.Apply(&e)
		if err := e.Validate(); err != nil {
			return err
		}
		if err := checkEntryRefs(c, e); err != nil {
			return err
		}
		if err := checkTimeEntryKey(c, e); err != nil {
			return err
		}
		c.TimeEntries[i] = e
		out = c.TimeEntryView(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTimeEntry removes one time entry.
func (db *DB) DeleteTimeEntry(ctx context.Context, account string, id int64) error {
	return db.mutate(ctx, account, func(c *types.Container) error {
		c.RemoveTimeEntry(id)
		return nil
	})
}

// ImportTimeEntry appends e under a fresh local id, keeping its created_at.
// References are stored as given.
func (db *DB) ImportTimeEntry(ctx context.Context, account string, e types.TimeEntry) (*types.TimeEntryView, error) {
	var out types.TimeEntryView
	err := db.mutate(ctx, account, func(c *types.Container) error {
		e.ID = c.AllocateID()
		if e.CreatedAt.IsZero() {
			e.CreatedAt = db.now()
		}
		c.TimeEntries = append(c.TimeEntries, e)
		out = c.TimeEntryView(e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import time entry: %w", err)
	}
	return &out, nil
}

// ReplaceTimeEntry overwrites every field of time entry id with the fields
// of e.
func (db *DB) ReplaceTimeEntry(ctx context.Context, account string, id int64, e types.TimeEntry) (*types.TimeEntryView, error) {
	var out types.TimeEntryView
	err := db.mutate(ctx, account, func(c *types.Container) error {
		i := c.TimeEntryIndex(id)
		if i < 0 {
			return notFound("time entry", id)
		}
		e.ID = id
		c.TimeEntries[i] = e
		out = c.TimeEntryView(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Payments returns every payment of account joined with worker names.
func (db *DB) Payments(ctx context.Context, account string) ([]types.PaymentView, error) {
	var out []types.PaymentView
	err := db.view(ctx, account, func(c *types.Container) { out = c.PaymentViews() })
	return out, err
}

// AddPayment stores a new payment. The referenced worker must exist.
func (db *DB) AddPayment(ctx context.Context, account string, p types.Payment) (*types.PaymentView, error) {
	p.SetDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var out types.PaymentView
	err := db.mutate(ctx, account, func(c *types.Container) error {
		if c.WorkerIndex(p.WorkerID) < 0 {
			return notFound("worker", p.WorkerID)
		}
		if err := checkPaymentKey(c, p); err != nil {
			return err
		}
		p.ID = c.AllocateID()
		p.CreatedAt = db.now()
		c.Payments = append(c.Payments, p)
		out = c.PaymentView(p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add payment: %w", err)
	}
	return &out, nil
}

// UpdatePayment merges patch into the payment with the given id.
func (db *DB) UpdatePayment(ctx context.Context, account string, id int64, patch types.PaymentPatch) (*types.PaymentView, error) {
	var out types.PaymentView
	err := db.mutate(ctx, account, func(c *types.Container) error {
		i := c.PaymentIndex(id)
		if i < 0 {
			return notFound("payment", id)
		}
		p := c.Payments[i]
		patch.Apply(&p)
		if err := p.Validate(); err != nil {
			return err
		}
		if err := checkPaymentKey(c, p); err != nil {
			return err
		}
		c.Payments[i] = p
		out = c.PaymentView(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePayment removes one payment.
func (db *DB) DeletePayment(ctx context.Context, account string, id int64) error {
	return db.mutate(ctx, account, func(c *types.Container) error {
		c.RemovePayment(id)
		return nil
	})
}

// ImportPayment appends p under a fresh local id, keeping its created_at.
func (db *DB) ImportPayment(ctx context.Context, account string, p types.Payment) (*types.PaymentView, error) {
	var out types.PaymentView
	err := db.mutate(ctx, account, func(c *types.Container) error {
		p.ID = c.AllocateID()
		if p.CreatedAt.IsZero() {
			p.CreatedAt = db.now()
		}
		c.Payments = append(c.Payments, p)
		out = c.PaymentView(p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import payment: %w", err)
	}
	return &out, nil
}

// ReplacePayment overwrites every field of payment id with the fields of p.
func (db *DB) ReplacePayment(ctx context.Context, account string, id int64, p types.Payment) (*types.PaymentView, error) {
	var out types.PaymentView
	err := db.mutate(ctx, account, func(c *types.Container) error {
		i := c.PaymentIndex(id)
		if i < 0 {
			return notFound("payment", id)
		}
		p.ID = id
		c.Payments[i] = p
		out = c.PaymentView(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func checkEntryRefs(c *types.Container, e types.TimeEntry) error {
	if c.WorkerIndex(e.WorkerID) < 0 {
		return notFound("worker", e.WorkerID)
	}
	if c.SiteIndex(e.SiteID) < 0 {
		return notFound("site", e.SiteID)
	}
	return nil
}

// The check* key helpers reject a record whose business key belongs to a
// record with a different id. New records carry id 0, which is never
// allocated.

func checkWorkerKey(c *types.Container, w types.Worker) error {
	key := types.WorkerKey(w)
	for _, o := range c.Workers {
		if o.ID != w.ID && types.WorkerKey(o) == key {
			return duplicateKey("worker", key, o.ID)
		}
	}
	return nil
}

func checkSiteKey(c *types.Container, s types.Site) error {
	key := types.SiteKey(s)
	for _, o := range c.Sites {
		if o.ID != s.ID && types.SiteKey(o) == key {
			return duplicateKey("site", key, o.ID)
		}
	}
	return nil
}

func checkTimeEntryKey(c *types.Container, e types.TimeEntry) error {
	key := types.TimeEntryKey(e)
	for _, o := range c.TimeEntries {
		if o.ID != e.ID && types.TimeEntryKey(o) == key {
			return duplicateKey("time entry", key, o.ID)
		}
	}
	return nil
}

func checkPaymentKey(c *types.Container, p types.Payment) error {
	key := types.PaymentKey(p)
	for _, o := range c.Payments {
		if o.ID != p.ID && types.PaymentKey(o) == key {
			return duplicateKey("payment", key, o.ID)
		}
	}
	return nil
}
