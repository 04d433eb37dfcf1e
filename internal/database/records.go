package database

import (
	"context"

	"github.com/edilcheck/edilcheck/internal/types"
)

// Container returns a copy of the whole local container.
func (s *Service) Container(ctx context.Context) (*types.Container, error) {
	return s.store.LoadContext(ctx, s.Account())
}

// ReplaceAll overwrites the local container with c.
func (s *Service) ReplaceAll(ctx context.Context, c *types.Container) error {
	return s.store.SaveContext(ctx, s.Account(), c)
}

func (s *Service) Workers(ctx context.Context) ([]types.Worker, error) {
	return s.store.Workers(ctx, s.Account())
}

func (s *Service) AddWorker(ctx context.Context, w types.Worker) (*types.Worker, error) {
	return s.store.AddWorker(ctx, s.Account(), w)
}

func (s *Service) UpdateWorker(ctx context.Context, id int64, patch types.WorkerPatch) (*types.Worker, error) {
	return s.store.UpdateWorker(ctx, s.Account(), id, patch)
}

func (s *Service) DeleteWorker(ctx context.Context, id int64) error {
	return s.store.DeleteWorker(ctx, s.Account(), id)
}

func (s *Service) Sites(ctx context.Context) ([]types.Site, error) {
	return s.store.Sites(ctx, s.Account())
}

func (s *Service) AddSite(ctx context.Context, site types.Site) (*types.Site, error) {
	return s.store.AddSite(ctx, s.Account(), site)
}

func (s *Service) UpdateSite(ctx context.Context, id int64, patch types.SitePatch) (*types.Site, error) {
	return s.store.UpdateSite(ctx, s.Account(), id, patch)
}

func (s *Service) DeleteSite(ctx context.Context, id int64) error {
	return s.store.DeleteSite(ctx, s.Account(), id)
}

func (s *Service) TimeEntries(ctx context.Context) ([]types.TimeEntryView, error) {
	return s.store.TimeEntries(ctx, s.Account())
}

func (s *Service) AddTimeEntry(ctx context.Context, e types.TimeEntry) (*types.TimeEntryView, error) {
	return s.store.AddTimeEntry(ctx, s.Account(), e)
}

func (s *Service) UpdateTimeEntry(ctx context.Context, id int64, patch types.TimeEntryPatch) (*types.TimeEntryView, error) {
	return s.store.UpdateTimeEntry(ctx, s.Account(), id, patch)
}

func (s *Service) DeleteTimeEntry(ctx context.Context, id int64) error {
	return s.store.DeleteTimeEntry(ctx, s.Account(), id)
}

func (s *Service) Payments(ctx context.Context) ([]types.PaymentView, error) {
	return s.store.Payments(ctx, s.Account())
}

func (s *Service) AddPayment(ctx context.Context, p types.Payment) (*types.PaymentView, error) {
	return s.store.AddPayment(ctx, s.Account(), p)
}

func (s *Service) UpdatePayment(ctx context.Context, id int64, patch types.PaymentPatch) (*types.PaymentView, error) {
	return s.store.UpdatePayment(ctx, s.Account(), id, patch)
}

func (s *Service) DeletePayment(ctx context.Context, id int64) error {
	return s.store.DeletePayment(ctx, s.Account(), id)
}

// DashboardStats returns the summary counters of the local data.
func (s *Service) DashboardStats(ctx context.Context) (*types.Stats, error) {
	return s.store.DashboardStats(ctx, s.Account())
}
