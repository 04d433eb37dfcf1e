package types

import "fmt"

// Container is everything one account owns. It is stored and transferred as
// a single unit; NextID is the id counter shared by all four collections.
type Container struct {
	Workers     []Worker    `json:"workers" yaml:"workers"`
	Sites       []Site      `json:"sites" yaml:"sites"`
	TimeEntries []TimeEntry `json:"timeEntries" yaml:"timeEntries"`
	Payments    []Payment   `json:"payments" yaml:"payments"`
	NextID      int64       `json:"nextId" yaml:"nextId"`
}

// Clone returns a copy that shares no slices with c.
func (c *Container) Clone() *Container {
	out := &Container{
		Workers:     append([]Worker{}, c.Workers...),
		Sites:       append([]Site{}, c.Sites...),
		TimeEntries: append([]TimeEntry{}, c.TimeEntries...),
		Payments:    append([]Payment{}, c.Payments...),
		NextID:      c.NextID,
	}
	return out
}

// AllocateID returns the next identifier and advances the counter.
func (c *Container) AllocateID() int64 {
	id := c.NextID
	c.NextID++
	return id
}

// Normalize raises NextID above every stored id and replaces nil
// collections with empty ones.
func (c *Container) Normalize() {
	if c.Workers == nil {
		c.Workers = []Worker{}
	}
	if c.Sites == nil {
		c.Sites = []Site{}
	}
	if c.TimeEntries == nil {
		c.TimeEntries = []TimeEntry{}
	}
	if c.Payments == nil {
		c.Payments = []Payment{}
	}

	maxID := int64(0)
	for _, w := range c.Workers {
		maxID = max(maxID, w.ID)
	}
	for _, s := range c.Sites {
		maxID = max(maxID, s.ID)
	}
	for _, e := range c.TimeEntries {
		maxID = max(maxID, e.ID)
	}
	for _, p := range c.Payments {
		maxID = max(maxID, p.ID)
	}
	if c.NextID <= maxID {
		c.NextID = maxID + 1
	}
}

// Counts returns the size of each collection, keyed by collection name.
func (c *Container) Counts() map[string]int {
	return map[string]int{
		"workers":     len(c.Workers),
		"sites":       len(c.Sites),
		"timeEntries": len(c.TimeEntries),
		"payments":    len(c.Payments),
	}
}

// WorkerIndex returns the slice index of the worker with the given id, or -1.
func (c *Container) WorkerIndex(id int64) int {
	for i := range c.Workers {
		if c.Workers[i].ID == id {
			return i
		}
	}
	return -1
}

// SiteIndex returns the slice index of the site with the given id, or -1.
func (c *Container) SiteIndex(id int64) int {
	for i := range c.Sites {
		if c.Sites[i].ID == id {
			return i
		}
	}
	return -1
}

// TimeEntryIndex returns the slice index of the entry with the given id, or -1.
func (c *Container) TimeEntryIndex(id int64) int {
	for i := range c.TimeEntries {
		if c.TimeEntries[i].ID == id {
			return i
		}
	}
	return -1
}

// PaymentIndex returns the slice index of the payment with the given id, or -1.
func (c *Container) PaymentIndex(id int64) int {
	for i := range c.Payments {
		if c.Payments[i].ID == id {
			return i
		}
	}
	return -1
}

// WorkerName returns the name of the worker with the given id, or "".
func (c *Container) WorkerName(id int64) string {
	if i := c.WorkerIndex(id); i >= 0 {
		return c.Workers[i].Name
	}
	return ""
}

// SiteName returns the name of the site with the given id, or "".
func (c *Container) SiteName(id int64) string {
	if i := c.SiteIndex(id); i >= 0 {
		return c.Sites[i].Name
	}
	return ""
}

// TimeEntryView joins e with the worker and site collections of c.
func (c *Container) TimeEntryView(e TimeEntry) TimeEntryView {
	return TimeEntryView{
		TimeEntry:  e,
		WorkerName: c.WorkerName(e.WorkerID),
		SiteName:   c.SiteName(e.SiteID),
	}
}

// PaymentView joins p with the worker collection of c.
func (c *Container) PaymentView(p Payment) PaymentView {
	return PaymentView{
		Payment:    p,
		WorkerName: c.WorkerName(p.WorkerID),
	}
}

// TimeEntryViews joins every time entry.
func (c *Container) TimeEntryViews() []TimeEntryView {
	out := make([]TimeEntryView, 0, len(c.TimeEntries))
	for _, e := range c.TimeEntries {
		out = append(out, c.TimeEntryView(e))
	}
	return out
}

// PaymentViews joins every payment.
func (c *Container) PaymentViews() []PaymentView {
	out := make([]PaymentView, 0, len(c.Payments))
	for _, p := range c.Payments {
		out = append(out, c.PaymentView(p))
	}
	return out
}

// RemoveWorker deletes the worker and every time entry and payment that
// references it. It reports whether the worker existed.
func (c *Container) RemoveWorker(id int64) bool {
	i := c.WorkerIndex(id)
	if i < 0 {
		return false
	}
	c.Workers = append(c.Workers[:i], c.Workers[i+1:]...)

	entries := c.TimeEntries[:0]
	for _, e := range c.TimeEntries {
		if e.WorkerID != id {
			entries = append(entries, e)
		}
	}
	c.TimeEntries = entries

	payments := c.Payments[:0]
	for _, p := range c.Payments {
		if p.WorkerID != id {
			payments = append(payments, p)
		}
	}
	c.Payments = payments
	return true
}

// RemoveSite deletes the site and every time entry that references it.
func (c *Container) RemoveSite(id int64) bool {
	i := c.SiteIndex(id)
	if i < 0 {
		return false
	}
	c.Sites = append(c.Sites[:i], c.Sites[i+1:]...)

	entries := c.TimeEntries[:0]
	for _, e := range c.TimeEntries {
		if e.SiteID != id {
			entries = append(entries, e)
		}
	}
	c.TimeEntries = entries
	return true
}

// RemoveTimeEntry deletes one time entry.
func (c *Container) RemoveTimeEntry(id int64) bool {
	i := c.TimeEntryIndex(id)
	if i < 0 {
		return false
	}
	c.TimeEntries = append(c.TimeEntries[:i], c.TimeEntries[i+1:]...)
	return true
}

// RemovePayment deletes one payment.
func (c *Container) RemovePayment(id int64) bool {
	i := c.PaymentIndex(id)
	if i < 0 {
		return false
	}
	c.Payments = append(c.Payments[:i], c.Payments[i+1:]...)
	return true
}

// Stats computes the dashboard summary. today is a DateLayout string.
func (c *Container) Stats(today string) Stats {
	var s Stats
	for _, w := range c.Workers {
		if w.Status == WorkerActive {
			s.ActiveWorkers++
		}
	}
	for _, site := range c.Sites {
		if site.Status == SiteActive {
			s.ActiveSites++
		}
	}
	for _, p := range c.Payments {
		if p.Status == PaymentDue {
			s.PendingPayments++
		}
	}
	for _, e := range c.TimeEntries {
		if e.Date == today {
			s.TodayHours += e.TotalHours
		}
	}
	return s
}

// WorkerKey is the business key matching workers across stores.
func WorkerKey(w Worker) string {
	return w.Email
}

// SiteKey is the business key matching sites across stores.
func SiteKey(s Site) string {
	return s.Name + "|" + s.Address
}

// TimeEntryKey is the business key matching time entries across stores.
func TimeEntryKey(e TimeEntry) string {
	return fmt.Sprintf("%d|%s|%s", e.WorkerID, e.Date, e.StartTime)
}

// PaymentKey is the business key matching payments across stores.
func PaymentKey(p Payment) string {
	return fmt.Sprintf("%d|%s", p.WorkerID, p.Week)
}
