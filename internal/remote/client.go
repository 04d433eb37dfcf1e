package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/edilcheck/edilcheck/internal/types"
)

// Client talks to one backup server.
type Client struct {
	t *transport
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.t.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. Without it requests are bounded
// only by their context. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.t.httpClient.Timeout = d
	}
}

// WithBaseURL points the client at an explicit URL instead of
// http://host:port. Used by tests against httptest servers.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.t.baseURL = u
	}
}

// New creates a client for the server at http://host:port.
func New(host string, port int, opts ...Option) *Client {
	c := &Client{t: newTransport(host, port)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.t.baseURL
}

// SetCredentials sets the account used by every authenticated call.
func (c *Client) SetCredentials(email, password string) {
	c.t.setCredentials(email, password)
}

// ClearCredentials forgets the account.
func (c *Client) ClearCredentials() {
	c.t.setCredentials("", "")
}

// HasCredentials reports whether both email and password are set.
func (c *Client) HasCredentials() bool {
	_, _, ok := c.t.credentials()
	return ok
}

// Email returns the account email, or "".
func (c *Client) Email() string {
	email, _, _ := c.t.credentials()
	return email
}

// TestConnection reports whether the server answers its health check. It
// never returns an error.
func (c *Client) TestConnection(ctx context.Context) bool {
	var health struct {
		Status string `json:"status"`
	}
	return c.t.do(ctx, http.MethodGet, "/api/health", nil, &health, false) == nil
}

// Me returns the user the credentials belong to.
func (c *Client) Me(ctx context.Context) (*types.User, error) {
	var u types.User
	if err := c.t.do(ctx, http.MethodGet, "/api/auth/me", nil, &u, true); err != nil {
		return nil, err
	}
	return &u, nil
}

// Register creates an account on the server. It needs no credentials.
func (c *Client) Register(ctx context.Context, cred types.Credentials) (*types.User, error) {
	var u types.User
	if err := c.t.do(ctx, http.MethodPost, "/api/auth/register", cred, &u, false); err != nil {
		return nil, err
	}
	return &u, nil
}

// Workers lists the remote workers.
func (c *Client) Workers(ctx context.Context) ([]types.Worker, error) {
	var out []types.Worker
	if err := c.t.do(ctx, http.MethodGet, "/api/workers", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateWorker stores w remotely. created_at travels with the record.
func (c *Client) CreateWorker(ctx context.Context, w types.Worker) (*types.Worker, error) {
	var out types.Worker
	if err := c.t.do(ctx, http.MethodPost, "/api/workers", w, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateWorker overwrites the remote worker id with w.
func (c *Client) UpdateWorker(ctx context.Context, id int64, w types.Worker) (*types.Worker, error) {
	var out types.Worker
	if err := c.t.do(ctx, http.MethodPut, resourcePath("workers", id), w, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteWorker removes the remote worker id.
func (c *Client) DeleteWorker(ctx context.Context, id int64) error {
	return c.t.do(ctx, http.MethodDelete, resourcePath("workers", id), nil, nil, true)
}

// Sites lists the remote sites.
func (c *Client) Sites(ctx context.Context) ([]types.Site, error) {
	var out []types.Site
	if err := c.t.do(ctx, http.MethodGet, "/api/sites", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSite stores s remotely.
func (c *Client) CreateSite(ctx context.Context, s types.Site) (*types.Site, error) {
	var out types.Site
	if err := c.t.do(ctx, http.MethodPost, "/api/sites", s, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSite overwrites the remote site id with s.
func (c *Client) UpdateSite(ctx context.Context, id int64, s types.Site) (*types.Site, error) {
	var out types.Site
	if err := c.t.do(ctx, http.MethodPut, resourcePath("sites", id), s, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSite removes the remote site id.
func (c *Client) DeleteSite(ctx context.Context, id int64) error {
	return c.t.do(ctx, http.MethodDelete, resourcePath("sites", id), nil, nil, true)
}

// TimeEntries lists the remote time entries.
func (c *Client) TimeEntries(ctx context.Context) ([]types.TimeEntry, error) {
	var out []types.TimeEntry
	if err := c.t.do(ctx, http.MethodGet, "/api/time-entries", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTimeEntry stores e remotely.
func (c *Client) CreateTimeEntry(ctx context.Context, e types.TimeEntry) (*types.TimeEntry, error) {
	var out types.TimeEntry
	if err := c.t.do(ctx, http.MethodPost, "/api/time-entries", e, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTimeEntry overwrites the remote time entry id with e.
func (c *Client) UpdateTimeEntry(ctx context.Context, id int64, e types.TimeEntry) (*types.TimeEntry, error) {
	var out types.TimeEntry
	if err := c.t.do(ctx, http.MethodPut, resourcePath("time-entries", id), e, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTimeEntry removes the remote time entry id.
func (c *Client) DeleteTimeEntry(ctx context.Context, id int64) error {
	return c.t.do(ctx, http.MethodDelete, resourcePath("time-entries", id), nil, nil, true)
}

// Payments lists the remote payments.
func (c *Client) Payments(ctx context.Context) ([]types.Payment, error) {
	var out []types.Payment
	if err := c.t.do(ctx, http.MethodGet, "/api/payments", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePayment stores p remotely.
func (c *Client) CreatePayment(ctx context.Context, p types.Payment) (*types.Payment, error) {
	var out types.Payment
	if err := c.t.do(ctx, http.MethodPost, "/api/payments", p, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePayment overwrites the remote payment id with p.
func (c *Client) UpdatePayment(ctx context.Context, id int64, p types.Payment) (*types.Payment, error) {
	var out types.Payment
	if err := c.t.do(ctx, http.MethodPut, resourcePath("payments", id), p, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePayment removes the remote payment id.
func (c *Client) DeletePayment(ctx context.Context, id int64) error {
	return c.t.do(ctx, http.MethodDelete, resourcePath("payments", id), nil, nil, true)
}

// DashboardStats returns the server-side summary for the account.
func (c *Client) DashboardStats(ctx context.Context) (*types.Stats, error) {
	var out types.Stats
	if err := c.t.do(ctx, http.MethodGet, "/api/dashboard/stats", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBackup downloads the whole remote container.
func (c *Client) GetBackup(ctx context.Context) (*types.Container, error) {
	var out types.Container
	if err := c.t.do(ctx, http.MethodGet, "/api/backup", nil, &out, true); err != nil {
		return nil, err
	}
	out.Normalize()
	return &out, nil
}

// PutBackup replaces the whole remote container with ct.
func (c *Client) PutBackup(ctx context.Context, ct *types.Container) error {
	return c.t.do(ctx, http.MethodPut, "/api/backup", ct, nil, true)
}

func resourcePath(collection string, id int64) string {
	return fmt.Sprintf("/api/%s/%d", collection, id)
}
