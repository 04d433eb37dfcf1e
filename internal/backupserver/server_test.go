package backupserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/edilcheck/edilcheck/internal/localdb"
	"github.com/edilcheck/edilcheck/internal/remote"
	edilsync "github.com/edilcheck/edilcheck/internal/sync"
	"github.com/edilcheck/edilcheck/internal/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "demo@edilcheck.it"
	testPassword = "segreto1"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func setupTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	srv := New(setupTestStore(t), Options{
		JWTSecret:      "test-secret",
		TokenTTL:       time.Hour,
		AllowedOrigins: []string{"http://localhost:5173"},
		Logger:         quietLogger(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func register(t *testing.T, ts *httptest.Server) {
	t.Helper()
	resp := request(t, ts, http.MethodPost, "/api/auth/register", nil,
		types.Credentials{Email: testEmail, Password: testPassword, Name: "Demo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func request(t *testing.T, ts *httptest.Server, method, path string, headers map[string]string, body any) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func credHeaders() map[string]string {
	return map[string]string{remote.HeaderEmail: testEmail, remote.HeaderPassword: testPassword}
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func newClient(t *testing.T, ts *httptest.Server) *remote.Client {
	t.Helper()
	c := remote.New("127.0.0.1", 0, remote.WithBaseURL(ts.URL))
	c.SetCredentials(testEmail, testPassword)
	return c
}

func TestHealth(t *testing.T) {
	_, ts := setupTestServer(t)
	resp := request(t, ts, http.MethodGet, "/api/health", nil, nil)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestRegister(t *testing.T) {
	_, ts := setupTestServer(t)
	register(t, ts)

	resp := request(t, ts, http.MethodPost, "/api/auth/register", nil,
		types.Credentials{Email: testEmail, Password: testPassword})
	var e errorResponse
	decode(t, resp, &e)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Email already registered", e.Error)

	resp = request(t, ts, http.MethodPost, "/api/auth/register", nil,
		types.Credentials{Email: "not-an-email", Password: "x"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuth_Headers(t *testing.T) {
	_, ts := setupTestServer(t)
	register(t, ts)

	resp := request(t, ts, http.MethodGet, "/api/workers", nil, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = request(t, ts, http.MethodGet, "/api/workers",
		map[string]string{remote.HeaderEmail: testEmail, remote.HeaderPassword: "wrong"}, nil)
	var e errorResponse
	decode(t, resp, &e)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid email or password", e.Error)

	resp = request(t, ts, http.MethodGet, "/api/workers", credHeaders(), nil)
	var list []types.Worker
	decode(t, resp, &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, list)
}

func TestAuth_TokenAndLogout(t *testing.T) {
	_, ts := setupTestServer(t)
	register(t, ts)

	resp := request(t, ts, http.MethodPost, "/api/auth/login", nil,
		types.Credentials{Email: testEmail, Password: testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login loginResponse
	decode(t, resp, &login)
	require.NotEmpty(t, login.Token)
	assert.Equal(t, testEmail, login.User.Email)

	bearer := map[string]string{"Authorization": "Bearer " + login.Token}
	resp = request(t, ts, http.MethodGet, "/api/auth/me", bearer, nil)
	var me types.User
	decode(t, resp, &me)
	assert.Equal(t, "Demo", me.Name)

	resp = request(t, ts, http.MethodPost, "/api/auth/logout", bearer, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = request(t, ts, http.MethodGet, "/api/auth/me", bearer, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = request(t, ts, http.MethodPost, "/api/auth/login", nil,
		types.Credentials{Email: testEmail, Password: "wrong"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_ExpiredToken(t *testing.T) {
	_, ts := setupTestServer(t)
	register(t, ts)

	claims := jwt.RegisteredClaims{
		Subject:   testEmail,
		ID:        "expired",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	resp := request(t, ts, http.MethodGet, "/api/auth/me", map[string]string{"Authorization": "Bearer " + token}, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRecords_CRUD(t *testing.T) {
	_, ts := setupTestServer(t)
	register(t, ts)
	client := newClient(t, ts)
	ctx := context.Background()

	created := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	w, err := client.CreateWorker(ctx, types.Worker{Name: "Luca", Email: "luca@edil.it", HourlyRate: 18, CreatedAt: created})
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.ID)
	assert.Equal(t, types.WorkerActive, w.Status)
	assert.True(t, w.CreatedAt.Equal(created))

	s, err := client.CreateSite(ctx, types.Site{Name: "Villa", Address: "Via Roma 1"})
	require.NoError(t, err)
	assert.False(t, s.CreatedAt.IsZero())

	_, err = client.CreateTimeEntry(ctx, types.TimeEntry{
		WorkerID: w.ID, SiteID: s.ID, Date: "2026-10-16", StartTime: "07:30", EndTime: "12:00",
	})
	require.NoError(t, err)

	// Update without created_at keeps the stored one.
	upd := *w
	upd.HourlyRate = 20
	upd.CreatedAt = time.Time{}
	got, err := client.UpdateWorker(ctx, w.ID, upd)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.HourlyRate)
	assert.True(t, got.CreatedAt.Equal(created))

	_, err = client.UpdateWorker(ctx, 999, upd)
	var rerr *remote.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusNotFound, rerr.StatusCode)
	assert.Equal(t, "Worker not found", rerr.Message)

	_, err = client.CreateWorker(ctx, types.Worker{Name: "No email"})
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusBadRequest, rerr.StatusCode)

	stats, err := client.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveWorkers)
	assert.Equal(t, 1, stats.ActiveSites)

	require.NoError(t, client.DeleteWorker(ctx, w.ID))
	entries, err := client.TimeEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = client.DeleteWorker(ctx, w.ID)
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusNotFound, rerr.StatusCode)
}

func TestRecords_AccountIsolation(t *testing.T) {
	_, ts := setupTestServer(t)
	register(t, ts)
	resp := request(t, ts, http.MethodPost, "/api/auth/register", nil,
		types.Credentials{Email: "other@edil.it", Password: testPassword})
	resp.Body.Close()

	ctx := context.Background()
	_, err := newClient(t, ts).CreateWorker(ctx, types.Worker{Name: "Luca", Email: "luca@edil.it"})
	require.NoError(t, err)

	other := remote.New("127.0.0.1", 0, remote.WithBaseURL(ts.URL))
	other.SetCredentials("other@edil.it", testPassword)
	list, err := other.Workers(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBackup_RoundTrip(t *testing.T) {
	_, ts := setupTestServer(t)
	register(t, ts)
	client := newClient(t, ts)
	ctx := context.Background()

	c := &types.Container{
		Workers:  []types.Worker{{ID: 3, Name: "Luca", Email: "luca@edil.it", Status: types.WorkerActive}},
		Payments: []types.Payment{{ID: 9, WorkerID: 3, Week: "2026-W42", Status: types.PaymentDue}},
		NextID:   10,
	}
	require.NoError(t, client.PutBackup(ctx, c))

	got, err := client.GetBackup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.NextID)
	require.Len(t, got.Workers, 1)
	assert.Equal(t, int64(3), got.Workers[0].ID)
	require.Len(t, got.Payments, 1)
	assert.Equal(t, "2026-W42", got.Payments[0].Week)
	assert.Empty(t, got.Sites)
}

func TestCORS_Preflight(t *testing.T) {
	_, ts := setupTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/workers", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", remote.HeaderEmail)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

// TestSync_AgainstServer runs the sync engine between a local store and a
// live backup server, twice.
func TestSync_AgainstServer(t *testing.T) {
	_, ts := setupTestServer(t)
	register(t, ts)
	client := newClient(t, ts)
	ctx := context.Background()

	local, err := localdb.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })
	require.NoError(t, local.InitSchema())

	syncer := edilsync.New(local, client, quietLogger())

	res, err := syncer.Sync(ctx, testEmail)
	require.NoError(t, err)
	assert.Equal(t, 5, res.LocalToRemote)
	assert.Zero(t, res.RemoteToLocal)
	assert.Zero(t, res.Failed)

	remoteWorkers, err := client.Workers(ctx)
	require.NoError(t, err)
	assert.Len(t, remoteWorkers, 2)

	// A record added on the server comes down on the next pass.
	_, err = client.CreateSite(ctx, types.Site{Name: "Capannone", Address: "Via Po 9"})
	require.NoError(t, err)

	res, err = syncer.Sync(ctx, testEmail)
	require.NoError(t, err)
	assert.Zero(t, res.LocalToRemote)
	assert.Equal(t, 1, res.RemoteToLocal)

	sites, err := local.Sites(ctx, testEmail)
	require.NoError(t, err)
	assert.Len(t, sites, 2)

	res, err = syncer.Sync(ctx, testEmail)
	require.NoError(t, err)
	assert.Zero(t, res.LocalToRemote)
	assert.Zero(t, res.RemoteToLocal)
	assert.Equal(t, edilsync.StatusSuccess, syncer.Status())
}
