package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/edilcheck/edilcheck/internal/database"
	edilsync "github.com/edilcheck/edilcheck/internal/sync"
	"github.com/edilcheck/edilcheck/internal/types"
)

// Source is the data layer the dashboard reports on.
type Source interface {
	DashboardStats(ctx context.Context) (*types.Stats, error)
	Sync(ctx context.Context) (*edilsync.Result, error)
	Syncer() edilsync.Syncer
	OnProbe(fn func(available bool)) (unsubscribe func())
	Mode() database.Mode
}

// Handler turns data layer events into dashboard messages. It bridges
// between the syncer and probe observers and the WebSocket server.
type Handler struct {
	server *Server
	source Source
	logger *log.Logger

	mu    sync.Mutex
	stats types.Stats
}

// NewHandler creates a new event handler connected to a dashboard server
// and installs it as the server's controller.
func NewHandler(server *Server, source Source, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	h := &Handler{
		server: server,
		source: source,
		logger: logger,
	}
	server.SetController(h)
	return h
}

// Attach subscribes to sync and probe events. The returned function
// removes both subscriptions.
func (h *Handler) Attach() (detach func()) {
	unsubSync := h.source.Syncer().Subscribe(h.OnSyncEvent)
	unsubProbe := h.source.OnProbe(h.OnProbe)
	return func() {
		unsubSync()
		unsubProbe()
	}
}

// OnSyncEvent handles syncer status changes. A finished pass also refreshes
// the counters, since pulled records change them.
func (h *Handler) OnSyncEvent(e edilsync.Event) {
	data := SyncStatusData{
		Account: e.Account,
		Status:  e.Status,
		Error:   e.Error,
	}
	if e.Result != nil {
		data.LocalToRemote = e.Result.LocalToRemote
		data.RemoteToLocal = e.Result.RemoteToLocal
		data.Failed = e.Result.Failed
		data.Duration = e.Result.Duration
	}
	h.logger.Printf("Sync %s for %s", e.Status, e.Account)
	h.broadcast(MessageTypeSyncStatus, e.Time, data)

	if e.Status == edilsync.StatusSuccess {
		if _, err := h.RefreshStats(context.Background()); err != nil {
			h.logger.Printf("Failed to refresh stats: %v", err)
		}
	}
}

// OnProbe handles backup server probe results
func (h *Handler) OnProbe(available bool) {
	h.logger.Printf("Backup server available: %v", available)
	h.broadcast(MessageTypeBackupStatus, time.Now(), BackupStatusData{
		Available: available,
		Mode:      string(h.source.Mode()),
	})
}

// RefreshStats reloads the counters and broadcasts them
func (h *Handler) RefreshStats(ctx context.Context) (*types.Stats, error) {
	stats, err := h.source.DashboardStats(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.stats = *stats
	h.mu.Unlock()

	h.broadcast(MessageTypeStats, time.Now(), stats)
	return stats, nil
}

// GetStats returns the last counters seen
func (h *Handler) GetStats() types.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Stats implements Controller.
func (h *Handler) Stats(ctx context.Context) (*types.Stats, error) {
	stats, err := h.source.DashboardStats(ctx)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.stats = *stats
	h.mu.Unlock()
	return stats, nil
}

// TriggerSync implements Controller. Progress reaches clients through the
// syncer's own events.
func (h *Handler) TriggerSync(ctx context.Context) (*edilsync.Result, error) {
	return h.source.Sync(ctx)
}

func (h *Handler) broadcast(typ MessageType, at time.Time, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: at,
		Data:      data,
	})
}
