// Package backupserver is the HTTP backup server the remote client talks
// to. It stores one record set per registered account and authenticates
// requests either with the X-User-Email/X-User-Password headers or with a
// bearer token obtained from /api/auth/login.
package backupserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/edilcheck/edilcheck/internal/remote"
	"github.com/edilcheck/edilcheck/internal/types"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const (
	maxBodyBytes    = 16 << 20
	defaultTokenTTL = 24 * time.Hour
	shutdownTimeout = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	// JWTSecret signs bearer tokens. A random secret is generated when
	// empty, which invalidates tokens on restart.
	JWTSecret      string
	TokenTTL       time.Duration
	AllowedOrigins []string
	Logger         *log.Logger
}

// Server serves the backup API over a Store.
type Server struct {
	store    *Store
	logger   *log.Logger
	secret   []byte
	tokenTTL time.Duration
	origins  []string
	now      func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

// New creates a server over store.
func New(store *Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}

	secret := []byte(opts.JWTSecret)
	if len(secret) == 0 {
		buf := make([]byte, 32)
		_, _ = rand.Read(buf)
		secret = []byte(hex.EncodeToString(buf))
		logger.Printf("WARNING: no JWT secret configured, tokens will not survive a restart")
	}

	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &Server{
		store:    store,
		logger:   logger,
		secret:   secret,
		tokenTTL: ttl,
		origins:  opts.AllowedOrigins,
		now:      time.Now,
		revoked:  make(map[string]time.Time),
	}
}

// Handler returns the routed API wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/register", s.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	mount(api, s, "/workers", workerResource)
	mount(api, s, "/sites", siteResource)
	mount(api, s, "/time-entries", timeEntryResource)
	mount(api, s, "/payments", paymentResource)

	api.HandleFunc("/dashboard/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/backup", s.handleGetBackup).Methods(http.MethodGet)
	api.HandleFunc("/backup", s.handlePutBackup).Methods(http.MethodPut)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", remote.HeaderEmail, remote.HeaderPassword},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return c.Handler(router)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Backup server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Printf("Shutting down backup server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.Container(r.Context(), accountFrom(r.Context()))
	if err != nil {
		s.internalError(w, "load stats", err)
		return
	}
	stats := c.Stats(s.now().Format(types.DateLayout))
	respondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetBackup(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.Container(r.Context(), accountFrom(r.Context()))
	if err != nil {
		s.internalError(w, "load backup", err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (s *Server) handlePutBackup(w http.ResponseWriter, r *http.Request) {
	var ct types.Container
	if err := decodeJSON(w, r, &ct); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	account := accountFrom(r.Context())
	if err := s.store.ReplaceContainer(r.Context(), account, &ct); err != nil {
		s.internalError(w, "store backup", err)
		return
	}
	s.logger.Printf("Stored backup for %s (%d workers, %d sites, %d entries, %d payments)",
		account, len(ct.Workers), len(ct.Sites), len(ct.TimeEntries), len(ct.Payments))
	respondWithJSON(w, http.StatusOK, messageResponse{Message: "Backup stored"})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Printf("ERROR: failed to %s: %v", op, err)
	respondWithError(w, http.StatusInternalServerError, "Internal server error")
}
