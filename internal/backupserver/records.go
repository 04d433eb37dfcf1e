package backupserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/edilcheck/edilcheck/internal/types"
	"github.com/gorilla/mux"
)

// resource describes one record collection served under /api.
type resource[T any] struct {
	kind      string
	label     string
	id        func(*T) *int64
	createdAt func(*T) *time.Time
	prepare   func(*T) error
}

var workerResource = resource[types.Worker]{
	kind:      KindWorkers,
	label:     "Worker",
	id:        func(w *types.Worker) *int64 { return &w.ID },
	createdAt: func(w *types.Worker) *time.Time { return &w.CreatedAt },
	prepare: func(w *types.Worker) error {
		w.SetDefaults()
		return w.Validate()
	},
}

var siteResource = resource[types.Site]{
	kind:      KindSites,
	label:     "Site",
	id:        func(s *types.Site) *int64 { return &s.ID },
	createdAt: func(s *types.Site) *time.Time { return &s.CreatedAt },
	prepare: func(s *types.Site) error {
		s.SetDefaults()
		return s.Validate()
	},
}

var timeEntryResource = resource[types.TimeEntry]{
	kind:      KindTimeEntries,
	label:     "Time entry",
	id:        func(e *types.TimeEntry) *int64 { return &e.ID },
	createdAt: func(e *types.TimeEntry) *time.Time { return &e.CreatedAt },
	prepare: func(e *types.TimeEntry) error {
		e.SetDefaults()
		return e.Validate()
	},
}

var paymentResource = resource[types.Payment]{
	kind:      KindPayments,
	label:     "Payment",
	id:        func(p *types.Payment) *int64 { return &p.ID },
	createdAt: func(p *types.Payment) *time.Time { return &p.CreatedAt },
	prepare: func(p *types.Payment) error {
		p.SetDefaults()
		return p.Validate()
	},
}

// mount registers list, create, update and delete routes for res under path.
func mount[T any](r *mux.Router, s *Server, path string, res resource[T]) {
	r.HandleFunc(path, res.list(s)).Methods(http.MethodGet)
	r.HandleFunc(path, res.create(s)).Methods(http.MethodPost)
	r.HandleFunc(path+"/{id:[0-9]+}", res.update(s)).Methods(http.MethodPut)
	r.HandleFunc(path+"/{id:[0-9]+}", res.delete(s)).Methods(http.MethodDelete)
}

func (res resource[T]) list(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payloads, err := s.store.List(r.Context(), accountFrom(r.Context()), res.kind)
		if err != nil {
			s.internalError(w, "list "+res.kind, err)
			return
		}
		respondWithJSON(w, http.StatusOK, payloads)
	}
}

// create stores a new record under a server-assigned id. A created_at sent
// by the client is kept so both sides compare the same timestamp.
func (res resource[T]) create(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec T
		if err := decodeJSON(w, r, &rec); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
		if err := res.prepare(&rec); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		created := res.createdAt(&rec)
		if created.IsZero() {
			*created = s.now().UTC()
		}

		_, err := s.store.Insert(r.Context(), accountFrom(r.Context()), res.kind, *created, func(id int64) ([]byte, error) {
			*res.id(&rec) = id
			return json.Marshal(rec)
		})
		if err != nil {
			s.internalError(w, "create "+res.kind, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, rec)
	}
}

// update replaces a record. The stored created_at is kept when the client
// sends none.
func (res resource[T]) update(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		account := accountFrom(r.Context())

		existing, err := s.store.Get(r.Context(), account, res.kind, id)
		if errors.Is(err, ErrRecordNotFound) {
			respondWithError(w, http.StatusNotFound, res.label+" not found")
			return
		}
		if err != nil {
			s.internalError(w, "load "+res.kind, err)
			return
		}

		var rec T
		if err := decodeJSON(w, r, &rec); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
		*res.id(&rec) = id
		if err := res.prepare(&rec); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		created := res.createdAt(&rec)
		if created.IsZero() {
			var old T
			if err := json.Unmarshal(existing, &old); err == nil {
				*created = *res.createdAt(&old)
			}
		}

		payload, err := json.Marshal(rec)
		if err != nil {
			s.internalError(w, "encode "+res.kind, err)
			return
		}
		if err := s.store.Update(r.Context(), account, res.kind, id, *created, payload); err != nil {
			s.internalError(w, "update "+res.kind, err)
			return
		}
		respondWithJSON(w, http.StatusOK, rec)
	}
}

func (res resource[T]) delete(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		account := accountFrom(r.Context())

		if _, err := s.store.Get(r.Context(), account, res.kind, id); errors.Is(err, ErrRecordNotFound) {
			respondWithError(w, http.StatusNotFound, res.label+" not found")
			return
		}
		if err := s.store.Delete(r.Context(), account, res.kind, id); err != nil {
			s.internalError(w, "delete "+res.kind, err)
			return
		}
		respondWithJSON(w, http.StatusOK, messageResponse{Message: res.label + " deleted"})
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}
