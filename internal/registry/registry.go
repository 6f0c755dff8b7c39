package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Registry is the in-memory keyed store of provisioning requests with
// write-through persistence. All reads return deep copies; mutation goes
// through Update so every change hits the snapshot before it is visible.
type Registry struct {
	mu       sync.RWMutex
	requests map[string]*Request
	store    *SnapshotStore
	log      logr.Logger
}

// New creates an empty registry backed by the given snapshot store.
func New(store *SnapshotStore, log logr.Logger) *Registry {
	return &Registry{
		requests: make(map[string]*Request),
		store:    store,
		log:      log,
	}
}

// Load populates the registry from the snapshot and returns copies of the
// recovered records so the caller can classify and resume them.
func (r *Registry) Load() ([]*Request, error) {
	records, err := r.store.Load()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	recovered := make([]*Request, 0, len(records))
	for _, rec := range records {
		r.requests[rec.ID] = rec
		recovered = append(recovered, rec.Clone())
	}
	return recovered, nil
}

// Insert adds a new request and persists the snapshot.
func (r *Registry) Insert(req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.requests[req.ID]; exists {
		return fmt.Errorf("request %s already exists", req.ID)
	}
	r.requests[req.ID] = req.Clone()
	return r.persistLocked()
}

// Get returns a copy of the request, if present.
func (r *Registry) Get(id string) (*Request, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, false
	}
	return req.Clone(), true
}

// Update applies mutate to the stored record and persists the snapshot.
// It returns a copy of the updated record.
func (r *Registry) Update(id string, mutate func(*Request)) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s not found", id)
	}
	mutate(req)
	if err := r.persistLocked(); err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

// Remove deletes the request entirely and persists the snapshot.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.requests[id]; !ok {
		return nil
	}
	delete(r.requests, id)
	return r.persistLocked()
}

// List returns copies of all requests.
func (r *Registry) List() []*Request {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Request, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, req.Clone())
	}
	return out
}

// FindActiveByName returns the request currently holding the given desired
// name, if any. FAILED requests do not hold their name: a failed name may be
// reused by a new request.
func (r *Registry) FindActiveByName(name string) (*Request, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, req := range r.requests {
		if req.DesiredName == name && req.State != StateFailed {
			return req.Clone(), true
		}
	}
	return nil, false
}

// Sweep purges terminal records whose terminal transition is older than
// retention. DELETING records are never swept; they stay visible for
// operator follow-up. Returns the number of purged records.
func (r *Registry) Sweep(now time.Time, retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for id, req := range r.requests {
		if !req.State.Terminal() {
			continue
		}
		finished := req.StartedAt
		if req.FinishedAt != nil {
			finished = *req.FinishedAt
		}
		if now.Sub(finished) > retention {
			delete(r.requests, id)
			purged++
		}
	}
	if purged > 0 {
		if err := r.persistLocked(); err != nil {
			r.log.Error(err, "failed to persist snapshot after sweep")
		}
	}
	return purged
}

func (r *Registry) persistLocked() error {
	records := make([]*Request, 0, len(r.requests))
	for _, req := range r.requests {
		records = append(records, req)
	}
	if err := r.store.Save(records); err != nil {
		return fmt.Errorf("failed to persist registry: %w", err)
	}
	return nil
}
