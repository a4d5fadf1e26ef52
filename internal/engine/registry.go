package engine

import (
	"context"
	"sync"

	"fiscalsync/internal/store"

	"github.com/google/uuid"
)

// runKey identifies the one run a client may have in flight per family.
type runKey struct {
	clientID uuid.UUID
	family   store.DocumentFamily
}

// registry tracks in-flight runs owned by this process so cancellation
// can interrupt a blocked fetch instead of waiting for the next status
// poll. The job row stays the durable source of truth; the registry is
// only a fast path and is rebuilt empty after a restart.
type registry struct {
	mu   sync.Mutex
	runs map[runKey]*runEntry
}

type runEntry struct {
	jobID    uuid.UUID
	tenantID uuid.UUID
	cancel   context.CancelFunc

	// done is closed when the owning loop has returned and released the
	// job row.
	done chan struct{}
}

func newRegistry() *registry {
	return &registry{runs: make(map[runKey]*runEntry)}
}

func (r *registry) add(clientID uuid.UUID, family store.DocumentFamily, e *runEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[runKey{clientID, family}] = e
}

// remove drops the entry only if the slot still holds it. A replacement
// run may have taken the slot while the old loop was draining; the old
// loop's deferred remove must not evict the new entry.
func (r *registry) remove(clientID uuid.UUID, family store.DocumentFamily, e *runEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := runKey{clientID, family}
	if r.runs[key] == e {
		delete(r.runs, key)
	}
}

// find returns the in-flight entry owning the given job, if any.
func (r *registry) find(jobID uuid.UUID) *runEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.runs {
		if e.jobID == jobID {
			return e
		}
	}
	return nil
}

// cancelJob interrupts the run owning the given job, if this process has
// it in flight.
func (r *registry) cancelJob(jobID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.runs {
		if e.jobID == jobID {
			e.cancel()
			return
		}
	}
}

// cancelTenant interrupts every in-flight run of a tenant.
func (r *registry) cancelTenant(tenantID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.runs {
		if e.tenantID == tenantID {
			e.cancel()
		}
	}
}
