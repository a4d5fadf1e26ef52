// Package scheduler periodically fans out incremental synchronization
// runs across all registered clients.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fiscalsync/internal/engine"
	"fiscalsync/internal/store"

	"github.com/google/uuid"
)

// Starter is the slice of the engine the scheduler drives.
type Starter interface {
	StartJob(ctx context.Context, req engine.StartRequest) (uuid.UUID, error)
}

// Clients lists the clients to fan out over.
type Clients interface {
	ListAllClients(ctx context.Context) ([]store.Client, error)
}

// Scheduler starts scheduled incremental runs on a fixed interval.
// When a client still has an active run the new one is skipped, not
// queued: the next tick retries.
type Scheduler struct {
	clients  Clients
	engine   Starter
	log      *slog.Logger
	interval time.Duration
}

// New creates a scheduler. A non-positive interval disables it.
func New(clients Clients, eng Starter, log *slog.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{clients: clients, engine: eng, log: log, interval: interval}
}

// Run blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	clients, err := s.clients.ListAllClients(ctx)
	if err != nil {
		s.log.Error("scheduler could not list clients", "error", err)
		return
	}

	for _, client := range clients {
		for _, family := range []store.DocumentFamily{store.FamilyInvoices, store.FamilyWaybills} {
			_, err := s.engine.StartJob(ctx, engine.StartRequest{
				ClientID: client.ID,
				TenantID: client.TenantID,
				Family:   family,
				Kind:     store.JobKindScheduled,
				Mode:     store.JobModeIncremental,
			})
			if err != nil {
				if errors.Is(err, store.ErrActiveJobExists) {
					continue
				}
				s.log.Warn("scheduled run could not start",
					"client_id", client.ID, "family", family, "error", err)
			}
		}
	}
}
