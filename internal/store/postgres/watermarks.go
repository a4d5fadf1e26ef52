package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fiscalsync/internal/store"

	"github.com/google/uuid"
)

// GetWatermark returns the cursor pair for a client and family. A client
// that never synced gets a zero watermark, not an error.
func (s *Store) GetWatermark(ctx context.Context, clientID uuid.UUID, family store.DocumentFamily) (*store.Watermark, error) {
	query := `
		SELECT client_id, tenant_id, family, last_seen_nsu, max_known_nsu, last_queried_at
		FROM nsu_watermarks
		WHERE client_id = $1 AND family = $2
	`

	var w store.Watermark
	err := s.db.QueryRowContext(ctx, query, clientID, family).Scan(
		&w.ClientID, &w.TenantID, &w.Family, &w.LastSeenNSU, &w.MaxKnownNSU, &w.LastQueriedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &store.Watermark{ClientID: clientID, Family: family}, nil
		}
		return nil, fmt.Errorf("failed to load watermark: %w", err)
	}
	return &w, nil
}

// AdvanceWatermark upserts the cursor pair. GREATEST() makes the cursor
// monotonic at the SQL level; only ResetWatermark can move it back.
func (s *Store) AdvanceWatermark(ctx context.Context, w *store.Watermark) error {
	query := `
		INSERT INTO nsu_watermarks (client_id, tenant_id, family, last_seen_nsu, max_known_nsu, last_queried_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id, family) DO UPDATE SET
			last_seen_nsu = GREATEST(nsu_watermarks.last_seen_nsu, EXCLUDED.last_seen_nsu),
			max_known_nsu = GREATEST(nsu_watermarks.max_known_nsu, EXCLUDED.max_known_nsu),
			last_queried_at = EXCLUDED.last_queried_at
	`

	queriedAt := w.LastQueriedAt
	if queriedAt.IsZero() {
		queriedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		w.ClientID, w.TenantID, w.Family, w.LastSeenNSU, w.MaxKnownNSU, queriedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to advance watermark: %w", err)
	}
	return nil
}

// ResetWatermark is the explicit administrative rollback to NSU zero.
func (s *Store) ResetWatermark(ctx context.Context, clientID uuid.UUID, family store.DocumentFamily) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE nsu_watermarks
		SET last_seen_nsu = 0, max_known_nsu = 0, last_queried_at = NOW()
		WHERE client_id = $1 AND family = $2
	`, clientID, family)
	return err
}

// TotalLag backs the watermark-lag metrics gauge.
func (s *Store) TotalLag(ctx context.Context) (int64, error) {
	var lag sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(GREATEST(max_known_nsu - last_seen_nsu, 0)) FROM nsu_watermarks
	`).Scan(&lag)
	if err != nil {
		return 0, err
	}
	return lag.Int64, nil
}
