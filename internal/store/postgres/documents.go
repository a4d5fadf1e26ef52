package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fiscalsync/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// FilterExistingKeys returns which of the given access keys are already
// persisted for the tenant. Callers page the input to DedupPageSize.
func (s *Store) FilterExistingKeys(ctx context.Context, tenantID uuid.UUID, keys []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return existing, nil
	}
	if len(keys) > store.DedupPageSize {
		return nil, fmt.Errorf("existence query exceeds page size: %d > %d", len(keys), store.DedupPageSize)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT access_key FROM documents
		WHERE tenant_id = $1 AND access_key = ANY($2)
	`, tenantID, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("existence query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		existing[key] = true
	}
	return existing, rows.Err()
}

// FilterMissingArtifact returns the subset of keys that are persisted but
// have no rendered artifact yet. This is the second tier of the dedup
// check: a prior run may have saved the document and then failed to
// render its PDF.
func (s *Store) FilterMissingArtifact(ctx context.Context, tenantID uuid.UUID, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if len(keys) > store.DedupPageSize {
		return nil, fmt.Errorf("artifact query exceeds page size: %d > %d", len(keys), store.DedupPageSize)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT access_key FROM documents
		WHERE tenant_id = $1 AND access_key = ANY($2) AND artifact_url IS NULL
	`, tenantID, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("artifact query failed: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		missing = append(missing, key)
	}
	return missing, rows.Err()
}

// UpsertDocument inserts or merges a document by (tenant_id, access_key).
// The merge never overwrites a populated business field with a blank one:
// re-fetches can carry less data than the original sighting. Returns true
// when a new row was inserted.
func (s *Store) UpsertDocument(ctx context.Context, tx store.DBTransaction, doc *store.Document) (bool, error) {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO documents (id, tenant_id, client_id, family, access_key, nsu, issued_at,
			emitter_tax_id, emitter_name, recipient_tax_id, recipient_name,
			amount_cents, doc_status, artifact_url, raw_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		ON CONFLICT (tenant_id, access_key) DO UPDATE SET
			nsu = EXCLUDED.nsu,
			doc_status = EXCLUDED.doc_status,
			emitter_tax_id = COALESCE(NULLIF(EXCLUDED.emitter_tax_id, ''), documents.emitter_tax_id),
			emitter_name = COALESCE(NULLIF(EXCLUDED.emitter_name, ''), documents.emitter_name),
			recipient_tax_id = COALESCE(NULLIF(EXCLUDED.recipient_tax_id, ''), documents.recipient_tax_id),
			recipient_name = COALESCE(NULLIF(EXCLUDED.recipient_name, ''), documents.recipient_name),
			amount_cents = CASE WHEN EXCLUDED.amount_cents <> 0 THEN EXCLUDED.amount_cents ELSE documents.amount_cents END,
			artifact_url = COALESCE(EXCLUDED.artifact_url, documents.artifact_url),
			updated_at = NOW()
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err := executor.QueryRowContext(ctx, query,
		doc.ID, doc.TenantID, doc.ClientID, doc.Family, doc.AccessKey, doc.NSU, doc.IssuedAt,
		doc.EmitterTaxID, doc.EmitterName, doc.RecipientTaxID, doc.RecipientName,
		doc.AmountCents, doc.Status, doc.ArtifactURL, doc.RawPayload,
	).Scan(&inserted)
	if err != nil {
		// A concurrent upsert for the same key can still surface a unique
		// violation; the other path already persisted it.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("failed to upsert document %s: %w", doc.AccessKey, err)
	}
	return inserted, nil
}

// SetArtifactURL records a rendered artifact for an already persisted
// document.
func (s *Store) SetArtifactURL(ctx context.Context, tenantID uuid.UUID, accessKey, url string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET artifact_url = $1, updated_at = NOW()
		WHERE tenant_id = $2 AND access_key = $3
	`, url, tenantID, accessKey)
	return err
}

// MinNSUForPeriod computes the period-mode jump point: the smallest NSU
// among persisted documents issued at or after start. Returns 0 when
// nothing matches, which callers treat as a full scan. The NSU/date
// correlation this relies on is a remote-source heuristic, so callers
// subtract one before fetching and never skip past the true start.
func (s *Store) MinNSUForPeriod(ctx context.Context, clientID uuid.UUID, family store.DocumentFamily, start time.Time) (int64, error) {
	var nsu sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(nsu) FROM documents
		WHERE client_id = $1 AND family = $2 AND issued_at >= $3
	`, clientID, family, start).Scan(&nsu)
	if err != nil {
		return 0, err
	}
	return nsu.Int64, nil
}

// CountDocuments backs the documents gauge and the purge confirmation.
func (s *Store) CountDocuments(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE tenant_id = $1", tenantID,
	).Scan(&count)
	return count, err
}

// DeleteTenantDocuments removes every document of a tenant. The purge
// path cancels active jobs and waits before calling this.
func (s *Store) DeleteTenantDocuments(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE tenant_id = $1", tenantID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
