package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fiscalsync/internal/store"

	"github.com/google/uuid"
)

func (s *Store) CreateClient(ctx context.Context, tx store.DBTransaction, client *store.Client) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO clients (id, tenant_id, name, tax_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := executor.ExecContext(ctx, query,
		client.ID, client.TenantID, client.Name, client.TaxID, client.CreatedAt,
	)
	return err
}

func (s *Store) GetClientByID(ctx context.Context, id uuid.UUID) (*store.Client, error) {
	query := "SELECT id, tenant_id, name, tax_id, created_at FROM clients WHERE id = $1"

	var c store.Client
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.TaxID, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListClients(ctx context.Context, tenantID uuid.UUID) ([]store.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, tenant_id, name, tax_id, created_at FROM clients WHERE tenant_id = $1 ORDER BY created_at",
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []store.Client
	for rows.Next() {
		var c store.Client
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.TaxID, &c.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *Store) ListAllClients(ctx context.Context) ([]store.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, tenant_id, name, tax_id, created_at FROM clients ORDER BY created_at",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []store.Client
	for rows.Next() {
		var c store.Client
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.TaxID, &c.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// GetActiveCertificate returns the client's single active certificate.
func (s *Store) GetActiveCertificate(ctx context.Context, clientID uuid.UUID) (*store.Certificate, error) {
	query := `
		SELECT id, client_id, material, not_after, active, created_at
		FROM certificates
		WHERE client_id = $1 AND active
	`

	var c store.Certificate
	err := s.db.QueryRowContext(ctx, query, clientID).Scan(
		&c.ID, &c.ClientID, &c.Material, &c.NotAfter, &c.Active, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoCertificate
		}
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	return &c, nil
}

// PutCertificate stores a certificate as the active one, demoting any
// previous active certificate of the same client.
func (s *Store) PutCertificate(ctx context.Context, tx store.DBTransaction, cert *store.Certificate) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx,
		"UPDATE certificates SET active = FALSE WHERE client_id = $1 AND active",
		cert.ClientID,
	)
	if err != nil {
		return fmt.Errorf("failed to demote previous certificate: %w", err)
	}

	_, err = executor.ExecContext(ctx, `
		INSERT INTO certificates (id, client_id, material, not_after, active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
	`, cert.ID, cert.ClientID, cert.Material, cert.NotAfter, cert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store certificate: %w", err)
	}
	return nil
}
