package handlers

import (
	"context"
	"database/sql"
	"time"

	"fiscalsync/internal/engine"
	"fiscalsync/internal/store"

	"github.com/google/uuid"
)

// mockStore implements StoreFactory with canned responses.
type mockStore struct {
	createTenantErr error
	getTenantResp   *store.Tenant
	getTenantErr    error

	createClientErr error
	getClientResp   *store.Client
	getClientErr    error
	listClientsResp []store.Client

	putCertErr error

	getJobResp       *store.SyncJob
	getJobErr        error
	listJobsResp     []store.SyncJob
	listJobsErr      error
	clearedCount     int64
	clearErr         error
	pingErr          error
	createdTenant    *store.Tenant
	createdClient    *store.Client
	storedCert       *store.Certificate
	clearedForTenant uuid.UUID
}

type mockTx struct{}

func (mockTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (mockTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (mockTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }
func (mockTx) Commit() error                                                   { return nil }
func (mockTx) Rollback() error                                                 { return nil }

func (m *mockStore) BeginTx(context.Context) (store.Tx, error) { return mockTx{}, nil }
func (m *mockStore) Ping(context.Context) error                { return m.pingErr }

func (m *mockStore) CreateTenant(_ context.Context, tenant *store.Tenant, _ string) error {
	m.createdTenant = tenant
	return m.createTenantErr
}
func (m *mockStore) GetTenantByID(context.Context, uuid.UUID) (*store.Tenant, error) {
	return m.getTenantResp, m.getTenantErr
}
func (m *mockStore) GetTenantByAPIKeyHash(context.Context, string) (*store.Tenant, error) {
	return m.getTenantResp, m.getTenantErr
}

func (m *mockStore) CreateClient(_ context.Context, _ store.DBTransaction, client *store.Client) error {
	m.createdClient = client
	return m.createClientErr
}
func (m *mockStore) GetClientByID(context.Context, uuid.UUID) (*store.Client, error) {
	return m.getClientResp, m.getClientErr
}
func (m *mockStore) ListClients(context.Context, uuid.UUID) ([]store.Client, error) {
	return m.listClientsResp, nil
}
func (m *mockStore) ListAllClients(context.Context) ([]store.Client, error) {
	return m.listClientsResp, nil
}
func (m *mockStore) GetActiveCertificate(context.Context, uuid.UUID) (*store.Certificate, error) {
	return nil, store.ErrNoCertificate
}
func (m *mockStore) PutCertificate(_ context.Context, _ store.DBTransaction, cert *store.Certificate) error {
	m.storedCert = cert
	return m.putCertErr
}

func (m *mockStore) CreateJob(context.Context, store.DBTransaction, *store.SyncJob) error { return nil }
func (m *mockStore) GetJobByID(context.Context, uuid.UUID) (*store.SyncJob, error) {
	return m.getJobResp, m.getJobErr
}
func (m *mockStore) GetJobStatus(context.Context, uuid.UUID) (store.JobStatus, error) {
	return store.JobStatusRunning, nil
}
func (m *mockStore) ClaimJob(context.Context, uuid.UUID, string) error          { return nil }
func (m *mockStore) UpdateProgress(context.Context, uuid.UUID, store.JobProgress) error {
	return nil
}
func (m *mockStore) MarkCompleted(context.Context, uuid.UUID, string) error       { return nil }
func (m *mockStore) MarkFailed(context.Context, uuid.UUID, string, bool) error    { return nil }
func (m *mockStore) MarkCancelled(context.Context, uuid.UUID) error               { return nil }
func (m *mockStore) MarkResuming(context.Context, uuid.UUID, string) error        { return nil }
func (m *mockStore) DeleteJob(context.Context, uuid.UUID) error                   { return nil }
func (m *mockStore) ListRecentJobs(context.Context, uuid.UUID, int) ([]store.SyncJob, error) {
	return m.listJobsResp, m.listJobsErr
}
func (m *mockStore) ListStalledJobs(context.Context, time.Time) ([]store.SyncJob, error) {
	return nil, nil
}
func (m *mockStore) CountActiveJobs(context.Context) (int64, error) { return 0, nil }
func (m *mockStore) CancelActiveJobs(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}
func (m *mockStore) ClearTerminalJobs(_ context.Context, tenantID uuid.UUID) (int64, error) {
	m.clearedForTenant = tenantID
	return m.clearedCount, m.clearErr
}

// mockSyncer implements Syncer with canned responses.
type mockSyncer struct {
	startJobID     uuid.UUID
	startErr       error
	startReq       *engine.StartRequest
	cancelErr      error
	cancelledJob   uuid.UUID
	resumeErr      error
	resumedJob     uuid.UUID
	cancelAllCount int64
	purgedCount    int64
	purgeErr       error
}

func (m *mockSyncer) StartJob(_ context.Context, req engine.StartRequest) (uuid.UUID, error) {
	m.startReq = &req
	return m.startJobID, m.startErr
}
func (m *mockSyncer) CancelJob(_ context.Context, jobID uuid.UUID) error {
	m.cancelledJob = jobID
	return m.cancelErr
}
func (m *mockSyncer) CancelAllForTenant(context.Context, uuid.UUID) (int64, error) {
	return m.cancelAllCount, nil
}
func (m *mockSyncer) PurgeTenantDocuments(context.Context, uuid.UUID) (int64, error) {
	return m.purgedCount, m.purgeErr
}
func (m *mockSyncer) ResumeJob(_ context.Context, jobID uuid.UUID) error {
	m.resumedJob = jobID
	return m.resumeErr
}
