package core

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	temporalmocks "go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/tenancy/internal/boundary"
	"github.com/edvin/tenancy/internal/crypto"
	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/tenancy"
)

var testKey = bytes.Repeat([]byte{7}, crypto.KeySize)

type recordingRefresher struct {
	mu      sync.Mutex
	tenants []string
}

func (r *recordingRefresher) RefreshConnections(_ context.Context, tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = append(r.tenants, tenantID)
}

type recordingSecretSaver struct {
	tenantID string
	kind     model.ConnectionKind
	secret   string
}

func (s *recordingSecretSaver) SaveConnection(_ context.Context, tenantID string, kind model.ConnectionKind, secret string, _ *time.Time) error {
	s.tenantID, s.kind, s.secret = tenantID, kind, secret
	return nil
}

func (s *recordingSecretSaver) DeleteConnection(context.Context, string, model.ConnectionKind) error {
	return nil
}

func newLifecycle(db *mockDB, tc *temporalmocks.Client, refresher ConnectionRefresher) *TenantLifecycleService {
	return NewTenantLifecycleService(NewTenantService(db), NewConnectionService(db), tc, testKey, refresher, zerolog.Nop())
}

func expectNameExists(db *mockDB, name string, exists bool) {
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{name}).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*bool)) = exists
			return nil
		}})
}

// ---------- Create ----------

func TestLifecycle_Create_Success(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	run := &temporalmocks.WorkflowRun{}
	svc := newLifecycle(db, tc, &recordingRefresher{})
	ctx := context.Background()

	expectNameExists(db, "acme", false)

	var captured model.CreateTenantParams
	tc.On("ExecuteWorkflow", ctx, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == "create-tenant-acme" && o.TaskQueue == TaskQueue
	}), "CreateTenantWorkflow", mock.AnythingOfType("model.CreateTenantParams")).
		Run(func(args mock.Arguments) {
			captured = args.Get(3).(model.CreateTenantParams)
		}).Return(run, nil)
	run.On("Get", ctx, mock.Anything).Run(func(args mock.Arguments) {
		out := args.Get(1).(*model.TenantResult)
		tenant := captured.Tenant
		out.Tenant = &tenant
	}).Return(nil)

	res := svc.Create(ctx, CreateTenantRequest{
		Name:     "  ACME ",
		Database: &ConnectionInput{Provider: model.ProviderPostgres, Credential: "postgres://u:p@db/acme"},
		Admin:    &AdminInput{Email: "Admin@Acme.test", Password: "s3cret-pass"},
	})

	require.True(t, res.Succeeded(), "%v", res.Failure)
	assert.Equal(t, "acme", res.Tenant.Name)
	assert.True(t, res.Tenant.IsActive)
	assert.NotEmpty(t, res.Tenant.ID)

	require.Len(t, captured.Connections, 1)
	conn := captured.Connections[0]
	assert.Equal(t, model.ConnectionKindDatabase, conn.Kind)
	assert.True(t, crypto.IsEncrypted(conn.EncryptedCredential))
	plain, err := crypto.Decrypt(conn.EncryptedCredential, testKey)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/acme", string(plain))

	require.NotNil(t, captured.Admin)
	assert.Equal(t, "admin@acme.test", captured.Admin.Email)
	assert.True(t, crypto.CheckPassword(captured.Admin.PasswordHash, "s3cret-pass"))
	assert.Equal(t, model.DefaultTemplateSet, captured.TemplateSetID)

	tc.AssertExpectations(t)
	run.AssertExpectations(t)
}

func TestLifecycle_Create_NoConnections(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	run := &temporalmocks.WorkflowRun{}
	svc := newLifecycle(db, tc, &recordingRefresher{})
	ctx := context.Background()

	expectNameExists(db, "acme", false)
	tc.On("ExecuteWorkflow", ctx, mock.Anything, "CreateTenantWorkflow",
		mock.MatchedBy(func(p model.CreateTenantParams) bool {
			return len(p.Connections) == 0 && p.Admin == nil
		})).Return(run, nil)
	run.On("Get", ctx, mock.Anything).Return(nil)

	res := svc.Create(ctx, CreateTenantRequest{Name: "acme"})
	assert.True(t, res.Succeeded())
	tc.AssertExpectations(t)
}

func TestLifecycle_Create_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		req   CreateTenantRequest
		field string
	}{
		{"empty name", CreateTenantRequest{Name: "   "}, "name"},
		{"bad characters", CreateTenantRequest{Name: "acme corp!"}, "name"},
		{"underscore", CreateTenantRequest{Name: "acme_corp"}, "name"},
		{"bad admin email", CreateTenantRequest{Name: "acme", Admin: &AdminInput{Email: "nope", Password: "longenough"}}, "email"},
		{"unknown provider", CreateTenantRequest{Name: "acme", Storage: &ConnectionInput{Provider: "ftp"}}, "provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockDB{}
			tc := &temporalmocks.Client{}
			svc := newLifecycle(db, tc, &recordingRefresher{})

			res := svc.Create(context.Background(), tt.req)

			require.False(t, res.Succeeded())
			assert.Equal(t, model.FailureValidation, res.Failure.Code)
			assert.Contains(t, res.Failure.Fields, tt.field)
			db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
			tc.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestLifecycle_Create_DuplicateName(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := newLifecycle(db, tc, &recordingRefresher{})

	expectNameExists(db, "acme", true)

	res := svc.Create(context.Background(), CreateTenantRequest{Name: "ACME"})
	require.False(t, res.Succeeded())
	assert.Equal(t, model.FailureDuplicateName, res.Failure.Code)
	tc.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLifecycle_Create_DuplicateRaceInWorkflow(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	run := &temporalmocks.WorkflowRun{}
	svc := newLifecycle(db, tc, &recordingRefresher{})
	ctx := context.Background()

	expectNameExists(db, "acme", false)
	tc.On("ExecuteWorkflow", ctx, mock.Anything, "CreateTenantWorkflow", mock.Anything).Return(run, nil)
	run.On("Get", ctx, mock.Anything).
		Return(temporal.NewNonRetryableApplicationError("tenant acme exists", model.ErrTypeDuplicateName, nil))

	res := svc.Create(ctx, CreateTenantRequest{Name: "acme"})
	require.False(t, res.Succeeded())
	assert.Equal(t, model.FailureDuplicateName, res.Failure.Code)
}

func TestLifecycle_Create_StartError(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	svc := newLifecycle(db, tc, &recordingRefresher{})
	ctx := context.Background()

	expectNameExists(db, "acme", false)
	tc.On("ExecuteWorkflow", ctx, mock.Anything, "CreateTenantWorkflow", mock.Anything).
		Return(nil, errors.New("temporal unavailable"))

	res := svc.Create(ctx, CreateTenantRequest{Name: "acme"})
	require.False(t, res.Succeeded())
	assert.Equal(t, model.FailureStepFailed, res.Failure.Code)
	assert.Contains(t, res.Failure.Message, "temporal unavailable")
}

// ---------- Deactivate / Reactivate ----------

func TestLifecycle_Deactivate_RefreshesConnections(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	run := &temporalmocks.WorkflowRun{}
	refresher := &recordingRefresher{}
	svc := newLifecycle(db, tc, refresher)
	ctx := context.Background()

	tc.On("ExecuteWorkflow", ctx, mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == "deactivate-tenant-t1"
	}), "DeactivateTenantWorkflow", model.DeactivateTenantParams{TenantID: "t1", Reason: "unpaid"}).Return(run, nil)
	run.On("Get", ctx, mock.Anything).Run(func(args mock.Arguments) {
		out := args.Get(1).(*model.TenantResult)
		tenant := sampleTenant()
		tenant.Deactivate(time.Now(), "unpaid")
		out.Tenant = &tenant
	}).Return(nil)

	res := svc.Deactivate(ctx, "t1", "unpaid")
	require.True(t, res.Succeeded())
	assert.False(t, res.Tenant.IsActive)
	assert.Equal(t, []string{"t1"}, refresher.tenants)
}

func TestLifecycle_Deactivate_EmptyID(t *testing.T) {
	svc := newLifecycle(&mockDB{}, &temporalmocks.Client{}, &recordingRefresher{})
	res := svc.Deactivate(context.Background(), "", "x")
	require.False(t, res.Succeeded())
	assert.Equal(t, model.FailureValidation, res.Failure.Code)
}

func TestLifecycle_Reactivate_Refused(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	run := &temporalmocks.WorkflowRun{}
	svc := newLifecycle(db, tc, &recordingRefresher{})
	ctx := context.Background()

	tests := map[model.ConnectionKind]bool{model.ConnectionKindDatabase: true, model.ConnectionKindStorage: false}
	tc.On("ExecuteWorkflow", ctx, mock.Anything, "ReactivateTenantWorkflow", model.ReactivateTenantParams{TenantID: "t1"}).
		Return(run, nil)
	run.On("Get", ctx, mock.Anything).
		Return(temporal.NewNonRetryableApplicationError("storage probe failed", model.ErrTypeReactivationRefused, nil, tests))

	res := svc.Reactivate(ctx, "t1")
	require.False(t, res.Succeeded())
	assert.Equal(t, model.FailureReactivationRefused, res.Failure.Code)
	assert.Equal(t, tests, res.ConnectionTests)
}

func TestLifecycle_Reactivate_NotFound(t *testing.T) {
	db := &mockDB{}
	tc := &temporalmocks.Client{}
	run := &temporalmocks.WorkflowRun{}
	svc := newLifecycle(db, tc, &recordingRefresher{})
	ctx := context.Background()

	tc.On("ExecuteWorkflow", ctx, mock.Anything, "ReactivateTenantWorkflow", mock.Anything).Return(run, nil)
	run.On("Get", ctx, mock.Anything).
		Return(temporal.NewNonRetryableApplicationError("tenant t1 not found", model.ErrTypeNotFound, nil))

	res := svc.Reactivate(ctx, "t1")
	require.False(t, res.Succeeded())
	assert.Equal(t, model.FailureNotFound, res.Failure.Code)
}

// ---------- EnsureGlobalTenant ----------

func TestLifecycle_EnsureGlobalTenant_Creates(t *testing.T) {
	db := &mockDB{}
	svc := newLifecycle(db, &temporalmocks.Client{}, &recordingRefresher{})
	ctx := context.Background()
	id := "00000000-0000-0000-0000-000000000001"

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{id}).
		Return(&mockRow{scanFunc: errScan(pgx.ErrNoRows)})
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return args[0] == id && args[1] == "global" && args[2] == "Global" && args[3] == true
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, svc.EnsureGlobalTenant(ctx, id, "Global"))
	db.AssertExpectations(t)
}

func TestLifecycle_EnsureGlobalTenant_Exists(t *testing.T) {
	db := &mockDB{}
	svc := newLifecycle(db, &temporalmocks.Client{}, &recordingRefresher{})
	ctx := context.Background()
	tenant := sampleTenant()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{tenant.ID}).
		Return(&mockRow{scanFunc: tenantScan(tenant)})

	require.NoError(t, svc.EnsureGlobalTenant(ctx, tenant.ID, "Global"))
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

// ---------- SaveConnection ----------

func TestLifecycle_SaveConnection(t *testing.T) {
	db := &mockDB{}
	refresher := &recordingRefresher{}
	saver := &recordingSecretSaver{}
	svc := newLifecycle(db, &temporalmocks.Client{}, refresher).WithSecretSaver(saver)
	ctx := context.Background()
	tenant := sampleTenant()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{tenant.ID}).
		Return(&mockRow{scanFunc: tenantScan(tenant)})
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		enc, ok := args[4].(string)
		return ok && crypto.IsEncrypted(enc) && args[2] == "storage"
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	rec, err := svc.SaveConnection(ctx, tenant.ID, model.ConnectionKindStorage, ConnectionInput{
		Provider:      model.ProviderS3,
		Credential:    "endpoint=http://minio:9000;access_key=a;secret_key=b",
		ContainerName: "acme-bucket",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProviderS3, rec.Provider)
	require.NotNil(t, rec.ContainerName)
	assert.Equal(t, "acme-bucket", *rec.ContainerName)
	assert.Equal(t, []string{tenant.ID}, refresher.tenants)
	assert.Equal(t, model.ConnectionKindStorage, saver.kind)
	assert.Equal(t, "endpoint=http://minio:9000;access_key=a;secret_key=b", saver.secret)
}

func TestLifecycle_SaveConnection_UnknownTenant(t *testing.T) {
	db := &mockDB{}
	refresher := &recordingRefresher{}
	svc := newLifecycle(db, &temporalmocks.Client{}, refresher)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"missing"}).
		Return(&mockRow{scanFunc: errScan(pgx.ErrNoRows)})

	_, err := svc.SaveConnection(ctx, "missing", model.ConnectionKindDatabase, ConnectionInput{Provider: model.ProviderPostgres})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, refresher.tenants)
}

// ---------- Tenant boundary ----------

func callerContext(tenantID string, roles ...string) context.Context {
	tc := tenancy.New(tenancy.Options{MultiTenancyEnabled: true}, nil, zerolog.Nop())
	tc.SetCurrentTenant(context.Background(), tenantID)
	_ = tc.SetCurrentUser(context.Background(), &tenancy.Identity{UserID: "u1", Roles: roles})
	return tenancy.WithContext(context.Background(), tc)
}

func TestLifecycle_SaveConnection_OtherTenantDenied(t *testing.T) {
	db := &mockDB{}
	refresher := &recordingRefresher{}
	svc := newLifecycle(db, &temporalmocks.Client{}, refresher).WithEnforcer(boundary.NewEnforcer(zerolog.Nop()))
	ctx := callerContext("other-tenant", "member")
	tenant := sampleTenant()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{tenant.ID}).
		Return(&mockRow{scanFunc: tenantScan(tenant)})

	_, err := svc.SaveConnection(ctx, tenant.ID, model.ConnectionKindDatabase, ConnectionInput{
		Provider:   model.ProviderPostgres,
		Credential: "postgres://app:pw@db:5432/acme",
	})
	require.ErrorIs(t, err, boundary.ErrViolation)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, refresher.tenants)
}

func TestLifecycle_SaveConnection_RootActsAsTarget(t *testing.T) {
	db := &mockDB{}
	svc := newLifecycle(db, &temporalmocks.Client{}, &recordingRefresher{}).WithEnforcer(boundary.NewEnforcer(zerolog.Nop()))
	ctx := callerContext("", model.RoleRoot)
	tenant := sampleTenant()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{tenant.ID}).
		Return(&mockRow{scanFunc: tenantScan(tenant)})
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	rec, err := svc.SaveConnection(ctx, tenant.ID, model.ConnectionKindDatabase, ConnectionInput{
		Provider:   model.ProviderPostgres,
		Credential: "postgres://app:pw@db:5432/acme",
	})
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, rec.GetTenantID())
}

func TestLifecycle_Deactivate_OtherTenantDenied(t *testing.T) {
	tc := &temporalmocks.Client{}
	refresher := &recordingRefresher{}
	svc := newLifecycle(&mockDB{}, tc, refresher).WithEnforcer(boundary.NewEnforcer(zerolog.Nop()))
	ctx := callerContext("other-tenant", "member")

	res := svc.Deactivate(ctx, "t1", "unpaid")
	require.False(t, res.Succeeded())
	assert.Equal(t, model.FailureBoundaryViolation, res.Failure.Code)
	tc.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, refresher.tenants)

	res = svc.Reactivate(ctx, "t1")
	require.False(t, res.Succeeded())
	assert.Equal(t, model.FailureBoundaryViolation, res.Failure.Code)
	assert.Empty(t, refresher.tenants)
}

func TestLifecycle_Deactivate_OwnTenantAllowed(t *testing.T) {
	tc := &temporalmocks.Client{}
	run := &temporalmocks.WorkflowRun{}
	svc := newLifecycle(&mockDB{}, tc, &recordingRefresher{}).WithEnforcer(boundary.NewEnforcer(zerolog.Nop()))
	ctx := callerContext("t1", "member")

	tc.On("ExecuteWorkflow", ctx, mock.Anything, "DeactivateTenantWorkflow", mock.Anything).Return(run, nil)
	run.On("Get", ctx, mock.Anything).Run(func(args mock.Arguments) {
		tenant := sampleTenant()
		args.Get(1).(*model.TenantResult).Tenant = &tenant
	}).Return(nil)

	res := svc.Deactivate(ctx, "t1", "unpaid")
	assert.True(t, res.Succeeded())
}
