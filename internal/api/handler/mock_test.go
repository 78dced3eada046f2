package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/edvin/tenancy/internal/cache"
	"github.com/edvin/tenancy/internal/core"
	"github.com/edvin/tenancy/internal/health"
	"github.com/edvin/tenancy/internal/model"
)

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) Create(ctx context.Context, req core.CreateTenantRequest) model.TenantResult {
	return m.Called(ctx, req).Get(0).(model.TenantResult)
}

func (m *mockLifecycle) Deactivate(ctx context.Context, tenantID, reason string) model.TenantResult {
	return m.Called(ctx, tenantID, reason).Get(0).(model.TenantResult)
}

func (m *mockLifecycle) Reactivate(ctx context.Context, tenantID string) model.TenantResult {
	return m.Called(ctx, tenantID).Get(0).(model.TenantResult)
}

func (m *mockLifecycle) SaveConnection(ctx context.Context, tenantID string, kind model.ConnectionKind, in core.ConnectionInput) (*model.ConnectionRecord, error) {
	args := m.Called(ctx, tenantID, kind, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConnectionRecord), args.Error(1)
}

type mockTenantStore struct {
	mock.Mock
}

func (m *mockTenantStore) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tenant), args.Error(1)
}

func (m *mockTenantStore) List(ctx context.Context, params core.ListParams) ([]model.Tenant, bool, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]model.Tenant), args.Bool(1), args.Error(2)
}

type mockConnections struct {
	mock.Mock
}

func (m *mockConnections) RefreshConnections(ctx context.Context, tenantID string) {
	m.Called(ctx, tenantID)
}

func (m *mockConnections) TestConnection(ctx context.Context, tenantID string) map[model.ConnectionKind]bool {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[model.ConnectionKind]bool)
}

type mockHealthChecker struct {
	mock.Mock
}

func (m *mockHealthChecker) TenantSystem(ctx context.Context) health.Report {
	return m.Called(ctx).Get(0).(health.Report)
}

func (m *mockHealthChecker) AllTenants(ctx context.Context) health.Report {
	return m.Called(ctx).Get(0).(health.Report)
}

type mockCacheMetrics struct {
	mock.Mock
}

func (m *mockCacheMetrics) Summary() cache.Summary {
	return m.Called().Get(0).(cache.Summary)
}

func (m *mockCacheMetrics) Snapshot() []cache.TenantMetrics {
	return m.Called().Get(0).([]cache.TenantMetrics)
}
