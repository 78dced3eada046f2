package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/tenancy/internal/boundary"
	"github.com/edvin/tenancy/internal/crypto"
	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/platform"
	"github.com/edvin/tenancy/internal/tenancy"
)

// TaskQueue is the Temporal task queue the tenant lifecycle worker polls.
const TaskQueue = "tenancy-tasks"

// ConnectionInput is a caller-supplied connection. Credential is plaintext and
// is encrypted before it leaves the service.
type ConnectionInput struct {
	Provider      string            `json:"provider" validate:"required,oneof=postgres s3 filesystem"`
	Credential    string            `json:"credential"`
	DatabaseName  string            `json:"database_name"`
	ContainerName string            `json:"container_name"`
	Settings      map[string]string `json:"settings"`
}

type AdminInput struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password" validate:"required,min=8"`
}

type CreateTenantRequest struct {
	Name            string            `json:"name" validate:"required,max=63"`
	DisplayName     string            `json:"display_name" validate:"max=255"`
	Settings        map[string]string `json:"settings"`
	Tags            []string          `json:"tags"`
	TemplateSetID   string            `json:"template_set_id"`
	Database        *ConnectionInput  `json:"database" validate:"omitempty"`
	Storage         *ConnectionInput  `json:"storage" validate:"omitempty"`
	Admin           *AdminInput       `json:"admin" validate:"omitempty"`
	TestConnections bool              `json:"test_connections"`
}

// ConnectionRefresher drops any cached connection state for a tenant.
type ConnectionRefresher interface {
	RefreshConnections(ctx context.Context, tenantID string)
}

// SecretSaver pushes plaintext credentials to an external secret store and
// removes them again.
type SecretSaver interface {
	SaveConnection(ctx context.Context, tenantID string, kind model.ConnectionKind, secret string, expiresAt *time.Time) error
	DeleteConnection(ctx context.Context, tenantID string, kind model.ConnectionKind) error
}

// TenantLifecycleService runs the administrative tenant operations. Multi-step
// operations are delegated to Temporal workflows.
type TenantLifecycleService struct {
	tenants     *TenantService
	connections *ConnectionService
	tc          client.Client
	key         []byte
	refresher   ConnectionRefresher
	secrets     SecretSaver
	enforcer    *boundary.Enforcer
	validate    *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

func NewTenantLifecycleService(tenants *TenantService, connections *ConnectionService, tc client.Client, key []byte, refresher ConnectionRefresher, logger zerolog.Logger) *TenantLifecycleService {
	return &TenantLifecycleService{
		tenants:     tenants,
		connections: connections,
		tc:          tc,
		key:         key,
		refresher:   refresher,
		validate:    validator.New(),
		logger:      logger.With().Str("component", "tenant-lifecycle").Logger(),
		now:         time.Now,
	}
}

// WithSecretSaver makes SaveConnection also push credentials to a secret store.
func (s *TenantLifecycleService) WithSecretSaver(saver SecretSaver) *TenantLifecycleService {
	s.secrets = saver
	return s
}

// WithEnforcer checks tenant-scoped writes and workflow dispatches against
// the caller's tenant context.
func (s *TenantLifecycleService) WithEnforcer(enforcer *boundary.Enforcer) *TenantLifecycleService {
	s.enforcer = enforcer
	return s
}

// actingScope returns the tenant an operation on tenantID runs as, or nil
// when no boundary check applies. Root callers act as the tenant they
// administer; everyone else stays in their own tenant.
func (s *TenantLifecycleService) actingScope(ctx context.Context, tenantID string) boundary.TenantSource {
	if s.enforcer == nil {
		return nil
	}
	tc := tenancy.FromContext(ctx)
	if tc == nil {
		return nil
	}
	if tc.IsRoot() {
		return boundary.Scope{TenantID: tenantID, MultiTenant: tc.IsMultiTenancyEnabled()}
	}
	return tc
}

// dispatchAllowed runs the event check for a workflow raised for tenantID.
func (s *TenantLifecycleService) dispatchAllowed(ctx context.Context, tenantID string) bool {
	src := s.actingScope(ctx, tenantID)
	return src == nil || s.enforcer.ValidateEventAccess(src, tenantID)
}

// Create validates the request, rejects duplicate names and runs
// CreateTenantWorkflow. Resubmitting a request for a name whose creation is
// still in flight attaches to the running workflow.
func (s *TenantLifecycleService) Create(ctx context.Context, req CreateTenantRequest) model.TenantResult {
	req.Name = platform.NormalizeTenantName(req.Name)
	if res, ok := s.validateCreate(req); !ok {
		return res
	}

	exists, err := s.tenants.NameExists(ctx, req.Name)
	if err != nil {
		return model.Fail(model.FailureStepFailed, err.Error())
	}
	if exists {
		return model.Fail(model.FailureDuplicateName, fmt.Sprintf("tenant %q already exists", req.Name))
	}

	params, err := s.buildCreateParams(req)
	if err != nil {
		return model.Fail(model.FailureStepFailed, err.Error())
	}

	var result model.TenantResult
	err = s.runWorkflow(ctx, "create-tenant-"+req.Name, "CreateTenantWorkflow", params, &result)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant", req.Name).Msg("create tenant failed")
		return failureFromWorkflow(err)
	}

	s.logger.Info().Str("tenant_id", params.Tenant.ID).Str("tenant", req.Name).Msg("tenant created")
	return result
}

// Deactivate marks a tenant and its users inactive and drops cached
// connection state for it.
func (s *TenantLifecycleService) Deactivate(ctx context.Context, tenantID, reason string) model.TenantResult {
	if tenantID == "" {
		return model.Fail(model.FailureValidation, "tenant id is required")
	}
	if !s.dispatchAllowed(ctx, tenantID) {
		return model.Fail(model.FailureBoundaryViolation, "tenant "+tenantID+" is outside the caller's tenant")
	}

	var result model.TenantResult
	err := s.runWorkflow(ctx, "deactivate-tenant-"+tenantID, "DeactivateTenantWorkflow",
		model.DeactivateTenantParams{TenantID: tenantID, Reason: reason}, &result)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("deactivate tenant failed")
		return failureFromWorkflow(err)
	}

	s.refresher.RefreshConnections(ctx, tenantID)
	s.logger.Info().Str("tenant_id", tenantID).Str("reason", reason).Msg("tenant deactivated")
	return result
}

// Reactivate re-enables a tenant. It is refused when any connection probe
// fails.
func (s *TenantLifecycleService) Reactivate(ctx context.Context, tenantID string) model.TenantResult {
	if tenantID == "" {
		return model.Fail(model.FailureValidation, "tenant id is required")
	}
	if !s.dispatchAllowed(ctx, tenantID) {
		return model.Fail(model.FailureBoundaryViolation, "tenant "+tenantID+" is outside the caller's tenant")
	}

	s.refresher.RefreshConnections(ctx, tenantID)

	var result model.TenantResult
	err := s.runWorkflow(ctx, "reactivate-tenant-"+tenantID, "ReactivateTenantWorkflow",
		model.ReactivateTenantParams{TenantID: tenantID}, &result)
	if err != nil {
		s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("reactivate tenant failed")
		return failureFromWorkflow(err)
	}

	s.logger.Info().Str("tenant_id", tenantID).Msg("tenant reactivated")
	return result
}

// EnsureGlobalTenant creates the global tenant row if it does not exist.
func (s *TenantLifecycleService) EnsureGlobalTenant(ctx context.Context, id, displayName string) error {
	_, err := s.tenants.GetByID(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("ensure global tenant: %w", err)
	}

	name := strings.ReplaceAll(platform.NormalizeTenantName(displayName), " ", "-")
	if !platform.ValidTenantName(name) {
		name = "global"
	}
	tenant := &model.Tenant{
		ID:          id,
		Name:        name,
		DisplayName: displayName,
		IsActive:    true,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return fmt.Errorf("ensure global tenant: %w", err)
	}
	s.logger.Info().Str("tenant_id", id).Str("tenant", name).Msg("global tenant created")
	return nil
}

// SaveConnection replaces a tenant's connection of the given kind and
// invalidates cached parameters for the tenant.
func (s *TenantLifecycleService) SaveConnection(ctx context.Context, tenantID string, kind model.ConnectionKind, in ConnectionInput) (*model.ConnectionRecord, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("validate connection: %w", err)
	}
	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}

	spec, err := s.connectionSpec(kind, in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rec := RecordFromSpec(tenantID, spec, now)
	if src := s.actingScope(ctx, tenantID); src != nil {
		if err := s.enforcer.EnsureEntityTenantContext(src, rec); err != nil {
			return nil, err
		}
	}
	if err := s.connections.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	if s.secrets != nil && in.Credential != "" {
		if err := s.secrets.SaveConnection(ctx, tenantID, kind, in.Credential, nil); err != nil {
			return nil, fmt.Errorf("save %s secret for tenant %s: %w", kind, tenantID, err)
		}
	}

	s.refresher.RefreshConnections(ctx, tenantID)
	s.logger.Info().Str("tenant_id", tenantID).Str("kind", string(kind)).Str("provider", rec.Provider).
		Msg("tenant connection saved")
	return rec, nil
}

// RecordFromSpec builds the persisted form of a connection spec.
func RecordFromSpec(tenantID string, spec model.ConnectionSpec, at time.Time) *model.ConnectionRecord {
	rec := &model.ConnectionRecord{
		ID:                  platform.NewID(),
		TenantID:            tenantID,
		Kind:                spec.Kind,
		Provider:            spec.Provider,
		EncryptedCredential: spec.EncryptedCredential,
		Settings:            spec.Settings,
		IsActive:            true,
		CreatedAt:           at,
		UpdatedAt:           at,
	}
	if spec.DatabaseName != "" {
		rec.DatabaseName = &spec.DatabaseName
	}
	if spec.ContainerName != "" {
		rec.ContainerName = &spec.ContainerName
	}
	return rec
}

func (s *TenantLifecycleService) validateCreate(req CreateTenantRequest) (model.TenantResult, bool) {
	fields := map[string]string{}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return model.Fail(model.FailureValidation, err.Error()), false
		}
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	if req.Name != "" && !platform.ValidTenantName(req.Name) {
		fields["name"] = "format"
	}
	if len(fields) == 0 {
		return model.TenantResult{}, true
	}

	res := model.Fail(model.FailureValidation, "invalid create tenant request")
	res.Failure.Fields = fields
	return res, false
}

func (s *TenantLifecycleService) buildCreateParams(req CreateTenantRequest) (model.CreateTenantParams, error) {
	now := s.now().UTC()
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Name
	}
	templateSet := req.TemplateSetID
	if templateSet == "" {
		templateSet = model.DefaultTemplateSet
	}

	params := model.CreateTenantParams{
		Tenant: model.Tenant{
			ID:            platform.NewID(),
			Name:          req.Name,
			DisplayName:   displayName,
			IsActive:      true,
			CreatedAt:     now,
			Settings:      req.Settings,
			Tags:          req.Tags,
			TemplateSetID: &templateSet,
		},
		TemplateSetID:   templateSet,
		TestConnections: req.TestConnections,
	}

	inputs := []struct {
		kind model.ConnectionKind
		in   *ConnectionInput
	}{
		{model.ConnectionKindDatabase, req.Database},
		{model.ConnectionKindStorage, req.Storage},
	}
	for _, c := range inputs {
		if c.in == nil {
			continue
		}
		spec, err := s.connectionSpec(c.kind, *c.in)
		if err != nil {
			return params, err
		}
		params.Connections = append(params.Connections, spec)
	}

	if req.Admin != nil {
		hash, err := crypto.HashPassword(req.Admin.Password)
		if err != nil {
			return params, fmt.Errorf("hash admin password: %w", err)
		}
		params.Admin = &model.AdminSpec{
			Email:        strings.ToLower(strings.TrimSpace(req.Admin.Email)),
			DisplayName:  req.Admin.DisplayName,
			PasswordHash: hash,
		}
	}
	return params, nil
}

func (s *TenantLifecycleService) connectionSpec(kind model.ConnectionKind, in ConnectionInput) (model.ConnectionSpec, error) {
	spec := model.ConnectionSpec{
		Kind:          kind,
		Provider:      in.Provider,
		DatabaseName:  in.DatabaseName,
		ContainerName: in.ContainerName,
		Settings:      in.Settings,
	}
	if in.Credential != "" {
		enc, err := crypto.Encrypt([]byte(in.Credential), s.key)
		if err != nil {
			return spec, fmt.Errorf("encrypt %s credential: %w", kind, err)
		}
		spec.EncryptedCredential = enc
	}
	return spec, nil
}

func (s *TenantLifecycleService) runWorkflow(ctx context.Context, id, workflowName string, params any, out *model.TenantResult) error {
	run, err := s.tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: TaskQueue,
	}, workflowName, params)
	if err != nil {
		return fmt.Errorf("start %s: %w", workflowName, err)
	}
	if err := run.Get(ctx, out); err != nil {
		return fmt.Errorf("%s: %w", workflowName, err)
	}
	return nil
}

func failureFromWorkflow(err error) model.TenantResult {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case model.ErrTypeDuplicateName:
			return model.Fail(model.FailureDuplicateName, appErr.Message())
		case model.ErrTypeNotFound:
			return model.Fail(model.FailureNotFound, appErr.Message())
		case model.ErrTypeReactivationRefused:
			res := model.Fail(model.FailureReactivationRefused, appErr.Message())
			var tests map[model.ConnectionKind]bool
			if appErr.HasDetails() && appErr.Details(&tests) == nil {
				res.ConnectionTests = tests
			}
			return res
		}
	}
	return model.Fail(model.FailureStepFailed, err.Error())
}
