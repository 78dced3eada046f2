package workflow

import (
	"fmt"
	"slices"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/multierr"

	"github.com/edvin/tenancy/internal/model"
)

// CreateTenantWorkflow persists a new tenant with its connection records,
// seeded content and optional admin identity. When a step fails, the steps
// already completed are undone in reverse order.
func CreateTenantWorkflow(ctx workflow.Context, params model.CreateTenantParams) (result model.TenantResult, err error) {
	ctx = workflow.WithActivityOptions(ctx, lifecycleActivityOptions())
	logger := workflow.GetLogger(ctx)
	tenantID := params.Tenant.ID

	var undo compensations
	defer func() {
		if err == nil {
			return
		}
		if cerr := undo.run(ctx); cerr != nil {
			logger.Error("tenant creation rollback incomplete", "tenant_id", tenantID, "error", cerr)
		}
	}()

	if err = workflow.ExecuteActivity(ctx, "CreateTenantRecord", params.Tenant).Get(ctx, nil); err != nil {
		return model.TenantResult{}, err
	}
	undo.add("DeleteTenantRecord", tenantID)

	now := workflow.Now(ctx)
	for _, spec := range params.Connections {
		err = workflow.ExecuteActivity(ctx, "SaveConnectionRecord", model.SaveConnectionParams{
			TenantID:   tenantID,
			Connection: spec,
			At:         now,
		}).Get(ctx, nil)
		if err != nil {
			return model.TenantResult{}, err
		}
		undo.add("DeleteConnectionRecord", model.DeleteConnectionParams{TenantID: tenantID, Kind: spec.Kind})
	}

	err = workflow.ExecuteActivity(ctx, "InitializeTenantContent", model.InitializeContentParams{
		TenantID:      tenantID,
		TemplateSetID: params.TemplateSetID,
	}).Get(ctx, nil)
	if err != nil {
		return model.TenantResult{}, err
	}
	undo.add("RemoveTenantContent", tenantID)

	if params.Admin != nil {
		var userID string
		err = workflow.ExecuteActivity(ctx, "CreateAdminIdentity", model.CreateAdminIdentityParams{
			TenantID: tenantID,
			Admin:    *params.Admin,
			At:       now,
		}).Get(ctx, &userID)
		if err != nil {
			return model.TenantResult{}, err
		}
		undo.add("DeleteAdminIdentity", userID)
	}

	tenant := params.Tenant
	result = model.TenantResult{Tenant: &tenant}

	if params.TestConnections {
		var tests map[model.ConnectionKind]bool
		if terr := workflow.ExecuteActivity(ctx, "TestTenantConnections", tenantID).Get(ctx, &tests); terr != nil {
			logger.Warn("connection test failed to run", "tenant_id", tenantID, "error", terr)
		} else {
			result.ConnectionTests = tests
		}
	}

	return result, nil
}

// DeactivateTenantWorkflow marks a tenant inactive and cascades the flag to
// its users.
func DeactivateTenantWorkflow(ctx workflow.Context, params model.DeactivateTenantParams) (model.TenantResult, error) {
	ctx = workflow.WithActivityOptions(ctx, lifecycleActivityOptions())

	err := setTenantActive(ctx, model.SetTenantActiveParams{
		TenantID: params.TenantID,
		Active:   false,
		Reason:   params.Reason,
		At:       workflow.Now(ctx),
	})
	if err != nil {
		return model.TenantResult{}, err
	}
	return loadTenant(ctx, params.TenantID)
}

// ReactivateTenantWorkflow re-enables a tenant and its users. It refuses when
// any connection probe of the tenant fails.
func ReactivateTenantWorkflow(ctx workflow.Context, params model.ReactivateTenantParams) (model.TenantResult, error) {
	ctx = workflow.WithActivityOptions(ctx, lifecycleActivityOptions())

	if _, err := loadTenant(ctx, params.TenantID); err != nil {
		return model.TenantResult{}, err
	}

	var tests map[model.ConnectionKind]bool
	if err := workflow.ExecuteActivity(ctx, "TestTenantConnections", params.TenantID).Get(ctx, &tests); err != nil {
		return model.TenantResult{}, err
	}
	if failed := failedKinds(tests); len(failed) > 0 {
		return model.TenantResult{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("reactivation of tenant %s refused: connection test failed for %v", params.TenantID, failed),
			model.ErrTypeReactivationRefused, nil, tests)
	}

	err := setTenantActive(ctx, model.SetTenantActiveParams{
		TenantID: params.TenantID,
		Active:   true,
		At:       workflow.Now(ctx),
	})
	if err != nil {
		return model.TenantResult{}, err
	}

	result, err := loadTenant(ctx, params.TenantID)
	if err != nil {
		return model.TenantResult{}, err
	}
	result.ConnectionTests = tests
	return result, nil
}

func setTenantActive(ctx workflow.Context, params model.SetTenantActiveParams) error {
	if err := workflow.ExecuteActivity(ctx, "SetTenantActive", params).Get(ctx, nil); err != nil {
		return err
	}
	return workflow.ExecuteActivity(ctx, "SetTenantUsersActive", model.SetTenantUsersActiveParams{
		TenantID: params.TenantID,
		Active:   params.Active,
	}).Get(ctx, nil)
}

func loadTenant(ctx workflow.Context, tenantID string) (model.TenantResult, error) {
	var tenant model.Tenant
	if err := workflow.ExecuteActivity(ctx, "GetTenantByID", tenantID).Get(ctx, &tenant); err != nil {
		return model.TenantResult{}, err
	}
	return model.TenantResult{Tenant: &tenant}, nil
}

// failedKinds returns the kinds whose probe failed, sorted. An empty result
// set counts as a failure of every kind.
func failedKinds(tests map[model.ConnectionKind]bool) []model.ConnectionKind {
	var failed []model.ConnectionKind
	for _, kind := range model.ConnectionKinds {
		if !tests[kind] {
			failed = append(failed, kind)
		}
	}
	slices.Sort(failed)
	return failed
}

type compensation struct {
	activity string
	arg      any
}

// compensations undoes completed workflow steps.
type compensations []compensation

func (c *compensations) add(activity string, arg any) {
	*c = append(*c, compensation{activity: activity, arg: arg})
}

// run executes the compensations in reverse order on a context that survives
// cancellation of the workflow. Every compensation runs even if an earlier
// one fails.
func (c compensations) run(ctx workflow.Context) error {
	ctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()

	var errs error
	for i := len(c) - 1; i >= 0; i-- {
		step := c[i]
		if err := workflow.ExecuteActivity(ctx, step.activity, step.arg).Get(ctx, nil); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", step.activity, err))
		}
	}
	return errs
}
