package workflow

import (
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/tenancy/internal/activity"
)

// registerActivities registers the activity structs with the test environment
// so parameter and result types deserialize correctly. Tests still mock every
// activity with OnActivity.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.TenantLifecycle{})
	env.RegisterActivity(&activity.Maintenance{})
}
