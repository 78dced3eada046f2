package model

// Failure codes carried by TenantResult.
const (
	FailureValidation          = "validation"
	FailureDuplicateName       = "duplicate_name"
	FailureNotFound            = "not_found"
	FailureStepFailed          = "step_failed"
	FailureReactivationRefused = "reactivation_refused"
	FailureBoundaryViolation   = "boundary_violation"
)

// Failure describes why a lifecycle operation did not complete.
type Failure struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (f *Failure) Error() string {
	return f.Code + ": " + f.Message
}

// TenantResult is the outcome of a lifecycle operation. Exactly one of
// Tenant and Failure is set.
type TenantResult struct {
	Tenant          *Tenant                 `json:"tenant,omitempty"`
	ConnectionTests map[ConnectionKind]bool `json:"connection_tests,omitempty"`
	Failure         *Failure                `json:"failure,omitempty"`
}

// Succeeded reports whether the operation completed.
func (r TenantResult) Succeeded() bool {
	return r.Failure == nil
}

// Fail builds a failed TenantResult.
func Fail(code, message string) TenantResult {
	return TenantResult{Failure: &Failure{Code: code, Message: message}}
}
