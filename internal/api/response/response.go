package response

import (
	"encoding/json"
	"net/http"

	"github.com/edvin/tenancy/internal/model"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// PaginatedResponse wraps a list with pagination metadata.
type PaginatedResponse struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// WritePaginated writes a paginated JSON response.
func WritePaginated(w http.ResponseWriter, status int, items any, nextCursor string, hasMore bool) {
	WriteJSON(w, status, PaginatedResponse{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	})
}

// FailureStatus maps a lifecycle failure code to an HTTP status.
func FailureStatus(code string) int {
	switch code {
	case model.FailureValidation:
		return http.StatusBadRequest
	case model.FailureNotFound:
		return http.StatusNotFound
	case model.FailureBoundaryViolation:
		return http.StatusForbidden
	case model.FailureDuplicateName, model.FailureReactivationRefused:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteResult writes a lifecycle result: the result itself with okStatus on
// success, or the failure with its mapped status.
func WriteResult(w http.ResponseWriter, okStatus int, res model.TenantResult) {
	if res.Failure != nil {
		WriteJSON(w, FailureStatus(res.Failure.Code), res)
		return
	}
	WriteJSON(w, okStatus, res)
}
