package request

import (
	"net/http"

	"github.com/edvin/tenancy/internal/core"
)

// ParseTenantList extracts tenant list parameters from the query string.
// status=active or status=inactive filters on the active flag.
func ParseTenantList(r *http.Request) core.ListParams {
	pg := ParsePagination(r)
	params := core.ListParams{
		Limit:  pg.Limit,
		Cursor: pg.Cursor,
		Search: r.URL.Query().Get("search"),
	}
	switch r.URL.Query().Get("status") {
	case "active":
		active := true
		params.Active = &active
	case "inactive":
		active := false
		params.Active = &active
	}
	return params
}
