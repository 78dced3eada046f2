// Package api serves the tenancy control plane REST API: tenant lifecycle
// administration, connection refresh and probing, tenant health and cache
// metrics. Routes under /api/v1 require a bearer token and run with a
// validated tenant context.
package api
