package model

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrDuplicateName           = errors.New("duplicate tenant name")
	ErrConnectionNotConfigured = errors.New("connection not configured")
	ErrConnectionUnavailable   = errors.New("connection unavailable")
	ErrTenantInactive          = errors.New("tenant inactive")
	ErrReactivationRefused     = errors.New("reactivation refused: connection test failed")
)
