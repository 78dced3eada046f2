package core

// Services groups the registry services that share a database handle.
type Services struct {
	Tenant     *TenantService
	Connection *ConnectionService
	User       *UserService
	Role       *RoleService
	Content    *ContentService
}

func NewServices(db DB) *Services {
	return &Services{
		Tenant:     NewTenantService(db),
		Connection: NewConnectionService(db),
		User:       NewUserService(db),
		Role:       NewRoleService(db),
		Content:    NewContentService(db),
	}
}
