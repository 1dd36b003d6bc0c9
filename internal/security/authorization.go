package security

import (
	"slices"

	"github.com/agrotrack/plotmanager/internal/domain"
)

// Permission represents an action permission
type Permission string

const (
	PermCreatePlot     Permission = "create_plot"
	PermReadOwnPlots   Permission = "read_own_plots"
	PermListAllPlots   Permission = "list_all_plots"
	PermListUsers      Permission = "list_users"
	PermManageAnyUser  Permission = "manage_any_user"
	PermManageAnyPlot  Permission = "manage_any_plot"
	PermAssignRole     Permission = "assign_role"
	PermReadUserPublic Permission = "read_user_public"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleAdmin: {
		PermCreatePlot,
		PermReadOwnPlots,
		PermListAllPlots,
		PermListUsers,
		PermManageAnyUser,
		PermManageAnyPlot,
		PermAssignRole,
		PermReadUserPublic,
	},
	domain.RoleUser: {
		PermCreatePlot,
		PermReadOwnPlots,
		PermReadUserPublic,
	},
}

// HasPermission checks if a role has a specific permission
func HasPermission(role domain.Role, permission Permission) bool {
	return slices.Contains(RolePermissions[role], permission)
}
