package shared

// Interface tags a role may be exposed through.
const (
	InterfaceAdmin  = "admin"
	InterfaceClient = "client"
	InterfaceAPI    = "api"
)

// Interfaces lists every valid client-interface tag.
func Interfaces() []string {
	return []string{InterfaceAdmin, InterfaceClient, InterfaceAPI}
}

// ValidInterface reports whether tag is a known client-interface tag.
func ValidInterface(tag string) bool {
	for _, t := range Interfaces() {
		if t == tag {
			return true
		}
	}
	return false
}

// System permissions tenants may grant through custom roles.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermProjectsView   = "projects.view"
	PermProjectsEdit   = "projects.edit"
	PermProjectsCreate = "projects.create"

	PermPaymentsView    = "payments.view"
	PermPaymentsApprove = "payments.approve"

	PermRequestsView = "requests.view"
	PermRequestsEdit = "requests.edit"

	PermDashboardView = "dashboard.view"
	PermReportsView   = "reports.view"
)

// AssignableScopes lists every system permission a tenant-authored role may carry.
// Platform-level scopes (role administration, module management) are deliberately
// absent: those stay behind the built-in descriptors.
func AssignableScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermProjectsView,
		PermProjectsEdit,
		PermProjectsCreate,
		PermPaymentsView,
		PermPaymentsApprove,
		PermRequestsView,
		PermRequestsEdit,
		PermDashboardView,
		PermReportsView,
	}
}
