package rbac

import "strings"

// Role names recognised by the access policy.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
	RoleGuest = "guest"
)

// Capability names guard route groups.
const (
	CapView        = "billing.view"
	CapCollect     = "billing.collect"
	CapManage      = "catalog.manage"
	CapAdminReport = "admin.report"
)

var policy = map[string][]string{
	RoleAdmin: {CapView, CapCollect, CapManage, CapAdminReport},
	RoleUser:  {CapView, CapCollect, CapManage},
	RoleGuest: {CapView},
}

// Capabilities returns the capabilities granted to role.
func Capabilities(role string) []string {
	return policy[normalize(role)]
}

// Allowed reports whether role grants every capability in caps.
func Allowed(role string, caps ...string) bool {
	granted := make(map[string]struct{})
	for _, c := range Capabilities(role) {
		granted[c] = struct{}{}
	}
	for _, c := range caps {
		if _, ok := granted[normalize(c)]; !ok {
			return false
		}
	}
	return true
}

func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
