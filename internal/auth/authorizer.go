package auth

import (
	"strings"

	"crud6-backend/internal/identity"
)

// GuestRole is the role of a request without a token.
const GuestRole = "guest"

// RoleAuthorizer grants capabilities such as "read.users" by role. A role's
// capability list may use "*" for a whole segment or as the final segment,
// so "read.*" covers every model and "*" covers everything.
type RoleAuthorizer struct {
	AdminRole string
	Roles     map[string][]string
}

func NewRoleAuthorizer(adminRole string, roles map[string][]string) *RoleAuthorizer {
	return &RoleAuthorizer{AdminRole: adminRole, Roles: roles}
}

// Can checks whether the user holds capability.
func (a *RoleAuthorizer) Can(user *identity.UserContext, capability string) bool {
	roles := []string{GuestRole}
	if user != nil {
		if a.AdminRole != "" && user.HasRole(a.AdminRole) {
			return true
		}
		roles = user.Roles
	}
	for _, role := range roles {
		for _, pattern := range a.Roles[role] {
			if MatchCapability(pattern, capability) {
				return true
			}
		}
	}
	return false
}

// MatchCapability matches a dotted capability against a pattern.
func MatchCapability(pattern, capability string) bool {
	if pattern == "*" || pattern == capability {
		return true
	}
	want := strings.Split(pattern, ".")
	got := strings.Split(capability, ".")
	for i, seg := range want {
		if seg == "*" && i == len(want)-1 {
			return len(got) >= len(want)
		}
		if i >= len(got) || (seg != "*" && seg != got[i]) {
			return false
		}
	}
	return len(want) == len(got)
}
