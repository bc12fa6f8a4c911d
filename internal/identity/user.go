package identity

// LocalsKey is the fiber locals key the auth middleware stores the user under.
const LocalsKey = "user"

// UserContext represents the authenticated user, set by auth middleware.
type UserContext struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole checks whether the user has a specific role.
func (u *UserContext) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Subject returns the user id, or nil for an anonymous request.
func (u *UserContext) Subject() any {
	if u == nil || u.ID == "" {
		return nil
	}
	return u.ID
}

// Map exposes the user to action condition expressions.
func (u *UserContext) Map() map[string]any {
	if u == nil {
		return map[string]any{"id": nil, "roles": []string{}}
	}
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return map[string]any{"id": u.ID, "roles": roles}
}
