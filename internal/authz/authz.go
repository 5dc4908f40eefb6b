// Package authz maps project roles to the capability set that gates graph
// editing and project management.
package authz

import (
	"fmt"
	"strings"
)

// Role is the acting user's permission level on one project.
type Role string

const (
	RoleOwner  Role = "owner"  // Full control, including visibility and members
	RoleAdmin  Role = "admin"  // Edit the graph, manage members
	RoleEditor Role = "editor" // Edit the graph
	RoleViewer Role = "viewer" // Read-only access
)

// AllRoles returns the roles from most to least privileged.
func AllRoles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleEditor, RoleViewer}
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q (want owner, admin, editor or viewer)", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Assignable reports whether r can be granted through an invitation or a
// role change. Ownership is never transferred that way.
func (r Role) Assignable() bool {
	return r == RoleAdmin || r == RoleEditor || r == RoleViewer
}

// Action is something a caller may try to do to a project.
type Action string

const (
	ActionView             Action = "project:view"
	ActionEdit             Action = "project:edit"
	ActionToggleVisibility Action = "project:visibility"
	ActionManageMembers    Action = "members:manage"
)

// Capabilities is the resolved permission set for one user on one project.
// It is computed once and handed to every component that gates behavior.
type Capabilities struct {
	Role      Role
	CanView   bool
	CanEdit   bool
	CanManage bool
}

// None is the capability set of a user with no role.
var None = Capabilities{}

// CapabilitiesFor derives the capability set for role. Unknown roles get
// nothing.
func CapabilitiesFor(role Role) Capabilities {
	if !role.Valid() {
		return None
	}
	return Capabilities{
		Role:      role,
		CanView:   true,
		CanEdit:   role == RoleOwner || role == RoleAdmin || role == RoleEditor,
		CanManage: role == RoleOwner || role == RoleAdmin,
	}
}

// Resolve combines an optional membership role with the project visibility.
// Public projects are viewable by anyone, members or not.
func Resolve(role Role, member bool, public bool) Capabilities {
	if member {
		if c := CapabilitiesFor(role); c.CanView {
			return c
		}
	}
	if public {
		return Capabilities{CanView: true}
	}
	return None
}

// Allows reports whether the set permits action.
func (c Capabilities) Allows(action Action) bool {
	switch action {
	case ActionView:
		return c.CanView
	case ActionEdit:
		return c.CanEdit
	case ActionToggleVisibility, ActionManageMembers:
		return c.CanManage
	}
	return false
}

// ReadOnly reports whether the holder can look but not touch.
func (c Capabilities) ReadOnly() bool {
	return c.CanView && !c.CanEdit
}
