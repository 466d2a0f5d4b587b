// Package auth carries the caller-supplied identity and permission checks.
// The data core never owns authentication; transports resolve an Identity per
// request and the services consult an injected Authorizer.
package auth

import "go.uber.org/fx"

// Role names understood by the default authorizer.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Identity identifies the caller of an operation. DisplayName is snapshotted
// into chat rows at write time.
type Identity struct {
	UserID      int64
	DisplayName string
	Roles       []string
}

// Known reports whether the identity maps to a real user.
func (i Identity) Known() bool {
	return i.UserID > 0
}

// HasRole reports whether the identity carries the named role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authorizer answers the two permission questions the chat engine asks.
type Authorizer interface {
	// CanPost reports whether the identity may append chat messages.
	CanPost(identity Identity) bool
	// CanDeleteAny reports whether the identity may delete messages it did
	// not author.
	CanDeleteAny(identity Identity) bool
}

// RoleAuthorizer is the default role-based Authorizer: staff and admins may
// post, only admins may delete other authors' messages.
type RoleAuthorizer struct{}

// NewAuthorizer provides the default Authorizer.
func NewAuthorizer() Authorizer {
	return RoleAuthorizer{}
}

func (RoleAuthorizer) CanPost(identity Identity) bool {
	return identity.Known() && (identity.HasRole(RoleStaff) || identity.HasRole(RoleAdmin))
}

func (RoleAuthorizer) CanDeleteAny(identity Identity) bool {
	return identity.Known() && identity.HasRole(RoleAdmin)
}

// Module wires the default authorizer into the Fx graph.
var Module = fx.Provide(NewAuthorizer)
