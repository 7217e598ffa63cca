// Package policy decides who may subscribe to a channel and who may act on
// campus-scoped records.
package policy

import (
	"slices"

	"libraryhub/internal/events"
	"libraryhub/internal/model"
)

// Actor is an authenticated principal.
type Actor struct {
	ID       uint
	Roles    []string
	CampusID *uint
}

// ActorFromUser builds an actor from a user loaded with roles.
func ActorFromUser(u *model.User) Actor {
	return Actor{ID: u.ID, Roles: u.RoleNames(), CampusID: u.CampusID}
}

func (a Actor) HasRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(a.Roles, r) {
			return true
		}
	}
	return false
}

// IsStaff covers everyone allowed to work the loan queue.
func (a Actor) IsStaff() bool {
	return a.HasRole(model.RoleStaff, model.RoleAdmin, model.RoleSuperAdmin)
}

// IsGlobalAdmin is a super-admin, or an admin not tied to any campus.
func (a Actor) IsGlobalAdmin() bool {
	if a.HasRole(model.RoleSuperAdmin) {
		return true
	}
	return a.HasRole(model.RoleAdmin) && a.CampusID == nil
}

// Authorize reports whether actor may subscribe to ch. Unknown channels are denied.
func Authorize(actor Actor, ch events.Channel) bool {
	switch ch {
	case events.ChannelPublicSummary:
		return true
	case events.ChannelAdminLoanRequests, events.ChannelDashboardSummary:
		return actor.IsStaff()
	case events.ChannelActivityLogs:
		return actor.HasRole(model.RoleAdmin, model.RoleSuperAdmin)
	}

	if owner, ok := events.ParseUserLoanRequestsChannel(ch); ok {
		return actor.ID != 0 && actor.ID == owner
	}
	return false
}

// InScope reports whether a record on campus is visible to actor. Global admins see
// everything; campus-bound staff see their own campus and records with no campus.
func InScope(actor Actor, campus *uint) bool {
	if actor.IsGlobalAdmin() || campus == nil {
		return true
	}
	return actor.CampusID != nil && *actor.CampusID == *campus
}

// CanDecide reports whether actor may approve or reject a request on campus.
func CanDecide(actor Actor, campus *uint) bool {
	return actor.IsStaff() && InScope(actor, campus)
}

// ScopeFilter mirrors InScope for listings. When scoped is false every campus is
// visible; otherwise only campus (if set) and records without a campus.
func ScopeFilter(actor Actor) (campus *uint, scoped bool) {
	if actor.IsGlobalAdmin() {
		return nil, false
	}
	return actor.CampusID, true
}
