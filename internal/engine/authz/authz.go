// Package authz holds the permission rules for observation transitions.
package authz

import (
	"fmt"
	"strings"

	"vigia/internal/domain"
)

// ForbiddenError indicates missing permission. The action name is the
// only detail exposed; which check failed stays internal.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not authorized to %s", e.Action)
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// CanEdit reports whether the actor may edit the observation: admins
// always, otherwise only the creator. Closed records are immutable via
// edit regardless of role.
func CanEdit(actor domain.Actor, o domain.Observation) bool {
	if !o.Pending() {
		return false
	}
	return actor.Admin() || sameEmail(actor.Email, o.CreadoPor)
}

// CanClose reports whether the actor may close the observation. When
// requireOwnership is false any authenticated actor may close any
// pending record; closing is treated as a collaborative action.
func CanClose(actor domain.Actor, o domain.Observation, requireOwnership bool) bool {
	if !o.Pending() {
		return false
	}
	if !requireOwnership {
		return true
	}
	return actor.Admin() || sameEmail(actor.Email, o.CreadoPor)
}

// CanDelete reports whether the actor may delete the observation:
// admin-only cleanup restricted to closed records.
func CanDelete(actor domain.Actor, o domain.Observation) bool {
	return actor.Admin() && o.Closed()
}
