// Package permission evaluates acknowledgement attempts against the
// configured authorisation mode.
package permission

import (
	"watchtower/alert"
	"watchtower/roles"
)

// Decision is the outcome of a policy evaluation.
type Decision int

const (
	// Allow accepts the acknowledgement.
	Allow Decision = iota
	// Deny rejects it; the user sees a no-permission confirmation.
	Deny
	// OutOfScope rejects it because the originating channel sits above the
	// configured escalation level.
	OutOfScope
)

// Mode selects one of the four authorisation models.
type Mode int

const (
	// ModeUsers accepts acks from an explicit user list.
	ModeUsers Mode = iota
	// ModeMinRole accepts acks from users ranked at or above a role.
	ModeMinRole
	// ModeRoles accepts acks from members of any listed role.
	ModeRoles
	// ModeEscalationLevel accepts acks originating from channels at or below
	// a tier.
	ModeEscalationLevel
)

// Policy is immutable after construction.
type Policy struct {
	mode     Mode
	users    []alert.User
	minRole  roles.Role
	roleList []roles.Role
	maxLevel uint
	index    *roles.Index
}

// Users builds a policy accepting acks only from the listed users.
func Users(users []alert.User) *Policy {
	return &Policy{mode: ModeUsers, users: users}
}

// MinRole builds a policy accepting acks from users at or above the role.
func MinRole(r roles.Role, index *roles.Index) *Policy {
	return &Policy{mode: ModeMinRole, minRole: r, index: index}
}

// Roles builds a policy accepting acks from members of any listed role.
func Roles(list []roles.Role, index *roles.Index) *Policy {
	return &Policy{mode: ModeRoles, roleList: list, index: index}
}

// EscalationLevel builds a policy accepting acks whose originating channel is
// at or below the given tier.
func EscalationLevel(maxLevel uint) *Policy {
	return &Policy{mode: ModeEscalationLevel, maxLevel: maxLevel}
}

// Evaluate decides whether the acknowledgement carried by the action is
// authorised.
func (p *Policy) Evaluate(action alert.UserAction) Decision {
	switch p.mode {
	case ModeUsers:
		for _, u := range p.users {
			if u == action.User {
				return Allow
			}
		}
		return Deny
	case ModeMinRole:
		if p.index.AtOrAbove(action.User, p.minRole) {
			return Allow
		}
		return Deny
	case ModeRoles:
		if p.index.HasAnyRole(action.User, p.roleList) {
			return Allow
		}
		return Deny
	case ModeEscalationLevel:
		if action.ChannelID <= p.maxLevel {
			return Allow
		}
		return OutOfScope
	default:
		return Deny
	}
}
