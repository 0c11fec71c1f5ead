package services

import "grant-review-api/models"

// Capability is an abstract permission tag held by an actor. Permission
// predicates on workflow actions are expressed against capabilities, never
// against raw role ids, so all authorization logic stays in one place.
type Capability string

const (
	CapApplicant Capability = "applicant"
	CapReviewer  Capability = "reviewer"
	CapPartner   Capability = "partner"
	CapStaff     Capability = "staff"
	CapAdmin     Capability = "admin"
)

// CapabilitySet is the set of capabilities held by one actor.
type CapabilitySet map[Capability]bool

func (s CapabilitySet) Has(c Capability) bool {
	return s[c]
}

// HasAny reports whether the set holds at least one of the given capabilities.
func (s CapabilitySet) HasAny(caps ...Capability) bool {
	for _, c := range caps {
		if s[c] {
			return true
		}
	}
	return false
}

// CapabilitiesOf derives the capability set for a user from its role.
// Admins hold the staff capability as well; staff do not automatically hold
// reviewer, an assignment is still required to review.
func CapabilitiesOf(user *models.User) CapabilitySet {
	caps := make(CapabilitySet)
	if user == nil {
		return caps
	}
	switch user.RoleName() {
	case models.RoleApplicant:
		caps[CapApplicant] = true
	case models.RoleReviewer:
		caps[CapReviewer] = true
	case models.RolePartner:
		caps[CapPartner] = true
	case models.RoleStaff:
		caps[CapStaff] = true
	case models.RoleAdmin:
		caps[CapAdmin] = true
		caps[CapStaff] = true
	}
	return caps
}

// PrimaryViewerRole maps a capability set to the visibility lane used when
// reading the activity log. Staff see everything and have no lane.
func PrimaryViewerRole(caps CapabilitySet) (Capability, bool) {
	switch {
	case caps.Has(CapStaff):
		return "", false
	case caps.Has(CapReviewer):
		return CapReviewer, true
	case caps.Has(CapPartner):
		return CapPartner, true
	default:
		return CapApplicant, true
	}
}
