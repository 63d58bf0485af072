package auth

// Role is a user's position in the access hierarchy. Roles are
// strictly ordered: each level includes everything below it.
type Role string

const (
	RoleViewer            Role = "viewer"
	RoleEditor            Role = "editor"
	RoleIncidentCommander Role = "incident_commander"
	RoleAdmin             Role = "admin"
)

var roleLevel = map[Role]int{
	RoleViewer:            0,
	RoleEditor:            1,
	RoleIncidentCommander: 2,
	RoleAdmin:             3,
}

func (r Role) Valid() bool {
	_, ok := roleLevel[r]
	return ok
}

// Capability is a named privilege checked before privileged incident
// operations.
type Capability string

const (
	// CapabilityEditIncidents gates incident creation and manual
	// timeline notes.
	CapabilityEditIncidents Capability = "edit_incidents"
	// CapabilityCommandIncidents gates lifecycle transitions, severity
	// changes and affected-entity attach/detach.
	CapabilityCommandIncidents Capability = "command_incidents"
	// CapabilityAdmin gates soft deletion.
	CapabilityAdmin Capability = "admin"
)

var capabilityFloor = map[Capability]Role{
	CapabilityEditIncidents:    RoleEditor,
	CapabilityCommandIncidents: RoleIncidentCommander,
	CapabilityAdmin:            RoleAdmin,
}

// HasCapability reports whether a role grants a capability.
func HasCapability(role Role, capability Capability) bool {
	floor, ok := capabilityFloor[capability]
	if !ok {
		return false
	}
	return roleLevel[role] >= roleLevel[floor]
}
