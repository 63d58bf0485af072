package types

import "fmt"

type IncidentSeverity string

const (
	SeverityMinor    IncidentSeverity = "minor"
	SeverityMajor    IncidentSeverity = "major"
	SeverityCritical IncidentSeverity = "critical"
)

func (s IncidentSeverity) Valid() bool {
	switch s {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}

type IncidentStatus string

const (
	StatusInvestigating IncidentStatus = "investigating"
	StatusIdentified    IncidentStatus = "identified"
	StatusMonitoring    IncidentStatus = "monitoring"
	StatusResolved      IncidentStatus = "resolved"
)

func (s IncidentStatus) Valid() bool {
	switch s {
	case StatusInvestigating, StatusIdentified, StatusMonitoring, StatusResolved:
		return true
	}
	return false
}

type ImpactType string

const (
	ImpactPerformance   ImpactType = "performance"
	ImpactAvailability  ImpactType = "availability"
	ImpactDataIntegrity ImpactType = "data_integrity"
	ImpactSecurity      ImpactType = "security"
)

func (t ImpactType) Valid() bool {
	switch t {
	case ImpactPerformance, ImpactAvailability, ImpactDataIntegrity, ImpactSecurity:
		return true
	}
	return false
}

type EntityType string

const (
	EntityService   EntityType = "service"
	EntityComponent EntityType = "component"
	EntityResource  EntityType = "resource"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityService, EntityComponent, EntityResource:
		return true
	}
	return false
}

// EntityRef identifies an entity in the external catalog. The ID is an
// opaque reference; there is no foreign key behind it.
type EntityRef struct {
	Type EntityType
	ID   string
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}

type OperationalStatus string

const (
	StatusOperational   OperationalStatus = "operational"
	StatusDegraded      OperationalStatus = "degraded"
	StatusPartialOutage OperationalStatus = "partial_outage"
	StatusMajorOutage   OperationalStatus = "major_outage"
)

// statusRank orders operational statuses from best to worst. Higher
// rank wins in WorseOf/WorstOf comparisons.
var statusRank = map[OperationalStatus]int{
	StatusOperational:   0,
	StatusDegraded:      1,
	StatusPartialOutage: 2,
	StatusMajorOutage:   3,
}

// WorseOf returns whichever of the two statuses ranks worse.
func WorseOf(a, b OperationalStatus) OperationalStatus {
	if statusRank[b] > statusRank[a] {
		return b
	}
	return a
}

// WorstOf returns the worst status in the list, or operational for an
// empty list.
func WorstOf(statuses []OperationalStatus) OperationalStatus {
	worst := StatusOperational
	for _, s := range statuses {
		worst = WorseOf(worst, s)
	}
	return worst
}

// StatusForSeverity maps an incident severity to the operational status
// it imposes on affected entities. Major and minor both map to
// degraded; partial_outage is never produced by this mapping.
func StatusForSeverity(severity IncidentSeverity) OperationalStatus {
	if severity == SeverityCritical {
		return StatusMajorOutage
	}
	return StatusDegraded
}
