package lbac

import "time"

// Kind selects which entity a location-wise count is taken over.
type Kind string

const (
	KindPatients   Kind = "patients"
	KindUsers      Kind = "users"
	KindEncounters Kind = "encounters"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPatients, KindUsers, KindEncounters:
		return true
	}
	return false
}

type Location struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Retired     bool   `json:"retired"`
}

// Patient carries the location its LocationAttribute points at; empty means
// the patient has none and is not counted anywhere.
type Patient struct {
	UUID         string `json:"uuid"`
	GivenName    string `json:"givenName"`
	FamilyName   string `json:"familyName"`
	Gender       string `json:"gender,omitempty"`
	LocationUUID string `json:"locationUuid,omitempty"`
}

// User is counted once under every location it can access.
type User struct {
	UUID          string   `json:"uuid"`
	Username      string   `json:"username"`
	LocationUUIDs []string `json:"locationUuids"`
}

type Encounter struct {
	UUID              string    `json:"uuid"`
	PatientUUID       string    `json:"patientUuid"`
	LocationUUID      string    `json:"locationUuid,omitempty"`
	EncounterType     string    `json:"encounterType"`
	EncounterDatetime time.Time `json:"encounterDatetime"`
}

// ModuleRequirement is a module the location based access module needs.
type ModuleRequirement struct {
	Package         string
	Name            string
	RequiredVersion string
	Started         bool
}

const (
	StatusInstalled    = "Installed"
	StatusNotInstalled = "NotInstalled"
)

// ModuleStatus is the module-dependency response entry.
type ModuleStatus struct {
	RequiredVersion string `json:"requiredVersion"`
	Status          string `json:"status"`
}

// Global properties toggling location based restriction per entity.
const (
	PropAccessPatient   = "locationbasedaccess.access.patient"
	PropAccessLocation  = "locationbasedaccess.access.location"
	PropAccessPerson    = "locationbasedaccess.access.person"
	PropAccessUser      = "locationbasedaccess.access.user"
	PropAccessEncounter = "locationbasedaccess.access.encounter"
)

// AccessProperties lists the on-off switches in a stable order.
var AccessProperties = []string{
	PropAccessPatient,
	PropAccessLocation,
	PropAccessPerson,
	PropAccessUser,
	PropAccessEncounter,
}
