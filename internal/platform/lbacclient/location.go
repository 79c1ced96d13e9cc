package lbacclient

import (
	"fmt"
	"strings"
)

const (
	// RestPath is the fixed prefix of every location-based access resource.
	RestPath = "/ws/rest/v1/lbac/"

	// DefaultMountMarker is the path segment open web apps are served under.
	DefaultMountMarker = "/owa/"
)

// Resource paths of the three count endpoints.
const (
	PatientsCountPath   = "locationwise-patients-count"
	UsersCountPath      = "locationwise-users-count"
	EncountersCountPath = "locationwise-encounters-count"
)

// OriginFromLocation truncates location before the first occurrence of
// marker. "http://localhost:8080/openmrs/owa/lbac/index.html#/" with marker
// "/owa/" yields "http://localhost:8080/openmrs".
func OriginFromLocation(location, marker string) (string, error) {
	if marker == "" {
		return "", fmt.Errorf("lbacclient: empty mount marker")
	}
	idx := strings.Index(location, marker)
	if idx < 0 {
		return "", fmt.Errorf("lbacclient: location %q does not contain %q", location, marker)
	}
	return location[:idx], nil
}

// ResourceURL joins origin, RestPath and resourcePath.
func ResourceURL(origin, resourcePath string) string {
	return strings.TrimRight(origin, "/") + RestPath + strings.TrimLeft(resourcePath, "/")
}
