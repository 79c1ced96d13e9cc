package lbac

import (
	"context"

	"github.com/openmrs/openmrs-module-locationbasedaccess/pkg/counts"
)

type Repository interface {
	// LocationCounts returns one entry per location, zero counts included,
	// ordered by location name.
	LocationCounts(ctx context.Context, kind Kind) (counts.Counts, error)
	RequiredModules(ctx context.Context) ([]ModuleRequirement, error)
	GlobalProperties(ctx context.Context, names []string) (map[string]string, error)
	SetGlobalProperty(ctx context.Context, name, value string) error

	CreateLocation(ctx context.Context, loc *Location) error
	CreatePatient(ctx context.Context, p *Patient) error
	CreateUser(ctx context.Context, u *User) error
	CreateEncounter(ctx context.Context, e *Encounter) error
}

// The count queries are plain SQL shared by both stores. Locations with
// duplicate names cannot exist (unique constraint), so grouping by name is
// grouping by location.
var countQueries = map[Kind]string{
	KindPatients: `SELECT l.name, COUNT(p.uuid)
		FROM location l
		LEFT JOIN patient p ON p.location_uuid = l.uuid AND p.voided = FALSE
		GROUP BY l.name
		ORDER BY l.name`,
	KindUsers: `SELECT l.name, COUNT(u.uuid)
		FROM location l
		LEFT JOIN user_location ul ON ul.location_uuid = l.uuid
		LEFT JOIN app_user u ON u.uuid = ul.user_uuid AND u.retired = FALSE
		GROUP BY l.name
		ORDER BY l.name`,
	KindEncounters: `SELECT l.name, COUNT(e.uuid)
		FROM location l
		LEFT JOIN encounter e ON e.location_uuid = l.uuid AND e.voided = FALSE
		GROUP BY l.name
		ORDER BY l.name`,
}

const requiredModulesQuery = `SELECT package, name, required_version, started
	FROM required_module
	ORDER BY name`
