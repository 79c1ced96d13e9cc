package lbac

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmrs/openmrs-module-locationbasedaccess/pkg/counts"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) LocationCounts(ctx context.Context, kind Kind) (counts.Counts, error) {
	query, ok := countQueries[kind]
	if !ok {
		return nil, fmt.Errorf("unknown count kind %q", kind)
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s counts: %w", kind, err)
	}
	defer rows.Close()

	out := counts.Counts{}
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan %s count: %w", kind, err)
		}
		out = append(out, counts.Count{Label: name, Value: float64(n)})
	}
	return out, rows.Err()
}

func (r *repoPG) RequiredModules(ctx context.Context) ([]ModuleRequirement, error) {
	rows, err := r.pool.Query(ctx, requiredModulesQuery)
	if err != nil {
		return nil, fmt.Errorf("query required modules: %w", err)
	}
	defer rows.Close()

	var out []ModuleRequirement
	for rows.Next() {
		var m ModuleRequirement
		if err := rows.Scan(&m.Package, &m.Name, &m.RequiredVersion, &m.Started); err != nil {
			return nil, fmt.Errorf("scan required module: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repoPG) GlobalProperties(ctx context.Context, names []string) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT property, property_value FROM global_property WHERE property = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("query global properties: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string, len(names))
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan global property: %w", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}

func (r *repoPG) SetGlobalProperty(ctx context.Context, name, value string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO global_property (property, property_value) VALUES ($1, $2)
		ON CONFLICT (property) DO UPDATE SET property_value = EXCLUDED.property_value`,
		name, value)
	if err != nil {
		return fmt.Errorf("set global property %s: %w", name, err)
	}
	return nil
}

func (r *repoPG) CreateLocation(ctx context.Context, loc *Location) error {
	if loc.UUID == "" {
		loc.UUID = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO location (uuid, name, description, retired) VALUES ($1, $2, $3, $4)`,
		loc.UUID, loc.Name, nullable(loc.Description), loc.Retired)
	if err != nil {
		return fmt.Errorf("insert location %s: %w", loc.Name, err)
	}
	return nil
}

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient (uuid, given_name, family_name, gender, location_uuid)
		VALUES ($1, $2, $3, $4, $5)`,
		p.UUID, p.GivenName, p.FamilyName, nullable(p.Gender), nullable(p.LocationUUID))
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoPG) CreateUser(ctx context.Context, u *User) error {
	if u.UUID == "" {
		u.UUID = uuid.New().String()
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO app_user (uuid, username) VALUES ($1, $2)`, u.UUID, u.Username); err != nil {
			return fmt.Errorf("insert user %s: %w", u.Username, err)
		}
		return insertUserLocations(ctx, tx, u)
	})
}

func insertUserLocations(ctx context.Context, q querier, u *User) error {
	for _, loc := range u.LocationUUIDs {
		if _, err := q.Exec(ctx,
			`INSERT INTO user_location (user_uuid, location_uuid) VALUES ($1, $2)`, u.UUID, loc); err != nil {
			return fmt.Errorf("grant %s location %s: %w", u.Username, loc, err)
		}
	}
	return nil
}

func (r *repoPG) CreateEncounter(ctx context.Context, e *Encounter) error {
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO encounter (uuid, patient_uuid, location_uuid, encounter_type, encounter_datetime)
		VALUES ($1, $2, $3, $4, $5)`,
		e.UUID, e.PatientUUID, nullable(e.LocationUUID), e.EncounterType, e.EncounterDatetime)
	if err != nil {
		return fmt.Errorf("insert encounter: %w", err)
	}
	return nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
