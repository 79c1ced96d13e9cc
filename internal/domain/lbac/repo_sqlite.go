package lbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/openmrs/openmrs-module-locationbasedaccess/pkg/counts"
)

type repoSQLite struct {
	db *sql.DB
}

// NewSQLiteRepo stores counts in a SQLite database opened with
// db.OpenSQLite and migrated with the embedded migrations.
func NewSQLiteRepo(sqlDB *sql.DB) Repository {
	return &repoSQLite{db: sqlDB}
}

func (r *repoSQLite) LocationCounts(ctx context.Context, kind Kind) (counts.Counts, error) {
	query, ok := countQueries[kind]
	if !ok {
		return nil, fmt.Errorf("unknown count kind %q", kind)
	}
	rows, err := r.db.QueryContext(ctx, query)
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

func (r *repoSQLite) RequiredModules(ctx context.Context) ([]ModuleRequirement, error) {
	rows, err := r.db.QueryContext(ctx, requiredModulesQuery)
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

func (r *repoSQLite) GlobalProperties(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT property, property_value FROM global_property WHERE property IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query global properties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan global property: %w", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}

func (r *repoSQLite) SetGlobalProperty(ctx context.Context, name, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO global_property (property, property_value) VALUES (?, ?)
		ON CONFLICT (property) DO UPDATE SET property_value = excluded.property_value`,
		name, value)
	if err != nil {
		return fmt.Errorf("set global property %s: %w", name, err)
	}
	return nil
}

func (r *repoSQLite) CreateLocation(ctx context.Context, loc *Location) error {
	if loc.UUID == "" {
		loc.UUID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO location (uuid, name, description, retired) VALUES (?, ?, ?, ?)`,
		loc.UUID, loc.Name, nullable(loc.Description), loc.Retired)
	if err != nil {
		return fmt.Errorf("insert location %s: %w", loc.Name, err)
	}
	return nil
}

func (r *repoSQLite) CreatePatient(ctx context.Context, p *Patient) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO patient (uuid, given_name, family_name, gender, location_uuid)
		VALUES (?, ?, ?, ?, ?)`,
		p.UUID, p.GivenName, p.FamilyName, nullable(p.Gender), nullable(p.LocationUUID))
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoSQLite) CreateUser(ctx context.Context, u *User) error {
	if u.UUID == "" {
		u.UUID = uuid.New().String()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO app_user (uuid, username) VALUES (?, ?)`, u.UUID, u.Username); err != nil {
		return fmt.Errorf("insert user %s: %w", u.Username, err)
	}
	for _, loc := range u.LocationUUIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_location (user_uuid, location_uuid) VALUES (?, ?)`, u.UUID, loc); err != nil {
			return fmt.Errorf("grant %s location %s: %w", u.Username, loc, err)
		}
	}
	return tx.Commit()
}

func (r *repoSQLite) CreateEncounter(ctx context.Context, e *Encounter) error {
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO encounter (uuid, patient_uuid, location_uuid, encounter_type, encounter_datetime)
		VALUES (?, ?, ?, ?, ?)`,
		e.UUID, e.PatientUUID, nullable(e.LocationUUID), e.EncounterType,
		e.EncounterDatetime.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return fmt.Errorf("insert encounter: %w", err)
	}
	return nil
}
