// Package sandbox provides synthetic location based access data for sandbox
// and demo environments. It produces reproducible locations, patients, users
// and encounters and loads them through an lbac.Repository, so the count API
// has something to report.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/domain/lbac"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume and shape of generated synthetic data.
type SeedConfig struct {
	LocationCount        int   `json:"locationCount"`
	PatientCount         int   `json:"patientCount"`
	UserCount            int   `json:"userCount"`
	EncountersPerPatient int   `json:"encountersPerPatient"`
	MaxUserLocations     int   `json:"maxUserLocations"`
	UnassignedPercent    int   `json:"unassignedPercent"`
	Seed                 int64 `json:"seed"`
}

// DefaultSeedConfig returns a SeedConfig sized for a demo dashboard.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		LocationCount:        6,
		PatientCount:         120,
		UserCount:            15,
		EncountersPerPatient: 3,
		MaxUserLocations:     3,
		UnassignedPercent:    10,
	}
}

func (c SeedConfig) validate() error {
	switch {
	case c.LocationCount <= 0:
		return fmt.Errorf("locationCount must be positive, got %d", c.LocationCount)
	case c.PatientCount < 0, c.UserCount < 0, c.EncountersPerPatient < 0:
		return fmt.Errorf("counts must not be negative")
	case c.UnassignedPercent < 0 || c.UnassignedPercent > 100:
		return fmt.Errorf("unassignedPercent must be within 0..100, got %d", c.UnassignedPercent)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Dataset / SeedResult
// ---------------------------------------------------------------------------

// Dataset is one generated batch, not yet stored.
type Dataset struct {
	Locations  []*lbac.Location  `json:"locations"`
	Patients   []*lbac.Patient   `json:"patients"`
	Users      []*lbac.User      `json:"users"`
	Encounters []*lbac.Encounter `json:"encounters"`
}

// SeedResult summarizes the output of a seed operation.
type SeedResult struct {
	Locations  int           `json:"locations"`
	Patients   int           `json:"patients"`
	Users      int           `json:"users"`
	Encounters int           `json:"encounters"`
	Total      int           `json:"total"`
	Duration   time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Name pools
// ---------------------------------------------------------------------------

var (
	locationNames = []string{
		"Amani Hospital", "Inpatient Ward", "Outpatient Clinic",
		"Laboratory", "Pharmacy", "Registration Desk", "Isolation Ward",
		"Maternity Ward", "Community Outreach", "Mobile Clinic",
		"Dental Unit", "Eye Clinic",
	}
	givenNamesMale = []string{
		"Kofi", "Juma", "Tendai", "Chikondi", "Daniel", "Joseph", "Emeka",
		"Musa", "Baraka", "Samuel", "Thomas", "Peter",
	}
	givenNamesFemale = []string{
		"Ada", "Amina", "Grace", "Lina", "Zawadi", "Mercy", "Esther",
		"Fatuma", "Ruth", "Neema", "Chisomo", "Mary",
	}
	familyNames = []string{
		"Banda", "Phiri", "Mwale", "Okafor", "Mensah", "Kamau", "Otieno",
		"Moyo", "Dlamini", "Nkosi", "Achieng", "Bello",
	}
	encounterTypes = []string{
		"Adult Initial", "Adult Return", "Vitals", "Check In",
		"Lab Results", "Discharge", "Admission",
	}
)

// seedEpoch anchors generated encounter times so seeded data is stable.
var seedEpoch = time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic synthetic entities.
type DataGenerator struct {
	rng     *rand.Rand
	counter uint64
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// nextUUID draws the UUID from the seeded source so equal seeds give equal
// identifiers.
func (g *DataGenerator) nextUUID() string {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		g.counter++
		return fmt.Sprintf("00000000-0000-4000-8000-%012x", g.counter)
	}
	return id.String()
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// GenerateLocation names the i-th location. Names are unique within a run.
func (g *DataGenerator) GenerateLocation(i int) *lbac.Location {
	name := locationNames[i%len(locationNames)]
	if round := i / len(locationNames); round > 0 {
		name = fmt.Sprintf("%s %d", name, round+1)
	}
	return &lbac.Location{
		UUID:        g.nextUUID(),
		Name:        name,
		Description: "Synthetic sandbox location",
	}
}

// GeneratePatient places a patient at one of locs, or nowhere with the given
// percent chance.
func (g *DataGenerator) GeneratePatient(locs []*lbac.Location, unassignedPercent int) *lbac.Patient {
	p := &lbac.Patient{
		UUID:       g.nextUUID(),
		FamilyName: g.pick(familyNames),
	}
	if g.rng.Intn(2) == 0 {
		p.GivenName = g.pick(givenNamesMale)
		p.Gender = "M"
	} else {
		p.GivenName = g.pick(givenNamesFemale)
		p.Gender = "F"
	}
	if len(locs) > 0 && g.rng.Intn(100) >= unassignedPercent {
		p.LocationUUID = locs[g.rng.Intn(len(locs))].UUID
	}
	return p
}

// GenerateUser grants a user between one and maxLocations distinct
// locations. The i-th user gets a unique username.
func (g *DataGenerator) GenerateUser(i int, locs []*lbac.Location, maxLocations int) *lbac.User {
	u := &lbac.User{
		UUID:     g.nextUUID(),
		Username: fmt.Sprintf("%s.%s%d", strings.ToLower(g.pick(givenNamesFemale)), strings.ToLower(g.pick(familyNames)), i+1),
	}
	if len(locs) == 0 {
		return u
	}
	if maxLocations <= 0 || maxLocations > len(locs) {
		maxLocations = len(locs)
	}
	n := 1 + g.rng.Intn(maxLocations)
	for _, idx := range g.rng.Perm(len(locs))[:n] {
		u.LocationUUIDs = append(u.LocationUUIDs, locs[idx].UUID)
	}
	return u
}

// GenerateEncounter records a visit for p, usually at the patient's own
// location.
func (g *DataGenerator) GenerateEncounter(p *lbac.Patient, locs []*lbac.Location) *lbac.Encounter {
	e := &lbac.Encounter{
		UUID:              g.nextUUID(),
		PatientUUID:       p.UUID,
		LocationUUID:      p.LocationUUID,
		EncounterType:     g.pick(encounterTypes),
		EncounterDatetime: seedEpoch.Add(time.Duration(g.rng.Intn(365*24)) * time.Hour),
	}
	if (e.LocationUUID == "" || g.rng.Intn(5) == 0) && len(locs) > 0 {
		e.LocationUUID = locs[g.rng.Intn(len(locs))].UUID
	}
	return e
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder generates datasets and writes them to a repository.
type Seeder struct {
	generator *DataGenerator
	config    SeedConfig
	logger    zerolog.Logger
}

// NewSeeder creates a new Seeder with the given config.
func NewSeeder(config SeedConfig, logger zerolog.Logger) *Seeder {
	return &Seeder{
		generator: NewDataGenerator(config.Seed),
		config:    config,
		logger:    logger,
	}
}

// Generate builds a dataset according to config without storing it.
func (s *Seeder) Generate() (*Dataset, error) {
	if err := s.config.validate(); err != nil {
		return nil, err
	}

	ds := &Dataset{}
	for i := 0; i < s.config.LocationCount; i++ {
		ds.Locations = append(ds.Locations, s.generator.GenerateLocation(i))
	}
	for i := 0; i < s.config.PatientCount; i++ {
		p := s.generator.GeneratePatient(ds.Locations, s.config.UnassignedPercent)
		ds.Patients = append(ds.Patients, p)
		for j := 0; j < s.config.EncountersPerPatient; j++ {
			ds.Encounters = append(ds.Encounters, s.generator.GenerateEncounter(p, ds.Locations))
		}
	}
	for i := 0; i < s.config.UserCount; i++ {
		ds.Users = append(ds.Users, s.generator.GenerateUser(i, ds.Locations, s.config.MaxUserLocations))
	}
	return ds, nil
}

// Seed generates a dataset and stores it through repo. Locations go first so
// every reference resolves.
func (s *Seeder) Seed(ctx context.Context, repo lbac.Repository) (*SeedResult, error) {
	start := time.Now()
	ds, err := s.Generate()
	if err != nil {
		return nil, err
	}

	for _, loc := range ds.Locations {
		if err := repo.CreateLocation(ctx, loc); err != nil {
			return nil, err
		}
	}
	for _, p := range ds.Patients {
		if err := repo.CreatePatient(ctx, p); err != nil {
			return nil, err
		}
	}
	for _, u := range ds.Users {
		if err := repo.CreateUser(ctx, u); err != nil {
			return nil, err
		}
	}
	for _, e := range ds.Encounters {
		if err := repo.CreateEncounter(ctx, e); err != nil {
			return nil, err
		}
	}

	result := &SeedResult{
		Locations:  len(ds.Locations),
		Patients:   len(ds.Patients),
		Users:      len(ds.Users),
		Encounters: len(ds.Encounters),
		Duration:   time.Since(start),
	}
	result.Total = result.Locations + result.Patients + result.Users + result.Encounters

	s.logger.Info().
		Int("locations", result.Locations).
		Int("patients", result.Patients).
		Int("users", result.Users).
		Int("encounters", result.Encounters).
		Dur("duration", result.Duration).
		Msg("sandbox data seeded")
	return result, nil
}

// ExportJSON writes a generated dataset as indented JSON.
func ExportJSON(w io.Writer, ds *Dataset) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ds)
}

// ---------------------------------------------------------------------------
// SeedHandler: Echo HTTP handlers
// ---------------------------------------------------------------------------

// SeedHandler provides HTTP endpoints for sandbox data management.
type SeedHandler struct {
	repo   lbac.Repository
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewSeedHandler creates a handler that seeds into repo.
func NewSeedHandler(repo lbac.Repository, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{repo: repo, logger: logger}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
	g.POST("/preview", h.handlePreview)
}

func (h *SeedHandler) bindConfig(c echo.Context) (SeedConfig, error) {
	cfg := DefaultSeedConfig()
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&cfg); err != nil {
			return cfg, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if err := cfg.validate(); err != nil {
		return cfg, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return cfg, nil
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	cfg, err := h.bindConfig(c)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := NewSeeder(cfg, h.logger).Seed(c.Request().Context(), h.repo)
	if err != nil {
		h.logger.Error().Err(err).Msg("sandbox seed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to seed sandbox data")
	}
	return c.JSON(http.StatusOK, result)
}

func (h *SeedHandler) handlePreview(c echo.Context) error {
	cfg, err := h.bindConfig(c)
	if err != nil {
		return err
	}
	ds, err := NewSeeder(cfg, h.logger).Generate()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c.Response().WriteHeader(http.StatusOK)
	return ExportJSON(c.Response().Writer, ds)
}
