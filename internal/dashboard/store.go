package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/config"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/domain/lbac"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/auth"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/db"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/lbacclient"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/sandbox"
)

// Store is an opened counts database behind the count API.
type Store struct {
	Driver   string
	Repo     lbac.Repository
	Migrator *db.Migrator

	ping  func(context.Context) error
	stats func() any
	close func()
}

// OpenStore connects to the store named by COUNTS_STORE. SQLite databases
// are migrated on open; PostgreSQL schemas are applied with "migrate up".
func OpenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Store, error) {
	switch cfg.CountsStore {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to database")
		return &Store{
			Driver:   config.StorePostgres,
			Repo:     lbac.NewRepo(pool),
			Migrator: db.NewMigrator(pool, db.Migrations()),
			ping:     pool.Ping,
			stats:    func() any { return db.GetPoolStats(pool) },
			close:    pool.Close,
		}, nil

	case config.StoreSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		migrator := db.NewSQLiteMigrator(sqlDB, db.Migrations())
		applied, err := migrator.Up(ctx)
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Int("applied", applied).Msg("opened sqlite store")
		return &Store{
			Driver:   config.StoreSQLite,
			Repo:     lbac.NewSQLiteRepo(sqlDB),
			Migrator: migrator,
			ping:     sqlDB.PingContext,
			close:    func() { sqlDB.Close() },
		}, nil

	case "":
		return nil, errors.New("COUNTS_STORE is not set")
	default:
		return nil, fmt.Errorf("unknown counts store %q", cfg.CountsStore)
	}
}

// HealthHandler reports whether the store answers a ping.
func (s *Store) HealthHandler() echo.HandlerFunc {
	return db.HealthHandler(s.Driver, s.ping, s.stats)
}

func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

type APIOptions struct {
	// SigningKey verifies bearer tokens. Without it the API is only served
	// when Dev is set, and then without authentication.
	SigningKey []byte
	Dev        bool
	// Sandbox exposes the synthetic data seeder to admins.
	Sandbox bool
}

// MountCountAPI serves the location-wise count endpoints from store under
// /ws/rest/v1/lbac, plus /health/db.
func MountCountAPI(e *echo.Echo, store *Store, opts APIOptions, logger zerolog.Logger) error {
	g := e.Group(strings.TrimSuffix(lbacclient.RestPath, "/"))
	switch {
	case len(opts.SigningKey) > 0:
		g.Use(auth.JWTMiddleware(auth.JWTConfig{SigningKey: opts.SigningKey}))
	case opts.Dev:
		g.Use(auth.DevAuthMiddleware())
	default:
		return errors.New("count API requires a signing key outside development")
	}

	lbac.NewHandler(lbac.NewService(store.Repo), logger).RegisterRoutes(g)
	if opts.Sandbox {
		sb := g.Group("/sandbox", auth.RequireRole("admin"))
		sandbox.NewSeedHandler(store.Repo, logger).RegisterRoutes(sb)
	}

	e.GET("/health/db", store.HealthHandler())
	return nil
}
