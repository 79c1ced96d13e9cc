// Package dashboard assembles the location based access dashboard: the
// component registry, the route table, the data client and the HTTP surface
// that serves pages, component fragments, view JSON and live updates.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/component"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/config"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/auth"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/lbacclient"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/websocket"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/router"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/view"
)

// ServiceSubject identifies the dashboard in the service tokens it mints.
const ServiceSubject = "lbac-dashboard"

type Options struct {
	Version        string
	ChartScriptURL string
	// RenderWait bounds how long a page render waits for its views to
	// settle before rendering whatever state they hold.
	RenderWait time.Duration
	SessionTTL time.Duration
	// AllowedOrigins are accepted on the live websocket besides same host.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.Version == "" {
		o.Version = "0.1.0"
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 30 * time.Minute
	}
	if o.RenderWait < 0 {
		o.RenderWait = 0
	}
	return o
}

// Module is the assembled dashboard. One Module serves every viewer; each
// viewer session gets its own Navigator.
type Module struct {
	Registry *component.Registry
	Router   *router.Router
	Hub      *websocket.Hub

	opts     Options
	live     *websocket.Handler
	sessions *sessionStore
	logger   zerolog.Logger

	watchMu  sync.Mutex
	watchers map[string]*watcher
}

// New registers the stock components against fetcher and declares the
// route table.
func New(fetcher view.Fetcher, opts Options, logger zerolog.Logger) (*Module, error) {
	opts = opts.withDefaults()

	reg := component.NewRegistry(logger)
	for _, r := range component.Stock(fetcher, logger) {
		if err := reg.Register(r); err != nil {
			return nil, fmt.Errorf("register components: %w", err)
		}
	}

	hub := websocket.NewHub(logger)
	m := &Module{
		Registry: reg,
		Router:   router.Default(),
		Hub:      hub,
		opts:     opts,
		live:     websocket.NewHandler(hub, opts.AllowedOrigins),
		logger:   logger,
		watchers: make(map[string]*watcher),
	}
	m.sessions = newSessionStore(opts.SessionTTL, m.newNavigator, logger)
	return m, nil
}

// NewFromConfig builds the data client from cfg and assembles the module.
func NewFromConfig(cfg *config.Config, logger zerolog.Logger) (*Module, error) {
	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("api_origin", client.Origin()).Msg("data client configured")

	return New(client, Options{
		ChartScriptURL: cfg.ChartScriptURL,
		RenderWait:     cfg.RenderWait,
		SessionTTL:     cfg.SessionTTL,
		AllowedOrigins: cfg.CORSOrigins,
	}, logger)
}

// NewClient builds the data client. When the dashboard talks to its own
// count API and no API_TOKEN_SECRET is set, service tokens are signed with
// AUTH_SIGNING_KEY so the API accepts them.
func NewClient(cfg *config.Config, logger zerolog.Logger) (*lbacclient.Client, error) {
	origin, err := cfg.ResolvedAPIOrigin()
	if err != nil {
		return nil, err
	}

	secret := cfg.APITokenSecret
	if secret == "" && cfg.APIOrigin == "" && cfg.HostLocation == "" {
		secret = cfg.AuthSigningKey
	}

	clientCfg := lbacclient.Config{
		Origin:   origin,
		Username: cfg.APIUsername,
		Password: cfg.APIPassword,
		Timeout:  cfg.FetchTimeout,
		Logger:   logger,
	}
	if secret != "" {
		clientCfg.Tokens = auth.NewServiceTokenIssuer([]byte(secret), ServiceSubject, ServiceSubject, "", 0)
	}
	return lbacclient.New(clientCfg)
}

func (m *Module) newNavigator() *router.Navigator {
	return router.NewNavigator(m.Router, m.Registry, m.logger)
}

// Run expires idle sessions until ctx is done.
func (m *Module) Run(ctx context.Context) {
	m.sessions.run(ctx)
}

// Close ends every session and unmounts their pages.
func (m *Module) Close() {
	m.sessions.closeAll()
}

// SessionCount reports the number of live viewer sessions.
func (m *Module) SessionCount() int {
	return m.sessions.len()
}
