package dashboard

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/middleware"
)

type ServerOptions struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	// BodyLimit caps request bodies, e.g. "1M". Empty means no cap.
	BodyLimit string
}

// NewEcho returns an echo instance with the dashboard middleware stack and
// routes registered. Live websocket streams are exempt from the request
// timeout.
func (m *Module) NewEcho(opts ServerOptions) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(m.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(m.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: opts.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders(middleware.SecurityConfig{
		ScriptURLs: []string{m.opts.ChartScriptURL},
	}))
	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}
	if opts.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(opts.RequestTimeout, "/live/"))
	}

	m.RegisterRoutes(e)
	return e
}
