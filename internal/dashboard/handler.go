package dashboard

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/component"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/lbacclient"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/router"
)

// reservedPrefixes are never treated as dashboard page paths.
var reservedPrefixes = []string{
	strings.TrimSuffix(lbacclient.RestPath, "/"),
	"/api/",
	"/components/",
	"/live/",
	"/static/",
	"/health/",
}

// RegisterRoutes mounts the dashboard pages and their supporting endpoints.
// Any other GET path redirects to its canonical page.
func (m *Module) RegisterRoutes(e *echo.Echo) {
	for _, r := range m.Router.Routes() {
		e.GET(r.URL, m.page)
	}
	e.GET("/components/:tag", m.componentFragment)
	e.GET("/api/views/:tag", m.viewState)
	e.GET("/live/:mount", m.liveUpdates)
	e.GET("/health", m.health)
	e.StaticFS("/static", assets())
	e.GET("/*", m.redirectUnknown)
}

func (m *Module) page(c echo.Context) error {
	res := m.Router.Resolve(c.Request().URL.Path)
	if res.Redirect {
		return c.Redirect(http.StatusFound, res.Canonical)
	}

	sess := m.sessions.ensure(c)
	page, err := sess.nav.Navigate(c.Request().Context(), res.Canonical)
	if err != nil {
		if errors.Is(err, router.ErrNavigatorClosed) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "session expired, reload the page")
		}
		m.logger.Error().Err(err).Str("route", res.Route.Name).Msg("navigate")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load page")
	}

	m.settle(c.Request().Context(), page.Wait)

	data := pageData{
		Title:          page.Route.Page.Title,
		Page:           page.Route.Page.Name,
		Route:          page.Route.Name,
		ChartScriptURL: m.opts.ChartScriptURL,
	}
	for _, inst := range page.Instances {
		html, err := inst.HTML()
		if err != nil {
			m.logger.Error().Err(err).Str("tag", inst.Tag).Msg("render component")
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to render page")
		}
		data.Components = append(data.Components, html)
	}

	var buf bytes.Buffer
	if err := layoutTmpl.Execute(&buf, data); err != nil {
		m.logger.Error().Err(err).Msg("render layout")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render page")
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (m *Module) redirectUnknown(c echo.Context) error {
	path := c.Request().URL.Path
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return echo.ErrNotFound
		}
	}
	return c.Redirect(http.StatusFound, m.Router.Resolve(path).Canonical)
}

// mountDetached mounts tag for a single response. The active path for
// chrome components comes from the "route" query parameter.
func (m *Module) mountDetached(c echo.Context) (*component.Instance, error) {
	active := router.Normalize(c.QueryParam("route"))
	ctx := component.WithActivePath(c.Request().Context(), active)

	inst, err := m.Registry.Mount(ctx, c.Param("tag"))
	if err != nil {
		if errors.Is(err, component.ErrUnknownTag) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "unknown component "+c.Param("tag"))
		}
		m.logger.Error().Err(err).Str("tag", c.Param("tag")).Msg("mount component")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to mount component")
	}

	m.settle(c.Request().Context(), func(ctx context.Context) bool {
		select {
		case <-inst.Settled():
			return true
		case <-ctx.Done():
			return false
		}
	})
	return inst, nil
}

func (m *Module) componentFragment(c echo.Context) error {
	inst, err := m.mountDetached(c)
	if err != nil {
		return err
	}
	defer inst.Unmount()

	html, err := inst.HTML()
	if err != nil {
		m.logger.Error().Err(err).Str("tag", inst.Tag).Msg("render component")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render component")
	}
	return c.HTML(http.StatusOK, string(html))
}

func (m *Module) viewState(c echo.Context) error {
	inst, err := m.mountDetached(c)
	if err != nil {
		return err
	}
	defer inst.Unmount()
	return c.JSON(http.StatusOK, inst.Model())
}

func (m *Module) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": m.opts.Version,
	})
}

// settle waits up to RenderWait for wait to report settled.
func (m *Module) settle(ctx context.Context, wait func(context.Context) bool) {
	if m.opts.RenderWait <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.opts.RenderWait)
	defer cancel()
	wait(ctx)
}
