package lbac

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/auth"
	"github.com/openmrs/openmrs-module-locationbasedaccess/pkg/counts"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the count API on g, which is expected at
// /ws/rest/v1/lbac behind the auth middleware.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	read := g.Group("", auth.RequireRole(auth.RoleDashboard))
	read.GET("/locationwise-patients-count", h.countsFor(KindPatients))
	read.GET("/locationwise-users-count", h.countsFor(KindUsers))
	read.GET("/locationwise-encounters-count", h.countsFor(KindEncounters))
	read.GET("/module-dependency", h.ModuleDependency)

	admin := g.Group("", auth.RequireRole("admin"))
	admin.GET("/on-off", h.GetOnOff)
	admin.POST("/on-off", h.SetOnOff)
}

type countsResponse struct {
	Results counts.Counts `json:"results"`
}

func (h *Handler) countsFor(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		result, err := h.svc.LocationCounts(c.Request().Context(), kind)
		if err != nil {
			h.logger.Error().Err(err).Str("kind", string(kind)).Msg("location counts")
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to load counts")
		}
		return c.JSON(http.StatusOK, countsResponse{Results: result})
	}
}

func (h *Handler) ModuleDependency(c echo.Context) error {
	deps, err := h.svc.ModuleDependencies(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("module dependencies")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load module dependencies")
	}
	return c.JSON(http.StatusOK, deps)
}

func (h *Handler) GetOnOff(c echo.Context) error {
	settings, err := h.svc.AccessSettings(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("access settings")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load access settings")
	}
	return c.JSON(http.StatusOK, settings)
}

func (h *Handler) SetOnOff(c echo.Context) error {
	var body map[string]string
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be an object of string values")
	}
	written, err := h.svc.UpdateAccessSettings(c.Request().Context(), body)
	if err != nil {
		h.logger.Error().Err(err).Msg("update access settings")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update access settings")
	}
	h.logger.Info().
		Str("user_id", auth.UserIDFromContext(c.Request().Context())).
		Strs("properties", written).
		Msg("access settings updated")
	return c.NoContent(http.StatusOK)
}
