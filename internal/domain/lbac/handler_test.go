package lbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/platform/auth"
	"github.com/openmrs/openmrs-module-locationbasedaccess/pkg/counts"
)

func newTestHandler() (*Handler, *mockRepo) {
	repo := newMockRepo()
	return NewHandler(NewService(repo), zerolog.Nop()), repo
}

func withRoles(req *http.Request, roles ...string) *http.Request {
	ctx := context.WithValue(req.Context(), auth.UserRolesKey, roles)
	ctx = context.WithValue(ctx, auth.UserIDKey, "tester")
	return req.WithContext(ctx)
}

func TestHandler_CountsPreserveOrder(t *testing.T) {
	h, repo := newTestHandler()
	repo.counts[KindUsers] = counts.Counts{{Label: "Zomba", Value: 2}, {Label: "Amani", Value: 0}}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws/rest/v1/lbac/locationwise-users-count", nil), rec)

	if err := h.countsFor(KindUsers)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := `{"results":{"Zomba":2,"Amani":0}}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestHandler_CountsEmpty(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	h.countsFor(KindEncounters)(c)
	if got := strings.TrimSpace(rec.Body.String()); got != `{"results":{}}` {
		t.Errorf("body = %s", got)
	}
}

func TestHandler_CountsError(t *testing.T) {
	h, repo := newTestHandler()
	repo.failGet = errors.New("db down")
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := h.countsFor(KindPatients)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %v", err)
	}
}

func TestHandler_ModuleDependency(t *testing.T) {
	h, repo := newTestHandler()
	repo.modules = []ModuleRequirement{{Name: "Open Web Apps Module", RequiredVersion: "1.4", Started: true}}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := h.ModuleDependency(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"Open Web Apps Module":{"requiredVersion":"1.4","status":"Installed"}}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestHandler_SetOnOff(t *testing.T) {
	h, repo := newTestHandler()
	e := echo.New()
	body := `{"locationbasedaccess.access.patient":"false","other":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(withRoles(req, "admin"), rec)

	if err := h.SetOnOff(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if repo.props[PropAccessPatient] != "false" {
		t.Errorf("props = %v", repo.props)
	}
	if _, ok := repo.props["other"]; ok {
		t.Error("unknown key stored")
	}
}

func TestHandler_SetOnOff_BadBody(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"locationbasedaccess.access.patient": true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.SetOnOff(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	h.RegisterRoutes(e.Group("/ws/rest/v1/lbac"))

	want := map[string]bool{
		"GET /ws/rest/v1/lbac/locationwise-patients-count":   false,
		"GET /ws/rest/v1/lbac/locationwise-users-count":      false,
		"GET /ws/rest/v1/lbac/locationwise-encounters-count": false,
		"GET /ws/rest/v1/lbac/module-dependency":             false,
		"GET /ws/rest/v1/lbac/on-off":                        false,
		"POST /ws/rest/v1/lbac/on-off":                       false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for key, found := range want {
		if !found {
			t.Errorf("route %s not registered", key)
		}
	}
}

func TestHandler_RolesEnforced(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	g := e.Group("/ws/rest/v1/lbac", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			roles := strings.Split(c.Request().Header.Get("X-Test-Roles"), ",")
			c.SetRequest(withRoles(c.Request(), roles...))
			return next(c)
		}
	})
	h.RegisterRoutes(g)

	tests := []struct {
		method, path, roles string
		want                int
	}{
		{http.MethodGet, "/ws/rest/v1/lbac/locationwise-users-count", auth.RoleDashboard, http.StatusOK},
		{http.MethodGet, "/ws/rest/v1/lbac/locationwise-users-count", "nurse", http.StatusForbidden},
		{http.MethodGet, "/ws/rest/v1/lbac/on-off", auth.RoleDashboard, http.StatusForbidden},
		{http.MethodGet, "/ws/rest/v1/lbac/on-off", "admin", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		req.Header.Set("X-Test-Roles", tt.roles)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s %s as %s: got %d, want %d", tt.method, tt.path, tt.roles, rec.Code, tt.want)
		}
	}
}
