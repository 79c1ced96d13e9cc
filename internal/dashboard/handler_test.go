package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/component"
	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/view"
)

func parseHTML(t *testing.T, body string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func byTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return attr(n, "data-tag") == tag }
}

func get(t *testing.T, h http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	return nil
}

func TestPage_RendersMountedComponents(t *testing.T) {
	m := newTestModule(t, stockFetcher(), Options{ChartScriptURL: "https://cdn.example.org/chart.js"})
	e := m.NewEcho(ServerOptions{})

	rec := get(t, e, "/patient-list")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if sessionCookie(rec) == nil {
		t.Error("expected session cookie")
	}

	doc := parseHTML(t, rec.Body.String())
	sections := findAll(doc, byTag(component.TagPatients))
	if len(sections) != 1 {
		t.Fatalf("expected one patients section, got %d", len(sections))
	}
	if got := attr(sections[0], "data-status"); got != "Loaded" {
		t.Errorf("status = %s, want Loaded", got)
	}
	canvas := findAll(sections[0], func(n *html.Node) bool { return n.Data == "canvas" })
	if len(canvas) != 1 || attr(canvas[0], "data-labels") != `["Amani Hospital","Inpatient Ward"]` {
		t.Errorf("unexpected chart labels %v", canvas)
	}
	if len(findAll(doc, byTag(component.TagPatientBreadcrumbs))) != 1 {
		t.Error("expected patient breadcrumbs")
	}

	active := findAll(doc, func(n *html.Node) bool { return n.Data == "a" && attr(n, "class") == "active" })
	if len(active) != 1 || attr(active[0], "href") != component.PathPatientList {
		t.Errorf("expected patient-list link active, got %d active links", len(active))
	}

	scripts := findAll(doc, func(n *html.Node) bool { return n.Data == "script" })
	if len(scripts) != 2 || attr(scripts[0], "src") != "https://cdn.example.org/chart.js" {
		t.Errorf("unexpected scripts %d", len(scripts))
	}
}

func TestPage_HomeShowsUsers(t *testing.T) {
	m := newTestModule(t, stockFetcher(), Options{})
	rec := get(t, m.NewEcho(ServerOptions{}), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	doc := parseHTML(t, rec.Body.String())
	if len(findAll(doc, byTag(component.TagUsers))) != 1 {
		t.Error("home should render the users view")
	}
}

func TestPage_Redirects(t *testing.T) {
	m := newTestModule(t, stockFetcher(), Options{})
	e := m.NewEcho(ServerOptions{})

	tests := []struct {
		path     string
		location string
	}{
		{"/nope", "/"},
		{"/patients/3", "/"},
		{"/user-list/", "/user-list"},
		{"/healthz", "/"},
		{"/health-anything", "/"},
	}
	for _, tt := range tests {
		rec := get(t, e, tt.path)
		if rec.Code != http.StatusFound {
			t.Errorf("GET %s: expected 302, got %d", tt.path, rec.Code)
			continue
		}
		if got := rec.Header().Get("Location"); got != tt.location {
			t.Errorf("GET %s: Location = %s, want %s", tt.path, got, tt.location)
		}
	}
	if m.SessionCount() != 0 {
		t.Error("redirects should not start sessions")
	}
}

func TestPage_ReservedPathsAreNotRedirected(t *testing.T) {
	m := newTestModule(t, stockFetcher(), Options{})
	e := m.NewEcho(ServerOptions{})

	for _, path := range []string{"/ws/rest/v1/lbac/unknown", "/api/other", "/static/missing.js", "/health/db"} {
		if rec := get(t, e, path); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestPage_SessionSwapsControllers(t *testing.T) {
	m := newTestModule(t, stockFetcher(), Options{})
	e := m.NewEcho(ServerOptions{})

	first := get(t, e, "/patient-list")
	cookie := sessionCookie(first)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	sess := m.sessions.sessions[cookie.Value]
	patients, ok := sess.nav.Current().Tagged(component.TagPatients)
	if !ok {
		t.Fatal("patients not mounted")
	}

	second := get(t, e, "/user-list", cookie)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", second.Code)
	}
	if sessionCookie(second) != nil {
		t.Error("existing session should be reused")
	}
	if m.SessionCount() != 1 {
		t.Errorf("sessions = %d, want 1", m.SessionCount())
	}
	if !patients.Unmounted() {
		t.Error("patients component should be unmounted after route change")
	}
	if _, ok := sess.nav.Current().Tagged(component.TagUsers); !ok {
		t.Error("users component not mounted")
	}
}

func TestPage_RenderWaitIsBounded(t *testing.T) {
	f := stockFetcher()
	f.release = make(chan struct{})
	defer close(f.release)

	m := newTestModule(t, f, Options{RenderWait: 50 * time.Millisecond})
	start := time.Now()
	rec := get(t, m.NewEcho(ServerOptions{}), "/encounter-list")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("render blocked for %s", elapsed)
	}
	doc := parseHTML(t, rec.Body.String())
	sections := findAll(doc, byTag(component.TagEncounters))
	if len(sections) != 1 || attr(sections[0], "data-status") != "Loading" {
		t.Fatalf("expected loading encounters section")
	}
	rows := findAll(sections[0], func(n *html.Node) bool { return n.Data == "td" })
	if len(rows) != 0 {
		t.Errorf("loading view should render an empty table, got %d cells", len(rows))
	}
}

func TestPage_FailedFetchRendersEmptyState(t *testing.T) {
	f := stockFetcher()
	f.fail = errors.New("connection refused")
	m := newTestModule(t, f, Options{})

	rec := get(t, m.NewEcho(ServerOptions{}), "/patient-list")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	doc := parseHTML(t, rec.Body.String())
	sections := findAll(doc, byTag(component.TagPatients))
	if len(sections) != 1 || attr(sections[0], "data-status") != "Failed" {
		t.Fatal("expected failed patients section")
	}
	if !strings.Contains(rec.Body.String(), "Counts are currently unavailable.") {
		t.Error("expected unavailable note")
	}
}

func TestComponentFragment(t *testing.T) {
	m := newTestModule(t, stockFetcher(), Options{})
	e := m.NewEcho(ServerOptions{})

	rec := get(t, e, "/components/users")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	doc := parseHTML(t, rec.Body.String())
	sections := findAll(doc, byTag(component.TagUsers))
	if len(sections) != 1 || attr(sections[0], "data-status") != "Loaded" {
		t.Fatalf("unexpected fragment %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "<html") {
		t.Error("fragment should not include the page layout")
	}

	rec = get(t, e, "/components/header?route=%23!/encounter-list")
	doc = parseHTML(t, rec.Body.String())
	active := findAll(doc, func(n *html.Node) bool { return n.Data == "a" && attr(n, "class") == "active" })
	if len(active) != 1 || attr(active[0], "href") != component.PathEncounterList {
		t.Error("expected encounter-list link active")
	}

	if rec := get(t, e, "/components/bogus"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown tag: expected 404, got %d", rec.Code)
	}
}

func TestViewState(t *testing.T) {
	m := newTestModule(t, stockFetcher(), Options{})
	e := m.NewEcho(ServerOptions{})

	rec := get(t, e, "/api/views/users")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var state view.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if state.Status != view.Loaded {
		t.Errorf("status = %s", state.Status)
	}
	if len(state.Labels) != 2 || state.Labels[0] != "Male" || state.Values[1] != 98 {
		t.Errorf("unexpected state %+v", state)
	}
	if len(state.Series) != 1 || state.Series[0] != "Users" {
		t.Errorf("series = %v", state.Series)
	}
}

func TestViewState_Failed(t *testing.T) {
	f := stockFetcher()
	f.fail = errors.New("HTTP 500")
	m := newTestModule(t, f, Options{})

	rec := get(t, m.NewEcho(ServerOptions{}), "/api/views/encounters")
	var state view.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if state.Status != view.Failed || len(state.Labels) != 0 || len(state.Values) != 0 || state.Error == "" {
		t.Errorf("unexpected state %+v", state)
	}
}

func TestViewState_IndependentMounts(t *testing.T) {
	f := stockFetcher()
	m := newTestModule(t, f, Options{})
	e := m.NewEcho(ServerOptions{})

	get(t, e, "/api/views/patients")
	get(t, e, "/api/views/patients")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls != 2 {
		t.Errorf("expected one fetch per mount, got %d", f.calls)
	}
}

func TestHealth(t *testing.T) {
	m := newTestModule(t, stockFetcher(), Options{Version: "1.2.3"})
	rec := get(t, m.NewEcho(ServerOptions{}), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"ok","version":"1.2.3"}` {
		t.Errorf("body = %s", got)
	}
}

func TestStaticAssets(t *testing.T) {
	m := newTestModule(t, stockFetcher(), Options{})
	e := m.NewEcho(ServerOptions{})
	for _, path := range []string{"/static/dashboard.js", "/static/dashboard.css"} {
		if rec := get(t, e, path); rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestStaticAssets_ScriptPollsWhenLiveStreamFails(t *testing.T) {
	m := newTestModule(t, stockFetcher(), Options{})
	rec := get(t, m.NewEcho(ServerOptions{}), "/static/dashboard.js")
	body := rec.Body.String()
	for _, want := range []string{"ws.onclose", `"/api/views/"`, `status: "Failed"`} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard.js lacks %s", want)
		}
	}
}

func TestNewEcho_SecurityHeaders(t *testing.T) {
	m := newTestModule(t, stockFetcher(), Options{ChartScriptURL: "https://cdn.example.org/chart.js"})
	rec := get(t, m.NewEcho(ServerOptions{}), "/health")
	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "https://cdn.example.org") {
		t.Errorf("CSP %q does not allow the chart script", csp)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}
