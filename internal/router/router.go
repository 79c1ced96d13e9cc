// Package router maps dashboard URLs to page templates. The route table is
// fixed at assembly; every URL resolves, falling back to the otherwise route.
package router

import (
	"fmt"
	"strings"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/component"
)

// PageTemplate names a page layout and the component tags it mounts, in
// render order.
type PageTemplate struct {
	Name  string
	Title string
	Tags  []string
}

type Route struct {
	Name string
	URL  string
	Page PageTemplate
}

var (
	UsersPage = PageTemplate{
		Name:  "usersPage",
		Title: "User List",
		Tags:  []string{component.TagHeader, component.TagUserBreadcrumbs, component.TagUsers},
	}
	PatientsPage = PageTemplate{
		Name:  "patientsPage",
		Title: "Patient List",
		Tags:  []string{component.TagHeader, component.TagPatientBreadcrumbs, component.TagPatients},
	}
	EncountersPage = PageTemplate{
		Name:  "encountersPage",
		Title: "Encounter List",
		Tags:  []string{component.TagHeader, component.TagEncounterBreadcrumbs, component.TagEncounters},
	}
)

const (
	RouteHome           = "home"
	RouteUsers          = "showUsersData"
	RoutePatients       = "showPatientsData"
	RouteEncounters     = "showEncountersData"
	DefaultOtherwiseKey = RouteHome
)

// DefaultRoutes is the dashboard's route table. "/" and "/user-list" share
// the users page.
func DefaultRoutes() []Route {
	return []Route{
		{Name: RouteHome, URL: component.PathHome, Page: UsersPage},
		{Name: RouteUsers, URL: component.PathUserList, Page: UsersPage},
		{Name: RoutePatients, URL: component.PathPatientList, Page: PatientsPage},
		{Name: RouteEncounters, URL: component.PathEncounterList, Page: EncountersPage},
	}
}

type Router struct {
	routes    []Route
	byURL     map[string]Route
	otherwise Route
}

// New builds a router over routes. otherwise names the catch-all route.
func New(routes []Route, otherwise string) (*Router, error) {
	r := &Router{byURL: make(map[string]Route, len(routes))}
	names := make(map[string]bool, len(routes))
	found := false

	for _, rt := range routes {
		if rt.Name == "" {
			return nil, fmt.Errorf("router: route for %q has no name", rt.URL)
		}
		if names[rt.Name] {
			return nil, fmt.Errorf("router: duplicate route name %q", rt.Name)
		}
		names[rt.Name] = true

		url := Normalize(rt.URL)
		if _, exists := r.byURL[url]; exists {
			return nil, fmt.Errorf("router: duplicate route url %q", url)
		}
		rt.URL = url
		r.byURL[url] = rt
		r.routes = append(r.routes, rt)

		if rt.Name == otherwise {
			r.otherwise = rt
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("router: otherwise route %q is not declared", otherwise)
	}
	return r, nil
}

// Default returns a router over DefaultRoutes.
func Default() *Router {
	r, err := New(DefaultRoutes(), DefaultOtherwiseKey)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

func (r *Router) Otherwise() Route {
	return r.otherwise
}

// Lookup finds a route by name.
func (r *Router) Lookup(name string) (Route, bool) {
	for _, rt := range r.routes {
		if rt.Name == name {
			return rt, true
		}
	}
	return Route{}, false
}

// Resolution is the outcome of resolving a raw URL.
type Resolution struct {
	Route     Route
	Canonical string
	// Redirect is set when the caller should replace the URL with Canonical.
	Redirect bool
	// Matched is false when the otherwise route was used as a fallback.
	Matched bool
}

// Resolve selects the route for raw. It never fails.
func (r *Router) Resolve(raw string) Resolution {
	path := Normalize(raw)
	if rt, ok := r.byURL[path]; ok {
		return Resolution{Route: rt, Canonical: rt.URL, Redirect: raw != rt.URL, Matched: true}
	}
	return Resolution{Route: r.otherwise, Canonical: r.otherwise.URL, Redirect: true}
}

// Normalize reduces a raw navigation target to a clean path. Hash and
// hash-bang markers are stripped ("#!/x", "/#/x" and "#/x" all become
// "/x"), the query string is dropped and slashes are collapsed.
func Normalize(raw string) string {
	p := strings.TrimSpace(raw)
	if i := strings.IndexByte(p, '#'); i >= 0 {
		p = p[i+1:]
	}
	p = strings.TrimLeft(p, "!")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}

	var b strings.Builder
	b.WriteByte('/')
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		if b.Len() > 1 {
			b.WriteByte('/')
		}
		b.WriteString(seg)
	}
	return b.String()
}
