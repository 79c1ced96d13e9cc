package component

import "context"

const (
	PathHome          = "/"
	PathUserList      = "/user-list"
	PathPatientList   = "/patient-list"
	PathEncounterList = "/encounter-list"
)

// Link is one header navigation entry.
type Link struct {
	Label  string
	URL    string
	Active bool
}

type HeaderModel struct {
	Links []Link `json:"links"`
}

type headerController struct {
	model HeaderModel
}

func (h *headerController) Model() any { return h.model }
func (h *headerController) Close()     {}

// Header registers the top navigation bar. The link for the path the
// component is mounted under is marked active; "/" shows the user list.
func Header() Registration {
	return Registration{
		Tag:      TagHeader,
		Template: headerTmpl,
		NewController: func(ctx context.Context) (Controller, error) {
			active := ActivePathFromContext(ctx)
			if active == PathHome {
				active = PathUserList
			}
			links := []Link{
				{Label: "Patients", URL: PathPatientList},
				{Label: "Users", URL: PathUserList},
				{Label: "Encounters", URL: PathEncounterList},
			}
			for i := range links {
				links[i].Active = links[i].URL == active
			}
			return &headerController{model: HeaderModel{Links: links}}, nil
		},
	}
}

// Crumb is one breadcrumb entry.
type Crumb struct {
	Label  string
	URL    string
	Active bool
}

type BreadcrumbModel struct {
	Crumbs []Crumb `json:"crumbs"`
}

type breadcrumbController struct {
	model BreadcrumbModel
}

func (b *breadcrumbController) Model() any { return b.model }
func (b *breadcrumbController) Close()     {}

// Breadcrumbs registers a breadcrumb trail Home → label. All variants share
// one template; only the active crumb differs.
func Breadcrumbs(tag, label, url string) Registration {
	return Registration{
		Tag:      tag,
		Template: breadcrumbTmpl,
		NewController: func(context.Context) (Controller, error) {
			return &breadcrumbController{model: BreadcrumbModel{Crumbs: []Crumb{
				{Label: "Home", URL: PathHome},
				{Label: label, URL: url, Active: true},
			}}}, nil
		},
	}
}

func PatientBreadcrumbs() Registration {
	return Breadcrumbs(TagPatientBreadcrumbs, "Patient List", PathPatientList)
}

func UserBreadcrumbs() Registration {
	return Breadcrumbs(TagUserBreadcrumbs, "User List", PathUserList)
}

func EncounterBreadcrumbs() Registration {
	return Breadcrumbs(TagEncounterBreadcrumbs, "Encounter List", PathEncounterList)
}
