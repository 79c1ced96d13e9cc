package component

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/view"
)

// ChartModel is the model of a count view: its ViewState plus display
// details. It marshals as the bare ViewState.
type ChartModel struct {
	view.State
	Title    string        `json:"-"`
	Resource view.Resource `json:"-"`
}

func (m ChartModel) Failed() bool  { return m.Status == view.Failed }
func (m ChartModel) Pending() bool { return !m.Status.Settled() }

type viewController struct {
	*view.Controller
	title string
}

func (v *viewController) Model() any {
	return ChartModel{State: v.Snapshot(), Title: v.title, Resource: v.Resource()}
}

func (v *viewController) Watch(fn func()) func() {
	return v.Subscribe(func(view.State) { fn() })
}

// View registers a count view for res. Each mount starts its own fetch
// through fetcher.
func View(tag, title string, fetcher view.Fetcher, res view.Resource, logger zerolog.Logger) Registration {
	return Registration{
		Tag:      tag,
		Template: chartTmpl,
		NewController: func(ctx context.Context) (Controller, error) {
			return &viewController{
				Controller: view.New(ctx, fetcher, res, logger),
				title:      title,
			}, nil
		},
	}
}

func PatientsView(fetcher view.Fetcher, logger zerolog.Logger) Registration {
	return View(TagPatients, "Patients by location", fetcher, view.Patients, logger)
}

func UsersView(fetcher view.Fetcher, logger zerolog.Logger) Registration {
	return View(TagUsers, "Users by location", fetcher, view.Users, logger)
}

func EncountersView(fetcher view.Fetcher, logger zerolog.Logger) Registration {
	return View(TagEncounters, "Encounters by location", fetcher, view.Encounters, logger)
}

// Stock returns the seven dashboard components.
func Stock(fetcher view.Fetcher, logger zerolog.Logger) []Registration {
	return []Registration{
		Header(),
		PatientBreadcrumbs(),
		UserBreadcrumbs(),
		EncounterBreadcrumbs(),
		PatientsView(fetcher, logger),
		UsersView(fetcher, logger),
		EncountersView(fetcher, logger),
	}
}
