package component

import (
	"encoding/json"
	"html/template"
	"strconv"
)

const (
	TagHeader               = "header"
	TagPatientBreadcrumbs   = "breadcrumbs-patient-list"
	TagUserBreadcrumbs      = "breadcrumbs-user-list"
	TagEncounterBreadcrumbs = "breadcrumbs-encounter-list"
	TagPatients             = "patients"
	TagUsers                = "users"
	TagEncounters           = "encounters"
)

const headerTemplate = `<header class="lbac-header" data-mount="{{.ID}}">
  <a class="lbac-brand" href="/">Location Based Access</a>
  <nav>
    <ul>
{{- range .Model.Links}}
      <li><a href="{{.URL}}"{{if .Active}} class="active" aria-current="page"{{end}}>{{.Label}}</a></li>
{{- end}}
    </ul>
  </nav>
</header>`

const breadcrumbTemplate = `<nav class="lbac-breadcrumbs" aria-label="breadcrumb" data-mount="{{.ID}}" data-tag="{{.Tag}}">
  <ol>
{{- range .Model.Crumbs}}
{{- if .Active}}
    <li class="active" aria-current="page">{{.Label}}</li>
{{- else}}
    <li><a href="{{.URL}}">{{.Label}}</a></li>
{{- end}}
{{- end}}
  </ol>
</nav>`

const chartTemplate = `<section class="lbac-view" data-mount="{{.ID}}" data-tag="{{.Tag}}" data-status="{{.Model.Status}}">
  <h2>{{.Model.Title}}</h2>
  <canvas class="chart chart-bar" id="chart-{{.ID}}"
    data-labels="{{json .Model.Labels}}"
    data-series="{{json .Model.Series}}"
    data-values="{{json .Model.Values}}"></canvas>
{{- if .Model.Failed}}
  <p class="muted">Counts are currently unavailable.</p>
{{- else if .Model.Pending}}
  <p class="muted">Loading&hellip;</p>
{{- end}}
  <table class="lbac-table">
    <thead><tr><th>Location</th><th>{{index .Model.Series 0}}</th></tr></thead>
    <tbody>
{{- range .Model.Rows}}
      <tr><td>{{.Label}}</td><td>{{count .Value}}</td></tr>
{{- end}}
    </tbody>
  </table>
</section>`

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
	"count": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
}

func parse(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Parse(text))
}

var (
	headerTmpl     = parse(TagHeader, headerTemplate)
	breadcrumbTmpl = parse("breadcrumbs", breadcrumbTemplate)
	chartTmpl      = parse("chart", chartTemplate)
)
