package dashboard

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed assets
var embedded embed.FS

func assets() fs.FS {
	sub, err := fs.Sub(embedded, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// pageData is what the page layout executes against.
type pageData struct {
	Title          string
	Page           string
	Route          string
	ChartScriptURL string
	Components     []template.HTML
}

const layoutTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}} | Location Based Access</title>
  <link rel="stylesheet" href="/static/dashboard.css">
{{- if .ChartScriptURL}}
  <script src="{{.ChartScriptURL}}" defer></script>
{{- end}}
  <script src="/static/dashboard.js" defer></script>
</head>
<body data-page="{{.Page}}" data-route="{{.Route}}">
{{- range .Components}}
{{.}}
{{- end}}
</body>
</html>
`

var layoutTmpl = template.Must(template.New("layout").Parse(layoutTemplate))
