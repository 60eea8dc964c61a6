package proxyhttp

import "html/template"

// Template names match spec.md §6's status-page template names exactly,
// so logs and tests can refer to the same vocabulary as the spec. The
// actual page markup is an external collaborator per spec.md §1 ("status
// page HTML templates" is out of scope); these are minimal built-ins good
// enough to satisfy the contract (status code + enough content to debug).
const (
	TplLandingPage       = "pp_landing_page"
	Tpl500               = "pp_500"
	Tpl500ProjectLoad    = "pp_500_project_load"
	Tpl502               = "pp_502"
	TplNoMainService     = "pp_no_main_service"
	TplServiceNotFound   = "pp_service_not_found"
	TplStartProject      = "pp_start_project"
	TplProjectNotStarted = "pp_project_not_started"
	TplProjectNotFound   = "pp_project_not_found"
	TplGatewayTimeout    = "pp_gateway_timeout"
)

var defaultTemplates = map[string]string{
	TplLandingPage: `<!doctype html><title>{{.Title}}</title><h1>Riptide Proxy</h1>
<p>Base URL: {{.BaseURL}}</p>
<h2>Projects</h2><ul>{{range .AllProjects}}<li>{{.Name}}</li>{{else}}<li>(none)</li>{{end}}</ul>
{{if .LoadErrors}}<h2>Load errors</h2><ul>{{range .LoadErrors}}<li>{{range .}}<div>{{.}}</div>{{end}}</li>{{end}}</ul>{{end}}`,

	Tpl500: `<!doctype html><title>{{.Title}}</title><h1>500 Internal Server Error</h1>
<pre>{{.Err}}</pre><pre>{{.Trace}}</pre><p>Request ID: {{.RequestID}}</p>`,

	Tpl500ProjectLoad: `<!doctype html><title>{{.Title}}</title><h1>Error loading project {{.Project}}</h1>
<ul>{{range .Trace}}<li>{{.}}</li>{{end}}</ul><p>Request ID: {{.RequestID}}</p>`,

	Tpl502: `<!doctype html><title>{{.Title}}</title><h1>502 Bad Gateway</h1><pre>{{.Err}}</pre>`,

	TplNoMainService: `<!doctype html><title>{{.Title}}</title><h1>No Main Service</h1>
<p>Project {{.Project.Name}} has no service with role "main". Available services:</p>
<ul>{{range $name, $svc := .Project.Services}}<li>{{$name}}</li>{{end}}</ul>`,

	TplServiceNotFound: `<!doctype html><title>{{.Title}}</title><h1>Service Not Found</h1>
<p>Project {{.Project.Name}} has no service named "{{.ServiceName}}". Available services:</p>
<ul>{{range $name, $svc := .Project.Services}}<li>{{$name}}</li>{{end}}</ul>`,

	TplStartProject: `<!doctype html><title>{{.Title}}</title><h1>Starting {{.Project.Name}}--{{.ServiceName}}...</h1>
<p>The autostart flow for this service is served at <code>/___riptide_proxy_ws</code>.</p>`,

	TplProjectNotStarted: `<!doctype html><title>{{.Title}}</title><h1>Service Not Started</h1>
<p>{{.Project.Name}}--{{.ServiceName}} is not running.</p>`,

	TplProjectNotFound: `<!doctype html><title>{{.Title}}</title><h1>Project Not Found</h1>
<p>No project named "{{.ProjectName}}" was found.</p>`,

	TplGatewayTimeout: `<!doctype html><title>{{.Title}}</title><h1>504 Gateway Timeout</h1>
<p>{{.Project.Name}}--{{.ServiceName}} did not respond in time.</p>`,
}

// Templates is the status-page renderer injected into the HTTP handler,
// replacing the source's cyclic handler<->application dependency with a
// plain capability (spec.md §9's design note on that cycle).
type Templates struct {
	set *template.Template
}

// NewTemplates parses the built-in template set. Returns an error if any
// template fails to parse (it never should - this is purely a startup-time
// sanity check).
func NewTemplates() (*Templates, error) {
	root := template.New("root")
	for name, body := range defaultTemplates {
		if _, err := root.New(name).Parse(body); err != nil {
			return nil, err
		}
	}
	return &Templates{set: root}, nil
}
