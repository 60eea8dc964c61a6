// Package project models the Project document (spec.md §3) and the
// external collaborator interface riptide-proxy uses to load it and to
// discover which project files exist on disk. The project *configuration
// loader* itself (how `default_services`, roles etc. are actually authored
// and validated upstream) is out of scope per spec.md §1; this package
// only has the shape the proxy core needs.
package project

import "sort"

// SEP separates project and service labels, both in the ServiceKey cache
// key and in the external hostname grammar (spec.md §3, §6).
const SEP = "--"

// MainRole is the Service.Role value that marks a service as the project's
// default routing target when no service is named in the URL.
const MainRole = "main"

// Service is a single named container within a Project.
type Service struct {
	Name string
	Role string
}

// Project is the proxy's view of a project document: a name, its set of
// services, an optional ordered default-start list, and derived lookup of
// the main service. Treated as immutable once loaded (spec.md §3).
type Project struct {
	Name            string
	Services        map[string]Service
	DefaultServices []string // nil when the document does not set it
}

// HasService reports whether name is one of the project's services.
func (p *Project) HasService(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Services[name]
	return ok
}

// MainService returns the name of the service carrying role MainRole, and
// whether one exists. Mirrors the original's
// `project["app"].get_service_name_by_role("main")`.
func (p *Project) MainService() (string, bool) {
	if p == nil {
		return "", false
	}
	for _, svc := range p.Services {
		if svc.Role == MainRole {
			return svc.Name, true
		}
	}
	return "", false
}

// StartServices returns the ordered list of services to start for
// autostart (spec.md §4.7): the project's DefaultServices if set,
// otherwise every service in the project, sorted by name.
func (p *Project) StartServices() []string {
	if p == nil {
		return nil
	}
	if p.DefaultServices != nil {
		out := make([]string, len(p.DefaultServices))
		copy(out, p.DefaultServices)
		return out
	}
	out := make([]string, 0, len(p.Services))
	for name := range p.Services {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ServiceKey composes the AddressCache key / hostname-grammar token for a
// project+service pair.
func ServiceKey(projectName, serviceName string) string {
	return projectName + SEP + serviceName
}
