// Package resolver implements the project/service resolver (spec.md §4.1-
// §4.4): the host parser, the two sliding-TTL caches, and the composed
// decision used by both the HTTP and WebSocket proxy handlers.
package resolver

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/engine"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/project"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/rplog"
)

// Default cache TTLs (spec.md §3: "TTL is a build-time constant"), matching
// the Python source's `cache_timeout = 120`.
const (
	DefaultProjectCacheTTL = 120 * time.Second
	DefaultAddressCacheTTL = 120 * time.Second
)

// ResolveStatus is the tag of the resolver's sum-type result (spec.md
// §4.4). One variant per row of that table, each carrying only the fields
// that are meaningful for it - see ResolveResult.
type ResolveStatus int

const (
	// NoProject is the landing page: the host equals the base URL.
	NoProject ResolveStatus = iota
	// ProjectNotFound: no mapping entry, even after a reload.
	ProjectNotFound
	// NoMainService: project loaded, no service requested, no main role.
	NoMainService
	// ServiceNotFound: an explicit service name isn't in the project.
	ServiceNotFound
	// NotStarted: no container address, autostart disabled.
	NotStarted
	// NotStartedAutostart: no container address, autostart enabled.
	NotStartedAutostart
	// Success: a live upstream was found.
	Success
)

// ResolveResult is the resolver's tagged decision. Only the fields
// documented for Status in spec.md §4.4 are populated; the rest are zero.
type ResolveResult struct {
	Status ResolveStatus

	// ProjectName is set for ProjectNotFound (the name nobody could find).
	ProjectName string

	// Project is set for every status except NoProject/ProjectNotFound.
	Project *project.Project

	// RequestedService is the service name as it appeared in the URL; set
	// for NoMainService and ServiceNotFound.
	RequestedService string

	// ResolvedService is the service actually targeted (either the
	// requested one, or the project's main service); set for NotStarted,
	// NotStartedAutostart, and Success.
	ResolvedService string

	// UpstreamURL is the `http://host:port` origin; set for Success only.
	UpstreamURL string
}

// Storage bundles the project mapping and the two caches behind a single
// service boundary (spec.md §9: "Treat RuntimeStorage as a service, not a
// record that handlers mutate in place."). All mutation - cache hits,
// loads, and the cache-flush retry - happens through its methods so
// callers can never see a half-updated RuntimeStorage.
type Storage struct {
	mu       sync.Mutex
	mapping  project.Mapping
	loader   project.Loader
	projects *ProjectCache
	addrs    *AddressCache
	engine   engine.Engine

	// UseCompression mirrors the Python RuntimeStorage's
	// use_compression flag. It is not consulted by the core request path
	// (response-body compression is a spec.md Non-goal); it exists so a
	// RouteProvider or transport layer can opt into it later.
	UseCompression bool
}

// NewStorage builds a Storage with fresh, empty caches. mapping is the
// initial ProjectsMapping, typically loaded once at startup.
func NewStorage(loader project.Loader, mapping project.Mapping, eng engine.Engine, projectTTL, addressTTL time.Duration) *Storage {
	return &Storage{
		mapping:  mapping,
		loader:   loader,
		projects: NewProjectCache(projectTTL),
		addrs:    NewAddressCache(addressTTL),
		engine:   eng,
	}
}

// reloadMappingLocked reloads the ProjectsMapping from the loader. Called
// with mu held.
func (s *Storage) reloadMappingLocked() {
	m, err := s.loader.LoadMapping()
	if err != nil {
		rplog.Named("resolver").Sugar().Warnf("reloading project mapping: %v", err)
		return
	}
	s.mapping = m
}

func (s *Storage) mappingPath(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.mapping[name]
	if !ok {
		s.reloadMappingLocked()
		path, ok = s.mapping[name]
	}
	return path, ok
}

// GetOrLoadProject resolves a project by name (spec.md §4.2
// get_or_load): a missing mapping entry triggers exactly one mapping
// reload/retry; a ProjectCache miss or stale entry triggers exactly one
// loader call. Returns (nil, nil) when the project genuinely does not
// exist; returns a *ProjectLoadError for any other load failure.
func (s *Storage) GetOrLoadProject(name string) (*project.Project, error) {
	path, ok := s.mappingPath(name)
	if !ok {
		return nil, nil
	}

	if p, ok := s.projects.Get(path); ok {
		return p, nil
	}

	p, err := s.loader.LoadProject(path)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, &ProjectLoadError{ProjectName: name, Cause: err}
	}
	s.projects.Put(path, p)
	return p, nil
}

// GetAllProjects forces a full mapping reload and attempts to load every
// project in it, collecting per-project errors without aborting (spec.md
// §4.2 get_all). The result is sorted by project name.
func (s *Storage) GetAllProjects() ([]*project.Project, []*ProjectLoadError) {
	s.mu.Lock()
	s.reloadMappingLocked()
	mapping := make(project.Mapping, len(s.mapping))
	for k, v := range s.mapping {
		mapping[k] = v
	}
	s.mu.Unlock()

	names := mapping.SortedNames()
	projects := make([]*project.Project, 0, len(names))
	var errs []*ProjectLoadError
	for _, name := range names {
		path := mapping[name]
		p, ok := s.projects.Get(path)
		if !ok {
			loaded, err := s.loader.LoadProject(path)
			if err != nil {
				errs = append(errs, &ProjectLoadError{ProjectName: name, Cause: err})
				continue
			}
			s.projects.Put(path, loaded)
			p = loaded
		}
		projects = append(projects, p)
	}
	return projects, errs
}

// ResolveAddress resolves a project/service pair to an upstream origin
// (spec.md §4.3). A false ok with a nil err means "not running"; it is
// never cached, so a container that starts later is found on the next
// call.
func (s *Storage) ResolveAddress(ctx context.Context, p *project.Project, serviceName string) (string, bool, error) {
	key := project.ServiceKey(p.Name, serviceName)
	if addr, ok := s.addrs.Get(key); ok {
		return addr, true, nil
	}
	host, ok, err := s.engine.AddressFor(ctx, p, serviceName)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	origin := fmt.Sprintf("http://%s:%d", host.Host, host.Port)
	s.addrs.Put(key, origin)
	return origin, true, nil
}

// FlushAll reloads the ProjectsMapping and empties both caches in one
// shot - the cache-flush retry path of spec.md §4.5, and invariant I3.
func (s *Storage) FlushAll() {
	s.mu.Lock()
	s.reloadMappingLocked()
	s.mu.Unlock()
	s.projects.Flush()
	s.addrs.Flush()
}

// Engine returns the configured engine handle, for callers (e.g. the
// autostart coordinator) that need to drive it directly.
func (s *Storage) Engine() engine.Engine { return s.engine }

// Resolver composes the host parser and Storage into the single decision
// used by both proxy handlers (spec.md §4.4).
type Resolver struct {
	BaseURL   string
	Storage   *Storage
	Autostart bool
}

// Resolve implements spec.md §4.4's algorithm end to end.
func (r *Resolver) Resolve(ctx context.Context, hostHeader string) (ResolveResult, error) {
	projectName, requestedService, landing := ParseHost(hostHeader, r.BaseURL)
	if landing {
		return ResolveResult{Status: NoProject}, nil
	}

	p, err := r.Storage.GetOrLoadProject(projectName)
	if err != nil {
		return ResolveResult{}, err
	}
	if p == nil {
		return ResolveResult{Status: ProjectNotFound, ProjectName: projectName}, nil
	}

	resolvedService := requestedService
	if resolvedService == "" {
		main, ok := p.MainService()
		if !ok {
			return ResolveResult{Status: NoMainService, Project: p, RequestedService: requestedService}, nil
		}
		resolvedService = main
	} else if !p.HasService(resolvedService) {
		return ResolveResult{Status: ServiceNotFound, Project: p, RequestedService: requestedService}, nil
	}

	addr, ok, err := r.Storage.ResolveAddress(ctx, p, resolvedService)
	if err != nil {
		return ResolveResult{}, err
	}
	if !ok {
		if r.Autostart {
			return ResolveResult{Status: NotStartedAutostart, Project: p, ResolvedService: resolvedService}, nil
		}
		return ResolveResult{Status: NotStarted, Project: p, ResolvedService: resolvedService}, nil
	}

	return ResolveResult{Status: Success, Project: p, ResolvedService: resolvedService, UpstreamURL: addr}, nil
}

// notExister lets test doubles (and any future Loader implementation)
// signal "no such project" without depending on the os package's
// PathError shape.
type notExister interface{ IsNotExist() bool }

func isNotExist(err error) bool {
	if ne, ok := err.(notExister); ok {
		return ne.IsNotExist()
	}
	return os.IsNotExist(err)
}
