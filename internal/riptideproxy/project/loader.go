package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Mapping is the project name -> on-disk project file path table
// (spec.md §3's ProjectsMapping).
type Mapping map[string]string

// Loader is the external collaborator that discovers project files and
// decodes a single project document. The "project configuration loader"
// proper (schema, templating, includes) is out of scope per spec.md §1;
// riptide-proxy only needs these two operations.
type Loader interface {
	// LoadMapping returns the current project name -> file path table.
	LoadMapping() (Mapping, error)
	// LoadProject decodes the project document at path. Returns an error
	// wrapping os.ErrNotExist if the file is gone.
	LoadProject(path string) (*Project, error)
}

// DirLoader is a concrete Loader backed by a directory of
// `<project-name>.riptide.yml` documents, used by the standalone binary
// and by tests. Each document looks like:
//
//	name: myproject
//	services:
//	  web: {role: main}
//	  db: {}
//	default_services: [web]
type DirLoader struct {
	Dir string
}

// projectDoc is the on-disk YAML shape decoded by DirLoader.
type projectDoc struct {
	Name     string `yaml:"name"`
	Services map[string]struct {
		Role string `yaml:"role"`
	} `yaml:"services"`
	DefaultServices []string `yaml:"default_services"`
}

func (l DirLoader) LoadMapping() (Mapping, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("listing project directory %s: %w", l.Dir, err)
	}
	mapping := make(Mapping)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".riptide.yml"
		if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
			continue
		}
		projectName := name[:len(name)-len(suffix)]
		mapping[projectName] = filepath.Join(l.Dir, name)
	}
	return mapping, nil
}

func (l DirLoader) LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err // callers check os.IsNotExist
	}
	var doc projectDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing project document %s: %w", path, err)
	}
	p := &Project{
		Name:            doc.Name,
		Services:        make(map[string]Service, len(doc.Services)),
		DefaultServices: doc.DefaultServices,
	}
	for name, svc := range doc.Services {
		p.Services[name] = Service{Name: name, Role: svc.Role}
	}
	return p, nil
}

// SortedNames returns m's project names in lexical order, used by the
// landing page's project listing (spec.md S2).
func (m Mapping) SortedNames() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
