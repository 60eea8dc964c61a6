package engine

import (
	"context"
	"fmt"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/project"
)

// Noop is the Engine used when no concrete container-runtime provider is
// wired in (spec.md §1: the engine implementation itself is out of
// scope). Every service reports as not running, and starting one always
// fails; this keeps the proxy itself fully functional (landing page,
// status pages, the resolver) without requiring a real engine plugin.
type Noop struct{}

func (Noop) AddressFor(context.Context, *project.Project, string) (Address, bool, error) {
	return Address{}, false, nil
}

func (Noop) StartProject(ctx context.Context, p *project.Project, services []string) (<-chan StartEvent, error) {
	ch := make(chan StartEvent, len(services))
	for _, svc := range services {
		ch <- StartEvent{
			ServiceName: svc,
			Finished:    true,
			Err:         fmt.Errorf("no engine configured for project %q", p.Name),
		}
	}
	close(ch)
	return ch, nil
}
