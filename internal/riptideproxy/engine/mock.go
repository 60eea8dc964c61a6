package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/project"
)

// Mock is a test double for Engine: addresses and start-event scripts are
// set up ahead of time and calls are counted, so tests can assert on the
// single-run guarantee (spec.md P6) and the cache-flush retry path (S6).
type Mock struct {
	mu sync.Mutex

	Addresses map[string]Address // key: project.ServiceKey(project, service)
	Events    []StartEvent       // scripted start() stream, replayed verbatim

	AddressCalls atomic.Int64
	StartCalls   atomic.Int64
}

func (m *Mock) AddressFor(_ context.Context, p *project.Project, serviceName string) (Address, bool, error) {
	m.AddressCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, ok := m.Addresses[project.ServiceKey(p.Name, serviceName)]
	return addr, ok, nil
}

func (m *Mock) StartProject(ctx context.Context, _ *project.Project, _ []string) (<-chan StartEvent, error) {
	m.StartCalls.Add(1)
	ch := make(chan StartEvent, len(m.Events))
	for _, ev := range m.Events {
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	}
	close(ch)
	return ch, nil
}
