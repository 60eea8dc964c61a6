// Package engine declares the container-engine collaborator interface
// (spec.md GLOSSARY: "Engine") that riptide-proxy resolves addresses
// against and drives autostart through. The concrete engine
// implementation (Docker, Podman, …) is out of scope per spec.md §1; this
// package is the seam plus a Mock used by tests.
package engine

import (
	"context"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/project"
)

// Address is a resolved container endpoint.
type Address struct {
	Host string
	Port int
}

// Status is the progress payload of a non-finished StartEvent. It mirrors
// the Python source's per-service status object (steps/current_step/text).
type Status struct {
	Steps       int    `json:"steps"`
	CurrentStep int    `json:"current_step"`
	Text        string `json:"text"`
}

// StartEvent is one event yielded from Engine.StartProject's stream
// (spec.md §4.7, GLOSSARY "Engine"). Exactly one of Status/Err is
// meaningful at a time:
//   - Finished == false: Status holds progress, Err is nil.
//   - Finished == true, Err == nil: the service finished without error.
//   - Finished == true, Err != nil: the service failed to start.
type StartEvent struct {
	ServiceName string
	Status      Status
	Err         error
	Finished    bool
}

// Engine is the pluggable container-runtime abstraction. Implementations
// must be safe for concurrent use, since the resolver's AddressCache and
// the autostart coordinator may both call into it at any time (spec.md §5:
// "the engine itself is responsible for its internal concurrency").
type Engine interface {
	// AddressFor returns the live container address for a project/service,
	// or ok=false if the container is not running.
	AddressFor(ctx context.Context, p *project.Project, serviceName string) (addr Address, ok bool, err error)
	// StartProject begins starting the named services and streams
	// progress events until all of them are finished (or ctx is done).
	// The returned channel is closed when the stream ends; engines must
	// not block forever past ctx cancellation.
	StartProject(ctx context.Context, p *project.Project, services []string) (<-chan StartEvent, error)
}
