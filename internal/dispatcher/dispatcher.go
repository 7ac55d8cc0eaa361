// Package dispatcher implements Dispatcher: chooses the next pod for a
// deployment under a pluggable balancing strategy and resolves its
// reachable address. Grounded on src/pkg/scaling/scaler.go's shape,
// a small stateful struct over the container manager's listing, with
// the round-robin counter kept in its own lock separate from the
// registry's.
package dispatcher

import (
	"math/rand"
	"sort"
	"sync"

	"podctl/internal/podtypes"
	"podctl/internal/registry"
)

// Strategy selects which of a set of healthy pods serves the next
// request.
type Strategy string

const (
	RoundRobin       Strategy = "round-robin"
	Random           Strategy = "random"
	LeastConnections Strategy = "least-connections"
)

// Dispatcher chooses backends for inbound requests.
type Dispatcher struct {
	registry *registry.Registry
	strategy Strategy

	mu      sync.Mutex
	counter uint64
}

// New creates a Dispatcher over registry using strategy. An empty or
// unrecognized strategy defaults to round-robin.
func New(reg *registry.Registry, strategy Strategy) *Dispatcher {
	if strategy == "" {
		strategy = RoundRobin
	}
	return &Dispatcher{registry: reg, strategy: strategy}
}

// NextPod returns one of the healthy pods for deployment under the
// configured strategy, or (Pod{}, false) if none are healthy.
func (d *Dispatcher) NextPod(deployment string) (podtypes.Pod, bool) {
	candidates := d.registry.HealthyPodsByDeployment(deployment)
	if len(candidates) == 0 {
		return podtypes.Pod{}, false
	}
	// The registry returns pods in map order; sort by id so the
	// round-robin index refers to the same pod from call to call.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	switch d.strategy {
	case Random:
		return candidates[rand.Intn(len(candidates))], true
	case LeastConnections:
		// TODO: track per-pod in-flight connection counts. Until then
		// this just returns the first candidate.
		return candidates[0], true
	default:
		return candidates[d.next(len(candidates))], true
	}
}

// next advances the shared round-robin counter under its own mutex and
// returns an index modulo n. The counter is shared across deployments
// rather than kept per-deployment, but this never deadlocks against
// the registry lock because NextPod snapshots the healthy-pods view
// first.
func (d *Dispatcher) next(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := int(d.counter % uint64(n))
	d.counter++
	return idx
}

// NextAddress returns the reachable address of NextPod's result, or
// ("", false) if no pod is healthy.
func (d *Dispatcher) NextAddress(deployment string) (string, bool) {
	pod, ok := d.NextPod(deployment)
	if !ok {
		return "", false
	}
	return pod.HostAddress(), true
}
