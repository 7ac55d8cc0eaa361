// Package registry is the PodRegistry: the exclusive, mutex-serialized
// owner of the pod table. The deployment maps live in the Supervisor,
// under its own mutex. Grounded on manager/state_manager.go's single-mutex,
// map-of-structs design, generalized from one project-per-hostname to
// many pods per deployment.
package registry

import (
	"sort"
	"sync"

	"podctl/internal/podtypes"
)

// Registry is the in-memory pod table. All reads and writes serialize
// through mu; no I/O is ever performed while mu is held.
type Registry struct {
	mu   sync.Mutex
	pods map[string]podtypes.Pod
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		pods: make(map[string]podtypes.Pod),
	}
}

// Insert adds a new pod record.
func (r *Registry) Insert(p podtypes.Pod) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pods[p.ID] = p
}

// Remove deletes a pod record by id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pods, id)
}

// Get returns a pod by id.
func (r *Registry) Get(id string) (podtypes.Pod, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pods[id]
	return p, ok
}

// UpdateStatus transitions a pod's status in place.
func (r *Registry) UpdateStatus(id string, status podtypes.PodStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pods[id]; ok {
		p.Status = status
		r.pods[id] = p
	}
}

// UpdateContainerID sets a pod's container id after a successful run.
func (r *Registry) UpdateContainerID(id, containerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pods[id]; ok {
		p.ContainerID = containerID
		r.pods[id] = p
	}
}

// UpdateContainerIP sets a pod's container ip after a successful inspect.
func (r *Registry) UpdateContainerIP(id, ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pods[id]; ok {
		p.ContainerIP = ip
		r.pods[id] = p
	}
}

// IncrementFailures increments a pod's health-check failure counter and
// returns the new value.
func (r *Registry) IncrementFailures(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pods[id]
	if !ok {
		return 0
	}
	p.HealthCheckFailures++
	r.pods[id] = p
	return p.HealthCheckFailures
}

// ResetFailures zeroes a pod's health-check failure counter.
func (r *Registry) ResetFailures(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pods[id]; ok {
		p.HealthCheckFailures = 0
		r.pods[id] = p
	}
}

// AllPods returns a snapshot of every pod in the registry.
func (r *Registry) AllPods() []podtypes.Pod {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]podtypes.Pod, 0, len(r.pods))
	for _, p := range r.pods {
		out = append(out, p)
	}
	return out
}

// PodsByDeployment returns a snapshot of every pod belonging to name,
// in a stable (created-at) order.
func (r *Registry) PodsByDeployment(name string) []podtypes.Pod {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]podtypes.Pod, 0)
	for _, p := range r.pods {
		if p.DeploymentName == name {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// HealthyPods returns every running pod across all deployments.
func (r *Registry) HealthyPods() []podtypes.Pod {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]podtypes.Pod, 0)
	for _, p := range r.pods {
		if p.Status == podtypes.StatusRunning {
			out = append(out, p)
		}
	}
	return out
}

// HealthyPodsByDeployment returns the running pods belonging to name:
// {p | p.DeploymentName == name && p.Status == running}.
func (r *Registry) HealthyPodsByDeployment(name string) []podtypes.Pod {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]podtypes.Pod, 0)
	for _, p := range r.pods {
		if p.DeploymentName == name && p.Status == podtypes.StatusRunning {
			out = append(out, p)
		}
	}
	return out
}

// PodCountsByVersion returns, for deployment name, a map of release
// version to pod count.
func (r *Registry) PodCountsByVersion(name string) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, p := range r.pods {
		if p.DeploymentName == name {
			counts[p.ReleaseVersion]++
		}
	}
	return counts
}

// AllPodCountsByVersion returns PodCountsByVersion for every deployment
// currently represented in the registry.
func (r *Registry) AllPodCountsByVersion() map[string]map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]map[string]int)
	for _, p := range r.pods {
		counts, ok := out[p.DeploymentName]
		if !ok {
			counts = make(map[string]int)
			out[p.DeploymentName] = counts
		}
		counts[p.ReleaseVersion]++
	}
	return out
}

// AllPodsInfo returns, per deployment, the admin-facing PodInfo list.
func (r *Registry) AllPodsInfo() map[string][]podtypes.PodInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]podtypes.PodInfo)
	for _, p := range r.pods {
		out[p.DeploymentName] = append(out[p.DeploymentName], p.Info())
	}
	return out
}

// Len returns the number of pods currently tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pods)
}
