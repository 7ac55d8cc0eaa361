// Package supervisor is the Supervisor: the health tick loop, the
// rolling-update engine, and the release poller's caller. It is the
// sole author of pod replacement and rolling-update actions over the
// pod registry.
//
// Grounded on packages/proxy/internal/deployment/controller.go for the
// health-check-then-switch shape of a single rollout step, and on
// manager/state_manager.go for guarding deployment-level state with its
// own small mutex, separate from the pod table's.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"podctl/internal/healthprobe"
	"podctl/internal/metrics"
	"podctl/internal/podtypes"
	"podctl/internal/registry"
	"podctl/internal/release"
)

var logger = log.New(log.Writer(), "[SUPERVISOR] ", log.LstdFlags)

// Timing knobs for the health tick loop and rollout pacing. Kept as
// vars rather than consts so tests can shrink them instead of waiting
// out real timeouts.
var (
	healthTickInterval      = 10 * time.Second
	releaseThrottleInterval = 120 * time.Second
	waitHealthyTimeout      = 60 * time.Second
	waitHealthyInterval     = 2 * time.Second
	rollingUpdatePace       = 2 * time.Second
	shutdownBoundedWait     = 30 * time.Second
)

const (
	replaceFailureThreshold = 3
	startingHostPort        = 9000
)

// ContainerRuntime is the subset of RuntimeAdapter the Supervisor
// drives: building images, running and tearing down containers, and
// resolving a running container's address. Declared here, at the
// point of use, so tests can supply a fake in place of a real Docker
// connection.
type ContainerRuntime interface {
	BuildImage(ctx context.Context, dockerfile, buildContext, tag string, buildArgs map[string]string) error
	RunContainer(ctx context.Context, imageName, name string, hostPort, containerPort int) (string, error)
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	GetContainerIP(ctx context.Context, id string) (string, error)
}

// Supervisor owns pod replacement, rolling updates, and the health tick
// loop that drives both.
type Supervisor struct {
	registry *registry.Registry
	runtime  ContainerRuntime
	prober   *healthprobe.Prober
	poller   *release.Poller

	mu               sync.Mutex
	deployments      map[string]*podtypes.DeploymentState
	nextPort         int
	lastReleaseCheck time.Time

	startOnce  sync.Once
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New creates a Supervisor. The health tick loop does not start until
// the first successful Deploy.
func New(reg *registry.Registry, rt ContainerRuntime, prober *healthprobe.Prober, poller *release.Poller) *Supervisor {
	return &Supervisor{
		registry:    reg,
		runtime:     rt,
		prober:      prober,
		poller:      poller,
		deployments: make(map[string]*podtypes.DeploymentState),
		nextPort:    startingHostPort,
	}
}

// Deploy registers spec, resolves its starting release version,
// builds its image if needed, starts its initial replicas, and starts
// the health tick loop if this is the first deployment.
func (s *Supervisor) Deploy(ctx context.Context, spec podtypes.DeploymentSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	spec.ApplyDefaults()

	version := ""
	if spec.RemoteURL != "" {
		rel, err := s.poller.GetLatest(ctx, spec.RemoteURL)
		if err != nil || rel == nil {
			logger.Printf("warning: could not resolve starting release for %q, using version \"unknown\"", spec.Name)
			version = "unknown"
		} else {
			version = rel.TagName
		}
	}

	s.mu.Lock()
	s.deployments[spec.Name] = &podtypes.DeploymentState{Spec: spec, CurrentVersion: version}
	s.mu.Unlock()

	if spec.NeedsBuild() {
		args := map[string]string{}
		if version != "" && version != "unknown" {
			args["RELEASE_VERSION"] = version
		}
		if err := s.runtime.BuildImage(ctx, spec.Dockerfile, spec.Context, spec.ResolvedImage(), args); err != nil {
			logger.Printf("deploy %q: build failed: %v", spec.Name, err)
			return err
		}
	}

	for i := 0; i < spec.Replicas; i++ {
		if _, err := s.startPod(ctx, spec, version); err != nil {
			logger.Printf("deploy %q: failed to start replica %d/%d: %v", spec.Name, i+1, spec.Replicas, err)
		}
	}

	s.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(context.Background())
		s.loopCancel = cancel
		s.loopDone = make(chan struct{})
		go s.runLoop(loopCtx)
	})

	return nil
}

// runLoop is the health tick loop: fires immediately, then every
// healthTickInterval until cancelled. Ticks never overlap. The next
// wait begins only after the current tick's work, including any
// rolling update it triggers, has completed.
func (s *Supervisor) runLoop(ctx context.Context) {
	defer close(s.loopDone)

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(healthTickInterval):
			s.tick(ctx)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	now := time.Now()
	s.mu.Lock()
	due := s.lastReleaseCheck.IsZero() || now.Sub(s.lastReleaseCheck) >= releaseThrottleInterval
	if due {
		s.lastReleaseCheck = now
	}
	s.mu.Unlock()

	if due {
		s.releaseSweep(ctx)
	}
	s.healthCheckPass(ctx)
}

// healthCheckPass probes every running pod and replaces any that has
// failed replaceFailureThreshold consecutive times.
func (s *Supervisor) healthCheckPass(ctx context.Context) {
	for _, pod := range s.registry.HealthyPods() {
		spec, ok := s.specFor(pod.DeploymentName)
		if !ok {
			continue
		}
		host, port := probeTarget(pod)
		if s.prober.Check(host, port, spec.HealthCheckPath) {
			metrics.HealthChecks.WithLabelValues("healthy").Inc()
			s.registry.ResetFailures(pod.ID)
			continue
		}

		metrics.HealthChecks.WithLabelValues("unhealthy").Inc()
		failures := s.registry.IncrementFailures(pod.ID)
		if failures >= replaceFailureThreshold {
			s.replace(ctx, pod)
		}
	}
}

// startPod allocates a host port, starts a new container for spec, and
// inserts the resulting pod into the registry as running. version may
// be "" when the deployment has no upstream release tracked.
func (s *Supervisor) startPod(ctx context.Context, spec podtypes.DeploymentSpec, version string) (podtypes.Pod, error) {
	s.mu.Lock()
	hostPort := s.nextPort
	s.nextPort++
	s.mu.Unlock()

	pod := podtypes.Pod{
		ID:             uuid.NewString(),
		DeploymentName: spec.Name,
		Image:          spec.ResolvedImage(),
		ContainerPort:  spec.ContainerPort,
		HostPort:       hostPort,
		Status:         podtypes.StatusPending,
		ReleaseVersion: version,
		CreatedAt:      time.Now(),
	}

	containerID, err := s.runtime.RunContainer(ctx, pod.Image, pod.ContainerName(), hostPort, pod.ContainerPort)
	if err != nil {
		return podtypes.Pod{}, fmt.Errorf("start pod for %q: %w", spec.Name, err)
	}
	pod.ContainerID = containerID

	ip, err := s.runtime.GetContainerIP(ctx, containerID)
	if err != nil {
		logger.Printf("warning: could not inspect ip for container %s: %v", pod.ContainerName(), err)
	}
	pod.ContainerIP = ip

	pod.Status = podtypes.StatusRunning
	s.registry.Insert(pod)
	logger.Printf("pod %s (%s) running for deployment %q at %s", pod.ShortID(), pod.ReleaseVersion, spec.Name, pod.HostAddress())
	return pod, nil
}

// replace starts a fresh pod at the same version as an unhealthy pod;
// if the replacement becomes healthy within the timeout it takes over
// and the old pod is terminated, otherwise the replacement is discarded
// and the old pod is left in place to be retried on a later tick.
func (s *Supervisor) replace(ctx context.Context, pod podtypes.Pod) {
	spec, ok := s.specFor(pod.DeploymentName)
	if !ok {
		return
	}

	logger.Printf("pod %s unhealthy after %d checks, replacing", pod.ShortID(), replaceFailureThreshold)
	newPod, err := s.startPod(ctx, spec, pod.ReleaseVersion)
	if err != nil {
		logger.Printf("replace %s: failed to start replacement: %v", pod.ShortID(), err)
		metrics.PodReplacements.WithLabelValues(spec.Name, "start_failed").Inc()
		return
	}

	if s.waitForPodHealthy(ctx, newPod, waitHealthyTimeout, waitHealthyInterval) {
		s.registry.UpdateStatus(pod.ID, podtypes.StatusTerminating)
		s.terminate(ctx, pod)
		logger.Printf("pod %s replaced by %s", pod.ShortID(), newPod.ShortID())
		metrics.PodReplacements.WithLabelValues(spec.Name, "ok").Inc()
		return
	}

	logger.Printf("warning: replacement %s for %s never became healthy, keeping old pod", newPod.ShortID(), pod.ShortID())
	s.terminate(ctx, newPod)
	metrics.PodReplacements.WithLabelValues(spec.Name, "replacement_unhealthy").Inc()
}

// PerformRollingUpdate rolls deployment name forward to newVersion one
// pod at a time, preserving traffic continuity: the new pod must be
// healthy before the old one is terminated. At most one rolling update
// runs per deployment at a time.
func (s *Supervisor) PerformRollingUpdate(ctx context.Context, name, newVersion string) {
	ds, ok := s.deploymentState(name)
	if !ok {
		return
	}

	s.mu.Lock()
	if ds.RollingUpdateActive {
		s.mu.Unlock()
		return
	}
	ds.RollingUpdateActive = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		ds.RollingUpdateActive = false
		s.mu.Unlock()
	}()

	spec := ds.Spec
	logger.Printf("rolling update for %q: %s -> %s", name, ds.CurrentVersion, newVersion)

	currentPods := s.registry.PodsByDeployment(name)

	if spec.NeedsBuild() {
		if err := s.runtime.BuildImage(ctx, spec.Dockerfile, spec.Context, spec.ResolvedImage(), map[string]string{"RELEASE_VERSION": newVersion}); err != nil {
			logger.Printf("rolling update for %q: build failed: %v", name, err)
			metrics.RollingUpdates.WithLabelValues(name, "build_failed").Inc()
			return
		}
	}

	s.mu.Lock()
	ds.CurrentVersion = newVersion
	s.mu.Unlock()

	if len(currentPods) == 0 {
		for i := 0; i < spec.Replicas; i++ {
			if _, err := s.startPod(ctx, spec, newVersion); err != nil {
				logger.Printf("rolling update for %q: failed to start fresh replica: %v", name, err)
			}
		}
		metrics.RollingUpdates.WithLabelValues(name, "ok").Inc()
		return
	}

	for i, old := range currentPods {
		newPod, err := s.startPod(ctx, spec, newVersion)
		if err != nil {
			logger.Printf("rolling update for %q: failed to start replacement for %s: %v", name, old.ShortID(), err)
		} else if s.waitForPodHealthy(ctx, newPod, waitHealthyTimeout, waitHealthyInterval) {
			s.terminate(ctx, old)
			logger.Printf("rolling update for %q: %s -> %s ok", name, old.ShortID(), newPod.ShortID())
		} else {
			logger.Printf("rolling update for %q: replacement %s unhealthy, keeping %s", name, newPod.ShortID(), old.ShortID())
			s.terminate(ctx, newPod)
		}

		if i < len(currentPods)-1 {
			select {
			case <-ctx.Done():
				metrics.RollingUpdates.WithLabelValues(name, "cancelled").Inc()
				return
			case <-time.After(rollingUpdatePace):
			}
		}
	}

	logger.Printf("rolling update for %q complete at %s", name, newVersion)
	metrics.RollingUpdates.WithLabelValues(name, "ok").Inc()
}

// releaseSweep checks every deployment with a tracked upstream for a
// new release and kicks off a rolling update on a hit.
func (s *Supervisor) releaseSweep(ctx context.Context) {
	type candidate struct {
		name, remote, current string
	}

	s.mu.Lock()
	candidates := make([]candidate, 0, len(s.deployments))
	for name, ds := range s.deployments {
		if ds.Spec.RemoteURL != "" && !ds.RollingUpdateActive {
			candidates = append(candidates, candidate{name, ds.Spec.RemoteURL, ds.CurrentVersion})
		}
	}
	s.mu.Unlock()

	for _, c := range candidates {
		rel, err := s.poller.CheckForUpdate(ctx, c.remote, c.current)
		if err != nil {
			metrics.ReleasePolls.WithLabelValues(c.name, "error").Inc()
			continue
		}
		if rel == nil {
			metrics.ReleasePolls.WithLabelValues(c.name, "no_update").Inc()
			continue
		}
		metrics.ReleasePolls.WithLabelValues(c.name, "hit").Inc()
		s.PerformRollingUpdate(ctx, c.name, rel.TagName)
	}
}

// waitForPodHealthy polls pod's health endpoint at interval until
// healthy or timeout elapses.
func (s *Supervisor) waitForPodHealthy(ctx context.Context, pod podtypes.Pod, timeout, interval time.Duration) bool {
	spec, ok := s.specFor(pod.DeploymentName)
	if !ok {
		return false
	}
	host, port := probeTarget(pod)
	deadline := time.Now().Add(timeout)

	for {
		if s.prober.Check(host, port, spec.HealthCheckPath) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}

// terminate transitions pod to terminating, best-effort stops and
// removes its container, then marks it terminated and drops it from
// the registry.
func (s *Supervisor) terminate(ctx context.Context, pod podtypes.Pod) {
	s.registry.UpdateStatus(pod.ID, podtypes.StatusTerminating)

	if pod.ContainerID != "" {
		if err := s.runtime.StopContainer(ctx, pod.ContainerID); err != nil {
			logger.Printf("warning: failed to stop container for pod %s: %v", pod.ShortID(), err)
		}
		if err := s.runtime.RemoveContainer(ctx, pod.ContainerID); err != nil {
			logger.Printf("warning: failed to remove container for pod %s: %v", pod.ShortID(), err)
		}
	}

	s.registry.UpdateStatus(pod.ID, podtypes.StatusTerminated)
	s.registry.Remove(pod.ID)
}

// Shutdown cancels the health tick loop and terminates every pod,
// bounded by shutdownBoundedWait.
func (s *Supervisor) Shutdown() {
	if s.loopCancel != nil {
		s.loopCancel()
		select {
		case <-s.loopDone:
		case <-time.After(shutdownBoundedWait):
			logger.Printf("warning: health tick loop did not stop within %s", shutdownBoundedWait)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownBoundedWait)
	defer cancel()

	pods := s.registry.AllPods()
	var wg sync.WaitGroup
	for _, pod := range pods {
		wg.Add(1)
		go func(pod podtypes.Pod) {
			defer wg.Done()
			s.terminate(ctx, pod)
		}(pod)
	}
	wg.Wait()
	logger.Printf("shutdown complete, %d pods terminated", len(pods))
}

// RollingUpdateNames returns the names of deployments currently
// undergoing a rolling update, for AdminEndpoint's status payload.
func (s *Supervisor) RollingUpdateNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0)
	for name, ds := range s.deployments {
		if ds.RollingUpdateActive {
			names = append(names, name)
		}
	}
	return names
}

func (s *Supervisor) specFor(name string) (podtypes.DeploymentSpec, bool) {
	ds, ok := s.deploymentState(name)
	if !ok {
		return podtypes.DeploymentSpec{}, false
	}
	return ds.Spec, true
}

func (s *Supervisor) deploymentState(name string) (*podtypes.DeploymentState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.deployments[name]
	return ds, ok
}

// probeTarget resolves the (host, port) pair a health probe should hit
// for pod: the container's own IP when known, else the host loopback
// address via the published host port.
func probeTarget(pod podtypes.Pod) (string, int) {
	if pod.ContainerIP != "" {
		return pod.ContainerIP, pod.ContainerPort
	}
	return "127.0.0.1", pod.HostPort
}
