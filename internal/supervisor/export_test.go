package supervisor

import "podctl/internal/podtypes"

// registerForTest installs spec's deployment state directly, bypassing
// Deploy's image-build and initial-replica-start steps so healthCheckPass
// and PerformRollingUpdate can be exercised without a runtime.
func (s *Supervisor) registerForTest(spec podtypes.DeploymentSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deployments[spec.Name] = &podtypes.DeploymentState{Spec: spec}
}
