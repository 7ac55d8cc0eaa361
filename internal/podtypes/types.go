// Package podtypes holds the data model shared across the orchestrator:
// deployment specs, pod records, and per-deployment runtime state.
package podtypes

import (
	"strconv"
	"time"
)

// PodStatus is the lifecycle state of a single pod.
type PodStatus string

const (
	StatusPending     PodStatus = "pending"
	StatusRunning     PodStatus = "running"
	StatusUnhealthy   PodStatus = "unhealthy"
	StatusTerminating PodStatus = "terminating"
	StatusTerminated  PodStatus = "terminated"
)

// DeploymentSpec is the immutable declarative description of a deployment.
type DeploymentSpec struct {
	Name                string `json:"name" validate:"required"`
	Image               string `json:"image,omitempty"`
	Dockerfile          string `json:"dockerfile,omitempty"`
	Context             string `json:"context,omitempty"`
	Replicas            int    `json:"replicas,omitempty" validate:"omitempty,min=1"`
	ContainerPort       int    `json:"containerPort,omitempty" validate:"omitempty,min=1,max=65535"`
	HealthCheckPath     string `json:"healthCheckPath,omitempty"`
	HealthCheckInterval int    `json:"healthCheckInterval,omitempty" validate:"omitempty,min=1"`
	RemoteURL           string `json:"remoteUrl,omitempty"`
}

// ApplyDefaults fills in the spec's default values, touching only
// zero-valued fields. config.Load calls it before validating the file,
// and Supervisor.Deploy calls it again after Validate.
func (s *DeploymentSpec) ApplyDefaults() {
	if s.Replicas == 0 {
		s.Replicas = 1
	}
	if s.ContainerPort == 0 {
		s.ContainerPort = 8080
	}
	if s.HealthCheckPath == "" {
		s.HealthCheckPath = "/health"
	}
	if s.HealthCheckInterval == 0 {
		s.HealthCheckInterval = 10
	}
}

// NeedsBuild reports whether the spec requires building an image from a
// Dockerfile rather than pulling/using a pre-built image.
func (s DeploymentSpec) NeedsBuild() bool {
	return s.Dockerfile != ""
}

// ResolvedImage returns the image tag this deployment runs: the
// explicit image if given, else a local tag derived from the name.
func (s DeploymentSpec) ResolvedImage() string {
	if s.Image != "" {
		return s.Image
	}
	return s.Name + ":local"
}

// Validate checks the "exactly one of image or {dockerfile, context}" rule
// that cross-field struct tags cannot express.
func (s DeploymentSpec) Validate() error {
	hasImage := s.Image != ""
	hasBuild := s.Dockerfile != ""
	switch {
	case hasImage && hasBuild:
		return ErrBothImageAndDockerfile
	case !hasImage && !hasBuild:
		return ErrMissingImage
	}
	if hasBuild && s.Context == "" {
		return ErrMissingDockerfile
	}
	return nil
}

// Pod is a single supervised container instance.
type Pod struct {
	ID                  string
	DeploymentName      string
	Image               string
	ContainerPort       int
	HostPort            int
	ContainerID         string
	ContainerIP         string
	Status              PodStatus
	HealthCheckFailures int
	ReleaseVersion      string
	CreatedAt           time.Time
}

// ShortID returns the first 8 characters of the pod id, used to derive
// the container name and the admin-facing short id.
func (p Pod) ShortID() string {
	if len(p.ID) <= 8 {
		return p.ID
	}
	return p.ID[:8]
}

// ContainerName is the naming convention used for this pod's container:
// "pod-<first 8 chars of id>". cleanupOrphans matches on this prefix.
func (p Pod) ContainerName() string {
	return ContainerNamePrefix + p.ShortID()
}

// ContainerNamePrefix is the naming convention shared by every pod's
// container name and by cleanupOrphans' crash-recovery sweep.
const ContainerNamePrefix = "pod-"

// HostAddress is the reachable address of this pod's backend: the
// container's own IP when known (same Docker network), else the host
// loopback address via the published host port.
func (p Pod) HostAddress() string {
	if p.ContainerIP != "" {
		return p.ContainerIP + ":" + strconv.Itoa(p.ContainerPort)
	}
	return "127.0.0.1:" + strconv.Itoa(p.HostPort)
}

// DeploymentState tracks the mutable, per-deployment supervisory state
// that sits alongside the spec: the version currently live, and whether
// a rolling update is in flight.
type DeploymentState struct {
	Spec                DeploymentSpec
	CurrentVersion      string
	RollingUpdateActive bool
}

// PodInfo is the trimmed, admin/registry-facing view of a pod.
type PodInfo struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Status  PodStatus `json:"status"`
	Version string    `json:"version"`
}

// Info projects a Pod down to its admin-facing PodInfo view.
func (p Pod) Info() PodInfo {
	return PodInfo{
		ID:      p.ShortID(),
		Name:    p.ContainerName(),
		Status:  p.Status,
		Version: p.ReleaseVersion,
	}
}
