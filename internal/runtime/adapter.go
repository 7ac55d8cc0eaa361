// Package runtime is the RuntimeAdapter: the sole caller of the
// container runtime on behalf of the orchestrator. It is backed by the
// Docker Engine API client rather than a shelled-out CLI, the same
// approach the teacher takes in manager/container_manager.go.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/go-connections/nat"
)

var logger = log.New(log.Writer(), "[RUNTIME] ", log.LstdFlags)

const (
	defaultOpTimeout = 30 * time.Second
	buildOpTimeout   = 600 * time.Second
	stopGraceSeconds = 5
)

// Adapter invokes the container runtime on behalf of the supervisor.
// One Adapter is shared by every deployment; the underlying client is
// safe for concurrent use, matching Docker's own daemon-side
// serialization of shared resources.
type Adapter struct {
	cli *client.Client
	env []string
}

// New creates an Adapter against the ambient Docker host, optionally
// overlaying extra environment variables onto every container run
// (the config file's docker.environment map).
func New(env map[string]string) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("runtime: failed to create docker client: %w", err)
	}
	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}
	return &Adapter{cli: cli, env: envList}, nil
}

// BuildImage builds dockerfile within buildContext into tag, passing
// buildArgs (e.g. RELEASE_VERSION) through to the build. Fails with
// *BuildFailedError on a non-zero build.
func (a *Adapter) BuildImage(ctx context.Context, dockerfile, buildContext, tag string, buildArgs map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, buildOpTimeout)
	defer cancel()

	tarCtx, err := archive.TarWithOptions(buildContext, &archive.TarOptions{})
	if err != nil {
		return &BuildFailedError{Tag: tag, Output: "failed to package build context", Cause: err}
	}
	defer tarCtx.Close()

	args := make(map[string]*string, len(buildArgs))
	for k, v := range buildArgs {
		v := v
		args[k] = &v
	}

	logger.Printf("building image %s from %s (context %s)", tag, dockerfile, buildContext)
	resp, err := a.cli.ImageBuild(ctx, tarCtx, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  filepath.Base(dockerfile),
		BuildArgs:   args,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return &BuildFailedError{Tag: tag, Output: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	var lastLine string
	for {
		var msg buildMessage
		if decodeErr := decoder.Decode(&msg); decodeErr != nil {
			if decodeErr == io.EOF {
				break
			}
			return &BuildFailedError{Tag: tag, Output: "failed to read build output", Cause: decodeErr}
		}
		if errMsg := msg.errorMessage(); errMsg != "" {
			return &BuildFailedError{Tag: tag, Output: errMsg}
		}
		if msg.Stream != "" {
			lastLine = strings.TrimSpace(msg.Stream)
		}
	}
	logger.Printf("built image %s (%s)", tag, lastLine)
	return nil
}

// RunContainer runs image detached, publishing hostPort:containerPort,
// and returns the new container's id. Fails with *CommandFailedError if
// the runtime returns an empty id.
func (a *Adapter) RunContainer(ctx context.Context, imageName, name string, hostPort, containerPort int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	containerPortSpec := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPortSpec: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", hostPort)}},
		},
	}
	cfg := &container.Config{
		Image: imageName,
		Env:   a.env,
		ExposedPorts: nat.PortSet{
			containerPortSpec: struct{}{},
		},
	}

	resp, err := a.cli.ContainerCreate(ctx, cfg, hostConfig, nil, nil, name)
	if err != nil {
		return "", &CommandFailedError{Op: "run", Detail: err.Error(), Cause: err}
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := a.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			logger.Printf("warning: failed to remove container %s after failed start: %v", shortID(resp.ID), rmErr)
		}
		return "", &CommandFailedError{Op: "run", Detail: err.Error(), Cause: err}
	}

	id := strings.TrimSpace(resp.ID)
	if id == "" {
		return "", &CommandFailedError{Op: "run", Detail: "runtime returned an empty container id"}
	}
	logger.Printf("started container %s (%s) publishing %d:%d", name, shortID(id), hostPort, containerPort)
	return id, nil
}

// StopContainer gracefully stops a container within a bounded timeout.
func (a *Adapter) StopContainer(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	seconds := stopGraceSeconds
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return &CommandFailedError{Op: "stop", Detail: err.Error(), Cause: err}
	}
	return nil
}

// RemoveContainer force-removes a container.
func (a *Adapter) RemoveContainer(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	if err := a.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return &CommandFailedError{Op: "remove", Detail: err.Error(), Cause: err}
	}
	return nil
}

// GetContainerIP inspects id for its primary network address. Returns
// "" (not an error) when the container has no assigned address yet,
// e.g. on non-Linux hosts or a misconfigured bridge network.
func (a *Adapter) GetContainerIP(ctx context.Context, id string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	info, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", &NotFoundError{ContainerID: id}
		}
		return "", &CommandFailedError{Op: "inspect", Detail: err.Error(), Cause: err}
	}
	if info.NetworkSettings == nil {
		return "", nil
	}
	if info.NetworkSettings.IPAddress != "" {
		return info.NetworkSettings.IPAddress, nil
	}
	for _, net := range info.NetworkSettings.Networks {
		if net.IPAddress != "" {
			return net.IPAddress, nil
		}
	}
	return "", nil
}

// IsRunning inspects id's state. Any inspection error (including
// NotFound) collapses to false.
func (a *Adapter) IsRunning(ctx context.Context, id string) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	info, err := a.cli.ContainerInspect(ctx, id)
	if err != nil || info.State == nil {
		return false
	}
	return info.State.Running
}

// ListContainers returns the ids of every container whose name begins
// with namePrefix.
func (a *Adapter) ListContainers(ctx context.Context, namePrefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	f := filters.NewArgs(filters.Arg("name", namePrefix))
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, &CommandFailedError{Op: "list", Detail: err.Error(), Cause: err}
	}

	ids := make([]string, 0, len(containers))
	for _, c := range containers {
		for _, n := range c.Names {
			if strings.HasPrefix(strings.TrimPrefix(n, "/"), namePrefix) {
				ids = append(ids, c.ID)
				break
			}
		}
	}
	return ids, nil
}

// CleanupOrphans force-removes every container whose name matches this
// process's own naming convention ("pod-*"). Run once at startup to
// recover from a previous crash. Idempotent: a second call against a
// clean runtime state removes nothing.
func (a *Adapter) CleanupOrphans(ctx context.Context, namePrefix string) error {
	ids, err := a.ListContainers(ctx, namePrefix)
	if err != nil {
		return err
	}
	for _, id := range ids {
		logger.Printf("removing orphaned container %s", shortID(id))
		if err := a.RemoveContainer(ctx, id); err != nil {
			logger.Printf("warning: failed to remove orphan %s: %v", shortID(id), err)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

type buildMessage struct {
	Stream      string           `json:"stream"`
	Error       string           `json:"error"`
	ErrorDetail buildErrorDetail `json:"errorDetail"`
}

type buildErrorDetail struct {
	Message string `json:"message"`
}

func (m buildMessage) errorMessage() string {
	if strings.TrimSpace(m.Error) != "" {
		return strings.TrimSpace(m.Error)
	}
	return strings.TrimSpace(m.ErrorDetail.Message)
}
