package supervisor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"podctl/internal/healthprobe"
	"podctl/internal/podtypes"
	"podctl/internal/registry"
	"podctl/internal/release"
)

func TestDeployRejectsInvalidSpecBeforeTouchingRuntime(t *testing.T) {
	sup := New(registry.New(), nil, healthprobe.New(), release.New())

	err := sup.Deploy(context.Background(), podtypes.DeploymentSpec{Name: "web"})
	if !errors.Is(err, podtypes.ErrMissingImage) {
		t.Fatalf("Deploy() error = %v, want ErrMissingImage", err)
	}
}

func TestRollingUpdateNamesEmptyOnFreshSupervisor(t *testing.T) {
	sup := New(registry.New(), nil, healthprobe.New(), release.New())

	names := sup.RollingUpdateNames()
	if len(names) != 0 {
		t.Errorf("RollingUpdateNames() = %v, want empty", names)
	}
}

func TestPerformRollingUpdateNoopOnUnknownDeployment(t *testing.T) {
	sup := New(registry.New(), nil, healthprobe.New(), release.New())

	done := make(chan struct{})
	go func() {
		sup.PerformRollingUpdate(context.Background(), "does-not-exist", "v2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PerformRollingUpdate on an unknown deployment should return immediately")
	}
}

func TestHealthCheckPassIncrementsFailuresBelowThreshold(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	host, port := mustSplitAddr(t, down.Listener.Addr().String())

	reg := registry.New()
	sup := New(reg, nil, healthprobe.New(), release.New())

	spec := podtypes.DeploymentSpec{Name: "web", Image: "nginx:latest"}
	spec.ApplyDefaults()
	sup.registerForTest(spec)

	pod := podtypes.Pod{
		ID:             "p1",
		DeploymentName: "web",
		Status:         podtypes.StatusRunning,
		ContainerIP:    host,
		ContainerPort:  port,
	}
	reg.Insert(pod)

	sup.healthCheckPass(context.Background())
	sup.healthCheckPass(context.Background())

	got, ok := reg.Get("p1")
	if !ok {
		t.Fatal("pod should still be present below the replace threshold")
	}
	if got.HealthCheckFailures != 2 {
		t.Errorf("HealthCheckFailures = %d, want 2", got.HealthCheckFailures)
	}
}

func TestHealthCheckPassResetsFailuresOnSuccess(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	host, port := mustSplitAddr(t, up.Listener.Addr().String())

	reg := registry.New()
	sup := New(reg, nil, healthprobe.New(), release.New())

	spec := podtypes.DeploymentSpec{Name: "web", Image: "nginx:latest"}
	spec.ApplyDefaults()
	sup.registerForTest(spec)

	reg.Insert(podtypes.Pod{
		ID:                  "p1",
		DeploymentName:      "web",
		Status:              podtypes.StatusRunning,
		ContainerIP:         host,
		ContainerPort:       port,
		HealthCheckFailures: 2,
	})

	sup.healthCheckPass(context.Background())

	got, _ := reg.Get("p1")
	if got.HealthCheckFailures != 0 {
		t.Errorf("HealthCheckFailures = %d, want reset to 0", got.HealthCheckFailures)
	}
}

func mustSplitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port %q: %v", portStr, err)
	}
	return host, port
}

func TestProbeTargetPrefersContainerIP(t *testing.T) {
	withIP := podtypes.Pod{ContainerIP: "172.17.0.5", ContainerPort: 9090, HostPort: 8000}
	host, port := probeTarget(withIP)
	if host != "172.17.0.5" || port != 9090 {
		t.Errorf("probeTarget() = %q, %d, want 172.17.0.5, 9090", host, port)
	}

	withoutIP := podtypes.Pod{HostPort: 8000}
	host, port = probeTarget(withoutIP)
	if host != "127.0.0.1" || port != 8000 {
		t.Errorf("probeTarget() = %q, %d, want 127.0.0.1, 8000", host, port)
	}
}
