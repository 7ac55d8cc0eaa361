package supervisor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
)

// lastFakeOctet is shared by every fakeRuntime in the test binary, so
// fake containers started by different tests never bind the same
// loopback address (listeners of containers a test never stops stay
// open until the binary exits).
var lastFakeOctet int32 = 1

// fakeRuntime is a ContainerRuntime that backs each "container" with a
// real HTTP listener on its own loopback address, so the Supervisor's
// health-probe-driven logic (waitForPodHealthy, healthCheckPass) can be
// exercised end to end without a Docker daemon.
type fakeRuntime struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	handlers   []http.HandlerFunc
	nextID     int
	buildErr   error
	buildCalls int
	runErr     error
	stopped    []string
	removed    []string
}

type fakeContainer struct {
	ip       string
	listener net.Listener
	server   *http.Server
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: make(map[string]*fakeContainer)}
}

func healthyHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func unhealthyHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusServiceUnavailable)
}

// queueHandlers sets the handlers successive RunContainer calls hand
// out, one per call, in order. Calls beyond the queue's length default
// to healthyHandler.
func (f *fakeRuntime) queueHandlers(handlers ...http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handlers...)
}

func (f *fakeRuntime) BuildImage(ctx context.Context, dockerfile, buildContext, tag string, buildArgs map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buildCalls++
	return f.buildErr
}

func (f *fakeRuntime) RunContainer(ctx context.Context, imageName, name string, hostPort, containerPort int) (string, error) {
	f.mu.Lock()
	if f.runErr != nil {
		err := f.runErr
		f.mu.Unlock()
		return "", err
	}
	handler := http.HandlerFunc(healthyHandler)
	if len(f.handlers) > 0 {
		handler = f.handlers[0]
		f.handlers = f.handlers[1:]
	}
	ip := fmt.Sprintf("127.0.0.%d", atomic.AddInt32(&lastFakeOctet, 1))
	f.mu.Unlock()

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", ip, containerPort))
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(listener)

	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("fake-container-%d", f.nextID)
	f.containers[id] = &fakeContainer{ip: ip, listener: listener, server: srv}
	f.mu.Unlock()
	return id, nil
}

func (f *fakeRuntime) GetContainerIP(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return "", nil
	}
	return c.ip, nil
}

func (f *fakeRuntime) StopContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	f.stopped = append(f.stopped, id)
	c := f.containers[id]
	f.mu.Unlock()
	if c != nil {
		c.server.Close()
	}
	return nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	delete(f.containers, id)
	return nil
}

func (f *fakeRuntime) calls() (stopped, removed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopped...), append([]string(nil), f.removed...)
}
