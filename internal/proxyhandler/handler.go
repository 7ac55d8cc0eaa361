// Package proxyhandler is the ProxyHandler: forwards an inbound
// request to whichever backend the Dispatcher chooses. Grounded on
// proxy/reverse_proxy.go and src/pkg/proxy/proxy.go, both of which
// build an httputil.NewSingleHostReverseProxy per target rather than
// hand-rolling the round trip, generalized from "one container per
// hostname" to "one of N healthy pods per deployment, chosen by the
// dispatcher".
package proxyhandler

import (
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"podctl/internal/dispatcher"
	"podctl/internal/metrics"
)

var logger = log.New(log.Writer(), "[PROXY] ", log.LstdFlags)

const noBackendsBody = "No healthy backends available"

// Handler proxies inbound HTTP requests to a deployment's healthy
// pods.
type Handler struct {
	dispatcher *dispatcher.Dispatcher
}

// New creates a Handler dispatching through d.
func New(d *dispatcher.Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

// ServeDeployment forwards r to one of deployment's healthy pods. It
// never mutates pod state; unhealthy backends are handled out-of-band
// by the Supervisor.
func (h *Handler) ServeDeployment(w http.ResponseWriter, r *http.Request, deployment string) {
	addr, ok := h.dispatcher.NextAddress(deployment)
	if !ok {
		logger.Printf("no healthy backends for deployment %q", deployment)
		metrics.ProxyRequests.WithLabelValues(deployment, statusClass(http.StatusServiceUnavailable)).Inc()
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, noBackendsBody)
		return
	}

	target := &url.URL{Scheme: "http", Host: addr}
	proxy := httputil.NewSingleHostReverseProxy(target)

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = target.Host
	}

	errored := false
	proxy.ErrorHandler = func(rw http.ResponseWriter, req *http.Request, err error) {
		logger.Printf("error proxying to %s: %v", target, err)
		metrics.ProxyRequests.WithLabelValues(deployment, statusClass(http.StatusBadGateway)).Inc()
		errored = true
		rw.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(rw, "Backend error: %v", err)
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	proxy.ServeHTTP(rec, r)
	if !errored {
		metrics.ProxyRequests.WithLabelValues(deployment, statusClass(rec.status)).Inc()
	}
}

// statusRecorder captures the status code a ReverseProxy writes so it
// can be reported to metrics after ServeHTTP returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
