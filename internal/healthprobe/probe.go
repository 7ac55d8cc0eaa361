// Package healthprobe implements HealthProbe: a single synchronous
// HTTP GET against a pod's health URL. Grounded on
// packages/proxy/internal/health/checker.go's client construction.
// The probe itself never retries; that loop belongs to the Supervisor,
// which owns the failure counter and the decision to replace a pod.
package healthprobe

import (
	"fmt"
	"log"
	"net/http"
	"time"
)

var logger = log.New(log.Writer(), "[HEALTH] ", log.LstdFlags)

// Prober performs health checks over HTTP.
type Prober struct {
	client *http.Client
}

// New creates a Prober with a finite, conservative request timeout.
func New() *Prober {
	return &Prober{
		client: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Check issues a GET to http://{host}:{port}{path} and returns true iff
// the response status is in [200, 300). Any transport error or non-2xx
// status collapses to false; there is no such thing as a probe error.
func (p *Prober) Check(host string, port int, path string) bool {
	url := fmt.Sprintf("http://%s:%d%s", host, port, path)

	resp, err := p.client.Get(url)
	if err != nil {
		logger.Printf("check %s failed: %v", url, err)
		return false
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !healthy {
		logger.Printf("check %s unhealthy: status %d", url, resp.StatusCode)
	}
	return healthy
}
