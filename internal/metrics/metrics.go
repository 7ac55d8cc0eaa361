// Package metrics exposes the orchestrator's Prometheus surface:
// counters and gauges observing the control plane's own behavior,
// scraped over GET /metrics alongside the admin status endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"podctl/internal/podtypes"
)

// promauto registers each metric with prometheus.DefaultRegisterer as
// it is constructed, matching the registration style in
// cycle-start-hosting's internal/metrics package and
// jinterlante1206-AleutianLocal's observability package: neither
// stands up a dedicated prometheus.Registry, and the /metrics handler
// here is promhttp.Handler(), the default-registry handler.
var (
	// HealthChecks counts every probe outcome, labeled healthy/unhealthy.
	HealthChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podctl_health_checks_total",
		Help: "Total number of health probes performed, by outcome.",
	}, []string{"outcome"})

	// PodReplacements counts unhealthy-pod replacements performed by the
	// supervisor, labeled by deployment and outcome.
	PodReplacements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podctl_pod_replacements_total",
		Help: "Total number of unhealthy pod replacements, by deployment and outcome.",
	}, []string{"deployment", "outcome"})

	// RollingUpdates counts finished rolling updates by deployment and
	// terminal outcome (ok, build_failed, cancelled); starts are not
	// counted separately.
	RollingUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podctl_rolling_updates_total",
		Help: "Total number of rolling updates, by deployment and outcome.",
	}, []string{"deployment", "outcome"})

	// ReleasePolls counts release-poll attempts and hits, labeled by
	// deployment.
	ReleasePolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podctl_release_polls_total",
		Help: "Total number of release polls, by deployment and result.",
	}, []string{"deployment", "result"})

	// ProxyRequests counts proxied requests by deployment and response
	// status class (2xx, 4xx, 5xx, ...).
	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podctl_proxy_requests_total",
		Help: "Total number of proxied requests, by deployment and status class.",
	}, []string{"deployment", "status_class"})

	// PodsByStatus is a gauge snapshot of pod counts, refreshed on every
	// /metrics scrape rather than maintained incrementally, to avoid a
	// second source of truth alongside the registry.
	PodsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "podctl_pods",
		Help: "Current pod count, by deployment and status.",
	}, []string{"deployment", "status"})
)

// RefreshPodGauge resets PodsByStatus and repopulates it from pods,
// called just before every /metrics scrape so the gauge never drifts
// from the registry's own state.
func RefreshPodGauge(pods []podtypes.Pod) {
	PodsByStatus.Reset()
	counts := make(map[[2]string]int)
	for _, p := range pods {
		counts[[2]string{p.DeploymentName, string(p.Status)}]++
	}
	for key, n := range counts {
		PodsByStatus.WithLabelValues(key[0], key[1]).Set(float64(n))
	}
}
