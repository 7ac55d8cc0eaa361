package healthprobe

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func splitHostPort(t *testing.T, url string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", url, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi(%q): %v", portStr, err)
	}
	return host, port
}

func TestCheckHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.Listener.Addr().String())
	p := New()
	if !p.Check(host, port, "/health") {
		t.Error("Check() = false, want true for a 200 response")
	}
}

func TestCheckNon2xxIsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.Listener.Addr().String())
	p := New()
	if p.Check(host, port, "/health") {
		t.Error("Check() = true, want false for a 503 response")
	}
}

func TestCheckUnreachableIsUnhealthy(t *testing.T) {
	p := New()
	if p.Check("127.0.0.1", 1, "/health") {
		t.Error("Check() = true, want false for an unreachable host")
	}
}
