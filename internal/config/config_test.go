package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": 8080, "host": "0.0.0.0"},
		"docker": {"executablePath": "/usr/bin/docker"},
		"deployment": {"name": "web", "image": "nginx:latest"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Deployment.Replicas != 1 {
		t.Errorf("Deployment.Replicas = %d, want default 1", cfg.Deployment.Replicas)
	}
	if cfg.Deployment.HealthCheckPath != "/health" {
		t.Errorf("Deployment.HealthCheckPath = %q, want default /health", cfg.Deployment.HealthCheckPath)
	}
}

func TestLoadMissingFileIsNotFoundError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("Load() error = %v (%T), want *NotFoundError", err, err)
	}
}

func TestLoadInvalidJSONIsInvalidError(t *testing.T) {
	path := writeConfig(t, `{not valid json`)

	_, err := Load(path)
	if _, ok := err.(*InvalidError); !ok {
		t.Fatalf("Load() error = %v (%T), want *InvalidError", err, err)
	}
}

func TestLoadMissingDeploymentImageAndDockerfileIsInvalid(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": 8080},
		"deployment": {"name": "web"}
	}`)

	_, err := Load(path)
	if _, ok := err.(*InvalidError); !ok {
		t.Fatalf("Load() error = %v (%T), want *InvalidError", err, err)
	}
}

func TestLoadInvalidPortFailsValidation(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": 99999},
		"deployment": {"name": "web", "image": "nginx:latest"}
	}`)

	_, err := Load(path)
	if _, ok := err.(*InvalidError); !ok {
		t.Fatalf("Load() error = %v (%T), want *InvalidError", err, err)
	}
}
