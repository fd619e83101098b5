package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := &Config{
		DBURL:          DefaultDBURL,
		RabbitMQURL:    DefaultRabbitMQURL,
		APIPort:        DefaultAPIPort,
		WorkerPort:     DefaultWorkerPort,
		ReloadSchedule: DefaultReloadSchedule,
		SweepSchedule:  DefaultSweepSchedule,
		SessionIdle:    DefaultSessionIdle,
		RequestTimeout: DefaultRequestTimeout,
		MaxCallDepth:   DefaultMaxCallDepth,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.APIAddr() != ":8080" {
		t.Errorf("APIAddr = %q", cfg.APIAddr())
	}
}

func TestLoad_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("API_PORT", "9090")
	t.Setenv("RELOAD_SCHEDULE", "*/5 * * * *")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("REMOTE_EVAL", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIPort != "9090" {
		t.Errorf("APIPort = %q, want 9090", cfg.APIPort)
	}
	if cfg.ReloadSchedule != "*/5 * * * *" {
		t.Errorf("ReloadSchedule = %q", cfg.ReloadSchedule)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %s, want 5s", cfg.RequestTimeout)
	}
	if !cfg.RemoteEval {
		t.Error("RemoteEval = false, want true")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tableflow.yaml")
	data := []byte("worker_port: \"7000\"\nmax_call_depth: 4\nsession_idle: 10m\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.WorkerAddr() != ":7000" {
		t.Errorf("WorkerAddr = %q, want :7000", cfg.WorkerAddr())
	}
	if cfg.MaxCallDepth != 4 {
		t.Errorf("MaxCallDepth = %d, want 4", cfg.MaxCallDepth)
	}
	if cfg.SessionIdle != 10*time.Minute {
		t.Errorf("SessionIdle = %s, want 10m", cfg.SessionIdle)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tableflow.yaml")
	if err := os.WriteFile(path, []byte("max_call_depth: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile accepted max_call_depth 0")
	}
}
