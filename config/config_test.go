package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CANDID_GATEWAY_URL", "")
	t.Setenv("CANDID_SNAPSHOT_TTL", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GatewayURL != "http://127.0.0.1:4943" || cfg.Codec != "jsonrpc" {
		t.Fatalf("gateway = %q codec = %q", cfg.GatewayURL, cfg.Codec)
	}
	if cfg.SnapshotTTL != 24*time.Hour || cfg.CacheSize != 1024 {
		t.Fatalf("ttl = %v size = %d", cfg.SnapshotTTL, cfg.CacheSize)
	}
	if cfg.Level() != slog.LevelInfo {
		t.Fatalf("level = %v", cfg.Level())
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	if err := os.WriteFile(env, []byte("CANDID_GATEWAY_CODEC=cbor\nCANDID_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Registered so the variables the file sets are restored afterwards.
	t.Setenv("CANDID_GATEWAY_CODEC", "")
	t.Setenv("CANDID_LOG_LEVEL", "")
	os.Unsetenv("CANDID_GATEWAY_CODEC")
	os.Unsetenv("CANDID_LOG_LEVEL")
	t.Setenv("CANDID_CACHE_SIZE", "8")

	cfg, err := Load(env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Codec != "cbor" || cfg.Level() != slog.LevelDebug || cfg.CacheSize != 8 {
		t.Fatalf("cfg = %+v", cfg)
	}

	if _, err := Load(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("a missing env file is not an error: %v", err)
	}
}

const profiles = `
default = "backend"

[services.backend]
endpoint = "rrkah-fqaaa-aaaaa-aaaaq-cai"
executable = "declarations/backend.did.js"
declaration = "/abs/backend.did"
privileged = true

[services.ledger]
endpoint = "ryjl3-tyaaa-aaaaa-aaaba-cai"
gateway = "https://icp0.io"
codec = "cbor"
`

func TestProfiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "candid.toml")
	if err := os.WriteFile(path, []byte(profiles), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}

	svc, err := p.Service("")
	if err != nil {
		t.Fatalf("default service: %v", err)
	}
	if svc.Endpoint != "rrkah-fqaaa-aaaaa-aaaaq-cai" || !svc.Privileged {
		t.Fatalf("svc = %+v", svc)
	}
	if want := filepath.Join(dir, "declarations", "backend.did.js"); svc.Executable != want {
		t.Fatalf("executable = %q, want %q", svc.Executable, want)
	}
	if svc.Declaration != "/abs/backend.did" {
		t.Fatalf("declaration = %q", svc.Declaration)
	}

	ledger, err := p.Service("ledger")
	if err != nil || ledger.Codec != "cbor" || ledger.Gateway != "https://icp0.io" {
		t.Fatalf("ledger = %+v, %v", ledger, err)
	}

	if _, err := p.Service("nope"); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("err = %v", err)
	}
}

func TestProfilesMissingFile(t *testing.T) {
	p, err := LoadProfiles(filepath.Join(t.TempDir(), "candid.toml"))
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if len(p.Names()) != 0 {
		t.Fatalf("names = %v", p.Names())
	}
	if _, err := p.Service(""); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("err = %v", err)
	}
}

func TestProfilesSingleService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candid.toml")
	if err := os.WriteFile(path, []byte("[services.only]\nendpoint = \"aaaaa-aa\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := LoadProfiles(path)
	if err != nil {
		t.Fatal(err)
	}
	if svc, err := p.Service(""); err != nil || svc.Endpoint != "aaaaa-aa" {
		t.Fatalf("svc = %+v, %v", svc, err)
	}
}
