// Package config loads process configuration from the environment and
// named service profiles from a TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is decoded from CANDID_* environment variables. Defaults come
// from the struct tags.
type Config struct {
	// GatewayURL is the HTTP gateway remote calls go through.
	GatewayURL string `env:"CANDID_GATEWAY_URL,default=http://127.0.0.1:4943"`
	// Codec is "jsonrpc" or "cbor".
	Codec   string        `env:"CANDID_GATEWAY_CODEC,default=jsonrpc"`
	Timeout time.Duration `env:"CANDID_GATEWAY_TIMEOUT,default=30s"`

	// Token is sent as a static bearer token. SigningSecret, when set,
	// mints short-lived signed tokens instead.
	Token         string `env:"CANDID_GATEWAY_TOKEN"`
	SigningSecret string `env:"CANDID_GATEWAY_SIGNING_SECRET"`
	TokenIssuer   string `env:"CANDID_GATEWAY_TOKEN_ISSUER,default=candid-explorer"`

	// RedisURL selects the Redis snapshot store. Empty keeps snapshots in
	// memory.
	RedisURL       string        `env:"CANDID_REDIS_URL"`
	RedisKeyPrefix string        `env:"CANDID_REDIS_KEY_PREFIX,default=candid:"`
	CacheSize      int           `env:"CANDID_CACHE_SIZE,default=1024"`
	SnapshotTTL    time.Duration `env:"CANDID_SNAPSHOT_TTL,default=24h"`

	BulkMethod   string `env:"CANDID_BULK_METHOD,default=exportAllData"`
	ProfilesPath string `env:"CANDID_PROFILES,default=candid.toml"`
	LogLevel     string `env:"CANDID_LOG_LEVEL,default=info"`
}

// Load reads envFile into the environment when it exists, then decodes
// Config. Variables already set take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Service is one named remote service.
type Service struct {
	Endpoint string `toml:"endpoint"`
	// Gateway and Codec override the environment for this service.
	Gateway string `toml:"gateway"`
	Codec   string `toml:"codec"`
	// Executable is the path of the generated JavaScript descriptor and
	// Declaration the path of the .did or .d.ts declaration. Relative paths
	// are resolved against the profile file's directory.
	Executable  string `toml:"executable"`
	Declaration string `toml:"declaration"`
	Privileged  bool   `toml:"privileged"`
}

// Profiles is the parsed profile file.
type Profiles struct {
	Default  string             `toml:"default"`
	Services map[string]Service `toml:"services"`

	// Dir is the directory holding the file.
	Dir string `toml:"-"`
}

var ErrUnknownService = errors.New("config: unknown service")

// LoadProfiles parses the TOML profile file at path. A missing file yields
// empty profiles.
func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Profiles{Services: map[string]Service{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var p Profiles
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if p.Dir, err = filepath.Abs(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	if p.Services == nil {
		p.Services = map[string]Service{}
	}
	for name, svc := range p.Services {
		svc.Executable = p.resolve(svc.Executable)
		svc.Declaration = p.resolve(svc.Declaration)
		p.Services[name] = svc
	}
	return &p, nil
}

func (p *Profiles) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Dir, path)
}

// Service returns the named service. An empty name picks the default, or
// the only service when there is exactly one.
func (p *Profiles) Service(name string) (Service, error) {
	if name == "" {
		name = p.Default
	}
	if name == "" && len(p.Services) == 1 {
		for _, svc := range p.Services {
			return svc, nil
		}
	}
	svc, ok := p.Services[name]
	if !ok {
		return Service{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownService, name, strings.Join(p.Names(), ", "))
	}
	if svc.Endpoint == "" {
		return Service{}, fmt.Errorf("config: service %q has no endpoint", name)
	}
	return svc, nil
}

// Names returns the service names in sorted order.
func (p *Profiles) Names() []string {
	names := make([]string, 0, len(p.Services))
	for n := range p.Services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
