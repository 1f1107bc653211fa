package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultResolvers are the public DNS servers queried when no resolvers
// are configured. Fanning out across operators makes a single poisoned or
// unreachable resolver non-fatal.
var DefaultResolvers = []string{
	"8.8.8.8:53", "8.8.4.4:53", // Google Public DNS
	"1.1.1.1:53", "1.0.0.1:53", // Cloudflare
	"9.9.9.9:53", "149.112.112.112:53", // Quad9
	"208.67.222.222:53", "208.67.220.220:53", // OpenDNS
	"94.140.14.14:53", "94.140.15.15:53", // AdGuard
	"4.2.2.1:53", "4.2.2.2:53", // Level3
}

// DefaultExpandPrefixes are the subdomain labels tried in front of apex
// targets to widen address coverage.
var DefaultExpandPrefixes = []string{"www", "api", "m", "svc", "media", "gateway"}

// AppConfig holds configuration values parsed from an optional YAML file
// overlaid by environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// TargetsFile is the newline-delimited list of domains to block.
	// When the file is absent the built-in default list is used.
	TargetsFile string `koanf:"targets_file" validate:"required"`

	// Chain is the iptables filter chain owned (and fully overwritten) by
	// this tool.
	Chain string `koanf:"chain" validate:"required"`

	// RulesFileV4 receives the full iptables-save output each run.
	RulesFileV4 string `koanf:"rules_file_v4" validate:"required"`

	// RulesFileV6 receives ip6tables-save output; empty disables v6
	// persistence.
	RulesFileV6 string `koanf:"rules_file_v6"`

	// StateFile is the bbolt database recording the last run; empty
	// disables run state.
	StateFile string `koanf:"state_file"`

	// LockFile serializes concurrent invocations.
	LockFile string `koanf:"lock_file" validate:"required"`

	// Resolvers are host:port DNS servers used for forward lookups.
	Resolvers []string `koanf:"resolvers" validate:"required,min=1,dive,hostname_port"`

	// ResolveTimeoutSeconds bounds each name's resolution.
	ResolveTimeoutSeconds int `koanf:"resolve_timeout" validate:"required,gte=1,lte=120"`

	// Concurrency bounds parallel lookups.
	Concurrency int `koanf:"concurrency" validate:"required,gte=1,lte=128"`

	// ExpandSubdomains toggles prefix expansion of apex targets.
	ExpandSubdomains bool `koanf:"expand_subdomains"`

	// ExpandPrefixes are the labels used when ExpandSubdomains is on.
	ExpandPrefixes []string `koanf:"expand_prefixes"`

	// ProbeHTTP enables HTTPS HEAD probing of targets to capture
	// addresses that DNS alone misses (CDN rotations).
	ProbeHTTP bool `koanf:"probe_http"`

	// ProbeTimeoutSeconds bounds each probe request.
	ProbeTimeoutSeconds int `koanf:"probe_timeout" validate:"required,gte=1,lte=120"`
}

// ResolveTimeout returns the per-name resolution timeout.
func (c *AppConfig) ResolveTimeout() time.Duration {
	return time.Duration(c.ResolveTimeoutSeconds) * time.Second
}

// ProbeTimeout returns the per-probe timeout.
func (c *AppConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// listKeys are env keys whose values are comma-separated lists.
var listKeys = map[string]bool{
	"resolvers":       true,
	"expand_prefixes": true,
}

// envLoader loads environment variables with the prefix "RRBLOCK_",
// lowercasing keys and splitting list-valued keys on commas.
// Can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "RRBLOCK_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "RRBLOCK_"))
			if listKeys[key] {
				parts := strings.Split(value, ",")
				out := make([]string, 0, len(parts))
				for _, p := range parts {
					if p = strings.TrimSpace(p); p != "" {
						out = append(out, p)
					}
				}
				return key, out
			}
			return key, value
		},
	}), nil)
}

// fileLoader loads an optional YAML config file. Can be mocked in tests.
var fileLoader = func(k *koanf.Koanf, path string) error {
	return k.Load(file.Provider(path), yaml.Parser())
}

// Load parses the optional YAML file named by RRBLOCK_CONFIG plus
// RRBLOCK_* environment variables and returns an AppConfig. Defaults are
// applied first, then file, then env; validation runs last.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	// Load default values using structs provider.
	k.Load(structs.Provider(AppConfig{
		Env:                   "prod",
		LogLevel:              "info",
		TargetsFile:           "/etc/rr-block/targets.list",
		Chain:                 "RR-BLOCK",
		RulesFileV4:           "/etc/iptables/rules.v4",
		RulesFileV6:           "/etc/iptables/rules.v6",
		StateFile:             "/var/lib/rr-block/state.db",
		LockFile:              "/run/rr-block.lock",
		Resolvers:             DefaultResolvers,
		ResolveTimeoutSeconds: 5,
		Concurrency:           15,
		ExpandSubdomains:      true,
		ExpandPrefixes:        DefaultExpandPrefixes,
		ProbeHTTP:             false,
		ProbeTimeoutSeconds:   5,
	}, "koanf"), nil)

	if path := os.Getenv("RRBLOCK_CONFIG"); path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
