// Package config loads GLKDC's server configuration: a YAML file layered
// with environment variable overrides, grounded on the teacher's
// internal/bootstrap/wakuconfig loader (struct-with-pointer-fields merge
// over defaults, then ApplyEnvOverrides) and
// internal/composition/daemonservice/env_config.go's envString/envBoolWithFallback/
// envIntWithFallback idiom.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"glkdc.dev/glkdcd/internal/domains/group/keyepoch"
	"glkdc.dev/glkdcd/internal/pubsub"
)

// Config is GLKDC's full runtime configuration: listen address, rotation
// policy thresholds (spec §4.7), KeyCache TTL, privileged principals
// (spec §9 REDESIGN FLAGS), pub/sub transport selection, and the optional
// encrypted persistence file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	Rotation   RotationConfig   `yaml:"rotation"`
	KeyCache   KeyCacheConfig   `yaml:"key_cache"`
	PubSub     pubsub.Config    `yaml:"pubsub"`
	Privileged []string         `yaml:"privileged_principals"`
	Persist    PersistenceConfig `yaml:"persistence"`
}

// RotationConfig mirrors keyepoch.Policy with yaml tags; zero fields fall
// back to keyepoch.DefaultPolicy()'s values.
type RotationConfig struct {
	PowerMin                int `yaml:"power_min"`
	PowerMax                int `yaml:"power_max"`
	NormalGroupRefreshMax   int `yaml:"normal_group_refresh_max"`
	KeySwitchCandidateCount int `yaml:"key_switch_candidate_count"`
}

type KeyCacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// PersistenceConfig names the encrypted snapshot file and its passphrase.
// Both empty means in-memory only (the default for local/dev use),
// matching securestore.IsStorageConfigured's contract.
type PersistenceConfig struct {
	Path   string `yaml:"path"`
	Secret string `yaml:"secret"`
}

// Default returns GLKDC's out-of-the-box configuration: mock pub/sub
// transport, conservative rotation thresholds (documented in DESIGN.md as
// an open-question decision — spec.md §8's worked example gives only
// illustrative values, not production defaults), a one-minute KeyCache TTL,
// and no persistence.
func Default() Config {
	policy := keyepoch.DefaultPolicy()
	return Config{
		ListenAddr: "127.0.0.1:8787",
		Rotation: RotationConfig{
			PowerMin:                policy.PowerMin,
			PowerMax:                policy.PowerMax,
			NormalGroupRefreshMax:   policy.NormalGroupRefreshMax,
			KeySwitchCandidateCount: policy.KeySwitchCandidateCount,
		},
		KeyCache: KeyCacheConfig{TTL: time.Minute},
		PubSub:   pubsub.DefaultConfig(),
	}
}

// Load reads configPath (if non-empty) as YAML over Default(), then applies
// GLKDC_* environment overrides. A missing or unreadable file is not an
// error — the caller gets defaults plus env overrides, mirroring
// wakuconfig.LoadFromPathWithDataDir's candidate-file fallback.
func Load(configPath string) Config {
	cfg := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			var parsed Config
			if yaml.Unmarshal(data, &parsed) == nil {
				mergeInto(&cfg, parsed)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg
}

func mergeInto(dst *Config, src Config) {
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
	mergeIfSet(&dst.Rotation.PowerMin, src.Rotation.PowerMin)
	mergeIfSet(&dst.Rotation.PowerMax, src.Rotation.PowerMax)
	mergeIfSet(&dst.Rotation.NormalGroupRefreshMax, src.Rotation.NormalGroupRefreshMax)
	mergeIfSet(&dst.Rotation.KeySwitchCandidateCount, src.Rotation.KeySwitchCandidateCount)
	mergeIfSet(&dst.KeyCache.TTL, src.KeyCache.TTL)
	if src.PubSub.Transport != "" {
		dst.PubSub.Transport = src.PubSub.Transport
	}
	mergeIfSet(&dst.PubSub.Port, src.PubSub.Port)
	if len(src.PubSub.BootstrapNodes) > 0 {
		dst.PubSub.BootstrapNodes = src.PubSub.BootstrapNodes
	}
	mergeIfSet(&dst.PubSub.MinPeers, src.PubSub.MinPeers)
	if len(src.Privileged) > 0 {
		dst.Privileged = src.Privileged
	}
	if src.Persist.Path != "" {
		dst.Persist.Path = src.Persist.Path
	}
	if src.Persist.Secret != "" {
		dst.Persist.Secret = src.Persist.Secret
	}
}

func mergeIfSet[T comparable](dst *T, src T) {
	var zero T
	if src != zero {
		*dst = src
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := envString("GLKDC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	cfg.Rotation.PowerMin = envIntWithFallback("GLKDC_ROTATION_POWER_MIN", cfg.Rotation.PowerMin)
	cfg.Rotation.PowerMax = envIntWithFallback("GLKDC_ROTATION_POWER_MAX", cfg.Rotation.PowerMax)
	cfg.Rotation.NormalGroupRefreshMax = envIntWithFallback("GLKDC_ROTATION_REFRESH_MAX", cfg.Rotation.NormalGroupRefreshMax)
	cfg.Rotation.KeySwitchCandidateCount = envIntWithFallback("GLKDC_ROTATION_CANDIDATE_COUNT", cfg.Rotation.KeySwitchCandidateCount)

	if v := envString("GLKDC_KEY_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.KeyCache.TTL = d
		}
	}
	if v := envString("GLKDC_PUBSUB_TRANSPORT"); v != "" {
		cfg.PubSub.Transport = v
	}
	if v := envCSV("GLKDC_PRIVILEGED_PRINCIPALS"); v != nil {
		cfg.Privileged = v
	}
	if v := envString("GLKDC_PERSIST_PATH"); v != "" {
		cfg.Persist.Path = v
	}
	if v := envString("GLKDC_PERSIST_SECRET"); v != "" {
		cfg.Persist.Secret = v
	}
}

// PrivilegedSet converts Privileged into the map[string]struct{} shape
// fsm.FSM.Privileged expects.
func (c Config) PrivilegedSet() map[string]struct{} {
	out := make(map[string]struct{}, len(c.Privileged))
	for _, uid := range c.Privileged {
		out[uid] = struct{}{}
	}
	return out
}

// Policy converts RotationConfig into keyepoch.Policy.
func (c Config) Policy() keyepoch.Policy {
	return keyepoch.Policy{
		PowerMin:                c.Rotation.PowerMin,
		PowerMax:                c.Rotation.PowerMax,
		NormalGroupRefreshMax:   c.Rotation.NormalGroupRefreshMax,
		KeySwitchCandidateCount: c.Rotation.KeySwitchCandidateCount,
	}
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envCSV(key string) []string {
	raw := envString(key)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func envIntWithFallback(key string, fallback int) int {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
