package pubsub

import "time"

// Config mirrors the teacher's internal/waku.Config shape (transport
// selection + go-waku relay tuning), trimmed to what GLKDC's broadcast-only
// usage needs — no store/filter/light-push, since GLKDC never needs
// message history replay, only live fan-out.
type Config struct {
	Transport      string `yaml:"transport"` // "mock" or "go-waku"
	Port           int    `yaml:"port"`
	EnableRelay    bool   `yaml:"enable_relay"`
	BootstrapNodes []string `yaml:"bootstrap_nodes"`
	MinPeers       int    `yaml:"min_peers"`

	ReconnectInterval   time.Duration `yaml:"reconnect_interval"`
	ReconnectBackoffMax time.Duration `yaml:"reconnect_backoff_max"`
}

func DefaultConfig() Config {
	return Config{
		Transport:           "mock",
		Port:                0,
		EnableRelay:         true,
		MinPeers:            2,
		ReconnectInterval:   5 * time.Second,
		ReconnectBackoffMax: 2 * time.Minute,
	}
}

func normalizeConfig(cfg Config) Config {
	if cfg.Transport == "" {
		cfg.Transport = "mock"
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.ReconnectBackoffMax <= 0 {
		cfg.ReconnectBackoffMax = 2 * time.Minute
	}
	return cfg
}

// New constructs the configured Bus implementation. When built without the
// real_waku tag, "go-waku" transport falls back to the mock with a logged
// warning the same way the teacher degrades gracefully when a backend
// isn't compiled in.
func New(cfg Config) Bus {
	cfg = normalizeConfig(cfg)
	if cfg.Transport == "go-waku" {
		if bus := newRealBus(cfg); bus != nil {
			return bus
		}
	}
	return NewMock()
}
