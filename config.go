package zframe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultAdminListenAddr serves /metrics, /healthz and /relays.
const DefaultAdminListenAddr = "127.0.0.1:9108"

// RelayConfig describes a set of relays run by one process.
type RelayConfig struct {
	Log             LogConfig
	AdminListenAddr string
	// Register records named relays in the relay registry.
	Register        bool
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
	Brokers         []BrokerConfig
	Proxies         []ProxyConfig
}

// BrokerConfig is one ROUTER/DEALER broker.
type BrokerConfig struct {
	Name     string
	Frontend string
	Backend  string
}

// ProxyConfig is one XSUB/XPUB proxy. Publish is the XPUB endpoint that
// subscribers connect to; Subscribe is the XSUB endpoint that publishers
// connect to.
type ProxyConfig struct {
	Name      string
	Publish   string
	Subscribe string
}

// relay config.toml key mapping.
type relayFileConfig struct {
	AdminListenAddr string            `toml:"admin_listen_addr"`
	Register        bool              `toml:"register"`
	PollInterval    string            `toml:"poll_interval"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Log             LogConfig         `toml:"log"`
	Brokers         []brokerFileEntry `toml:"broker"`
	Proxies         []proxyFileEntry  `toml:"proxy"`
}

type brokerFileEntry struct {
	Name     string `toml:"name"`
	Frontend string `toml:"frontend"`
	Backend  string `toml:"backend"`
}

type proxyFileEntry struct {
	Name      string `toml:"name"`
	Publish   string `toml:"publish"`
	Subscribe string `toml:"subscribe"`
}

// DefaultRelayConfig returns the settings used for keys a file leaves out.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Log:             LogConfig{Level: "info"},
		AdminListenAddr: DefaultAdminListenAddr,
		Register:        true,
		PollInterval:    DefaultPollInterval,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadRelayConfig reads a TOML relay file and overlays it on the defaults.
func LoadRelayConfig(path string) (RelayConfig, error) {
	cfg := DefaultRelayConfig()

	var raw relayFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return RelayConfig{}, fmt.Errorf("load relay config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		logger := Logger()
		logger.Warn().Str("path", path).Interface("keys", undecoded).Msg("ignoring unknown relay config keys")
	}

	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("register") {
		cfg.Register = raw.Register
	}
	if meta.IsDefined("poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return RelayConfig{}, fmt.Errorf("load relay config: poll_interval: %w", err)
		}
		cfg.PollInterval = d
	}
	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownTimeout))
		if err != nil {
			return RelayConfig{}, fmt.Errorf("load relay config: shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "console") {
		cfg.Log.Console = raw.Log.Console
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}

	for _, b := range raw.Brokers {
		cfg.Brokers = append(cfg.Brokers, BrokerConfig{
			Name:     strings.TrimSpace(b.Name),
			Frontend: strings.TrimSpace(b.Frontend),
			Backend:  strings.TrimSpace(b.Backend),
		})
	}
	for _, p := range raw.Proxies {
		cfg.Proxies = append(cfg.Proxies, ProxyConfig{
			Name:      strings.TrimSpace(p.Name),
			Publish:   strings.TrimSpace(p.Publish),
			Subscribe: strings.TrimSpace(p.Subscribe),
		})
	}

	if err := ValidateRelayConfig(cfg); err != nil {
		return RelayConfig{}, fmt.Errorf("load relay config: %w", err)
	}
	return cfg, nil
}

// ValidateRelayConfig checks that every relay has a unique name and two
// distinct endpoints.
func ValidateRelayConfig(cfg RelayConfig) error {
	var errs []error
	if len(cfg.Brokers) == 0 && len(cfg.Proxies) == 0 {
		errs = append(errs, errors.New("no broker or proxy configured"))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", cfg.PollInterval))
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %s", cfg.ShutdownTimeout))
	}
	if _, ok := parseLevel(cfg.Log.Level); !ok && cfg.Log.Level != "" {
		errs = append(errs, fmt.Errorf("unknown log level %q", cfg.Log.Level))
	}

	seen := make(map[string]bool)
	checkName := func(kind, name string) {
		if name == "" {
			errs = append(errs, fmt.Errorf("%s without a name", kind))
			return
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("duplicate relay name %q", name))
		}
		seen[name] = true
	}
	checkEndpoints := func(name, a, b string) {
		if a == "" || b == "" {
			errs = append(errs, fmt.Errorf("relay %q needs two endpoints", name))
			return
		}
		if a == b {
			errs = append(errs, fmt.Errorf("relay %q uses %s for both sides", name, a))
		}
	}

	for _, b := range cfg.Brokers {
		checkName("broker", b.Name)
		checkEndpoints(b.Name, b.Frontend, b.Backend)
	}
	for _, p := range cfg.Proxies {
		checkName("proxy", p.Name)
		checkEndpoints(p.Name, p.Publish, p.Subscribe)
	}
	return errors.Join(errs...)
}

// RelayOptions converts the shared settings into options for a relay named
// name.
func (c RelayConfig) RelayOptions(name string) []RelayOption {
	return []RelayOption{
		WithName(name),
		WithPollInterval(c.PollInterval),
		WithShutdownTimeout(c.ShutdownTimeout),
	}
}
