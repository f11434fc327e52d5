// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"firestige.xyz/uoaprobe/internal/capture"
	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/echo"
	"firestige.xyz/uoaprobe/internal/log"
	"firestige.xyz/uoaprobe/internal/packet"
	"firestige.xyz/uoaprobe/internal/scenario"
	"firestige.xyz/uoaprobe/internal/transport"
	"firestige.xyz/uoaprobe/internal/uoa"
)

// Root is the top-level YAML key; env vars follow it, e.g. UOAPROBE_PROBE_TIMEOUT.
const Root = "uoaprobe"

// GlobalConfig is everything under the `uoaprobe:` root key.
type GlobalConfig struct {
	Probe   ProbeConfig      `mapstructure:"probe"`
	Targets scenario.Targets `mapstructure:"targets"`
	Capture capture.Options  `mapstructure:"capture"`
	Echo    echo.Config      `mapstructure:"echo"`
	Log     log.LoggerConfig `mapstructure:"log"`
	Metrics MetricsConfig    `mapstructure:"metrics"`
}

// ─── Probe ───

// ProbeConfig controls how scenarios are run.
type ProbeConfig struct {
	Timeout       time.Duration          `mapstructure:"timeout"`
	Settle        time.Duration          `mapstructure:"settle"`
	PrimingRounds int                    `mapstructure:"priming_rounds"`
	Parallel      int                    `mapstructure:"parallel"`
	ExtraPackets  transport.ExtraPackets `mapstructure:"extra_packets"`
	Filter        string                 `mapstructure:"filter"`
	Report        string                 `mapstructure:"report"` // .yaml, .yml or .json; empty = stdout only
}

// Transport returns the transport settings carried by the probe section.
func (p ProbeConfig) Transport() transport.Config {
	return transport.Config{
		Timeout:      p.Timeout,
		Settle:       p.Settle,
		ExtraPackets: p.ExtraPackets,
	}
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Loading ───

type configRoot struct {
	UOAProbe GlobalConfig `mapstructure:"uoaprobe"`
}

// New returns a viper instance with every default set and env overrides enabled.
// Flags are bound to it with BindFlags before Load.
func New() *viper.Viper {
	v := viper.New()
	// No env prefix: the `uoaprobe.` key prefix maps to `UOAPROBE_` through the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Key returns the full viper key for a path below the root, e.g. Key("probe.timeout").
func Key(path string) string {
	return Root + "." + path
}

// BindFlags binds each flag name in bindings to its key below the root.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for name, path := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("bind flag %q: no such flag", name)
		}
		if err := v.BindPFlag(Key(path), f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

// Load reads the optional config file at path, merges flags, env and defaults
// held by v, and validates the result.
func Load(v *viper.Viper, path string) (*GlobalConfig, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var root configRoot
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&root, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.UOAProbe

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "uoaprobe." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Probe defaults
	v.SetDefault(Key("probe.timeout"), transport.DefaultTimeout.String())
	v.SetDefault(Key("probe.settle"), transport.DefaultSettle.String())
	v.SetDefault(Key("probe.priming_rounds"), scenario.DefaultPrimingRounds)
	v.SetDefault(Key("probe.parallel"), 1)
	v.SetDefault(Key("probe.extra_packets"), string(transport.ExtraFail))
	v.SetDefault(Key("probe.filter"), "")
	v.SetDefault(Key("probe.report"), "")

	// Targets default to unset, which skips their scenarios
	for _, k := range []string{
		"serv_ipv4", "serv_ipv6", "lb_ipv4", "lb_ipv6",
		"self_ipv4", "self_ipv6", "nat46_lb_ipv4", "nat64_lb_ipv6",
	} {
		v.SetDefault(Key("targets."+k), "")
	}

	// Capture defaults
	capDef := capture.DefaultOptions()
	v.SetDefault(Key("capture.type"), string(capDef.Type))
	v.SetDefault(Key("capture.interface"), "")
	v.SetDefault(Key("capture.snap_len"), capDef.SnapLen.String())
	v.SetDefault(Key("capture.buffer_size"), capDef.BufferSize.String())
	v.SetDefault(Key("capture.poll_timeout"), capDef.PollTimeout.String())

	// Echo defaults
	echoDef := echo.DefaultConfig()
	v.SetDefault(Key("echo.port"), echoDef.Port)
	v.SetDefault(Key("echo.listen_ipv4"), echoDef.ListenIPv4)
	v.SetDefault(Key("echo.listen_ipv6"), echoDef.ListenIPv6)

	// Log defaults
	logDef := log.DefaultConfig()
	v.SetDefault(Key("log.level"), logDef.Level)
	v.SetDefault(Key("log.pattern"), logDef.Pattern)
	v.SetDefault(Key("log.time"), logDef.Time)
	v.SetDefault(Key("log.report_caller"), false)
	v.SetDefault(Key("log.appenders"), []map[string]interface{}{{"type": log.AppenderConsole}})

	// Metrics defaults
	v.SetDefault(Key("metrics.enabled"), false)
	v.SetDefault(Key("metrics.listen"), ":9091")
	v.SetDefault(Key("metrics.path"), "/metrics")
}

// ValidateAndApplyDefaults validates configuration and fills runtime defaults.
// Every failure wraps core.ErrConfigInvalid.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}

	// ── Probe ──
	p := &cfg.Probe
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: probe.timeout must be positive, got %s", core.ErrConfigInvalid, p.Timeout)
	}
	if p.Settle < 0 {
		return fmt.Errorf("%w: probe.settle must not be negative, got %s", core.ErrConfigInvalid, p.Settle)
	}
	if p.PrimingRounds < 1 {
		return fmt.Errorf("%w: probe.priming_rounds must be at least 1, got %d", core.ErrConfigInvalid, p.PrimingRounds)
	}
	if p.Parallel < 1 {
		p.Parallel = 1
	}
	if p.ExtraPackets == "" {
		p.ExtraPackets = transport.ExtraFail
	}
	if p.Report != "" {
		switch strings.ToLower(filepath.Ext(p.Report)) {
		case ".yaml", ".yml", ".json":
		default:
			return fmt.Errorf("%w: probe.report %q must end in .yaml, .yml or .json", core.ErrConfigInvalid, p.Report)
		}
	}

	// ── Targets ──
	if err := cfg.validateTargets(); err != nil {
		return err
	}

	// ── Echo ──
	if cfg.Echo.Port == 0 {
		cfg.Echo.Port = echo.DefaultPort
	}
	if cfg.Echo.ListenIPv4 == "" && cfg.Echo.ListenIPv6 == "" {
		return fmt.Errorf("%w: echo needs listen_ipv4 or listen_ipv6", core.ErrConfigInvalid)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	return nil
}

func (cfg *GlobalConfig) validateTargets() error {
	t := cfg.Targets
	endpoints := []struct {
		key    string
		value  string
		family uoa.Family
	}{
		{"serv_ipv4", t.ServIPv4, uoa.V4},
		{"serv_ipv6", t.ServIPv6, uoa.V6},
		{"lb_ipv4", t.LBIPv4, uoa.V4},
		{"lb_ipv6", t.LBIPv6, uoa.V6},
		{"nat46_lb_ipv4", t.Nat46LBIPv4, uoa.V4},
		{"nat64_lb_ipv6", t.Nat64LBIPv6, uoa.V6},
	}
	for _, e := range endpoints {
		if e.value == "" {
			continue
		}
		if _, err := packet.ParseEndpointFamily(e.value, e.family); err != nil {
			return fmt.Errorf("%w: targets.%s: %v", core.ErrConfigInvalid, e.key, err)
		}
	}

	selves := []struct {
		key    string
		value  string
		family uoa.Family
	}{
		{"self_ipv4", t.SelfIPv4, uoa.V4},
		{"self_ipv6", t.SelfIPv6, uoa.V6},
	}
	for _, s := range selves {
		if s.value == "" {
			continue
		}
		addr, err := scenario.ParseSelf(s.value)
		if err != nil {
			return fmt.Errorf("%w: targets.%s: %v", core.ErrConfigInvalid, s.key, err)
		}
		if uoa.FamilyOf(addr) != s.family {
			return fmt.Errorf("%w: targets.%s: %s is not %s", core.ErrConfigInvalid, s.key, addr, s.family)
		}
	}
	return nil
}
