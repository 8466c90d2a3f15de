// Package config manages the rfc5444d daemon configuration using
// koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete rfc5444d configuration.
type Config struct {
	Admin     AdminConfig      `koanf:"admin"`
	Metrics   MetricsConfig    `koanf:"metrics"`
	Log       LogConfig        `koanf:"log"`
	Protocols []ProtocolConfig `koanf:"protocols"`
}

// AdminConfig holds the introspection/admin HTTP server configuration.
type AdminConfig struct {
	// Addr is the admin HTTP listen address (e.g., ":8500").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// ProtocolConfig declares one RFC 5444 protocol instance (e.g. "olsrv2",
// "nhdp") and the interfaces it runs on. Each entry creates a
// rfc5444.Protocol on daemon startup.
type ProtocolConfig struct {
	// Name identifies the protocol, e.g. "olsrv2" or "nhdp".
	Name string `koanf:"name"`

	// AggregationInterval batches outgoing messages before each Flush.
	AggregationInterval time.Duration `koanf:"aggregation_interval"`

	// MTU bounds the size of packets this protocol's Writer produces.
	MTU int `koanf:"mtu"`

	// HoldTime is the vtime passed to the protocol's forwarded-message
	// duplicate set: how long an entry survives without a fresh
	// sequence number before it is evicted.
	HoldTime time.Duration `koanf:"hold_time"`

	Interfaces []InterfaceConfig `koanf:"interfaces"`
}

// InterfaceConfig declares one network interface a protocol runs on,
// and the destination targets it sends to. Per spec.md §6: the v4 and
// v6 families are controlled independently, and the absence of a
// multicast group for a family disables that family entirely.
type InterfaceConfig struct {
	// Name is the interface name, e.g. "eth0".
	Name string `koanf:"name"`

	// ACL is the accept/deny list applied to inbound packets on this
	// interface, independent of address family.
	ACL ACLConfig `koanf:"acl"`

	// BindToV4 and BindToV6 are the local addresses the per-family UDP
	// socket binds to. Empty means "any address of that family".
	BindToV4 string `koanf:"bindto_v4"`
	BindToV6 string `koanf:"bindto_v6"`

	// MulticastV4 and MulticastV6 are the link-local multicast addresses
	// this interface joins and sends packets to by default, one per
	// family (e.g. "224.0.0.109" / "ff02::6d" for MANET_LINKLOCAL_ROUTERS).
	// An empty value disables that family on this interface.
	MulticastV4 string `koanf:"multicast_v4"`
	MulticastV6 string `koanf:"multicast_v6"`

	// Port is the UDP port used for both send and receive.
	Port uint16 `koanf:"port"`

	// RequireSequenceNumbers forces every target on this interface to
	// carry a packet sequence number (see rfc5444.Target.nextPacketSeqNum).
	RequireSequenceNumbers bool `koanf:"require_sequence_numbers"`
}

// ACLConfig is an accept/deny address list: CIDR prefixes or bare
// addresses (treated as a single-address prefix). A packet is permitted
// when it matches no Deny entry and either Allow is empty or it matches
// an Allow entry.
type ACLConfig struct {
	Allow []string `koanf:"allow"`
	Deny  []string `koanf:"deny"`
}

// Parse resolves the ACL's string entries into netip.Prefix values.
func (a ACLConfig) Parse() (allow, deny []netip.Prefix, err error) {
	if allow, err = parsePrefixList(a.Allow); err != nil {
		return nil, nil, fmt.Errorf("acl.allow: %w", err)
	}
	if deny, err = parsePrefixList(a.Deny); err != nil {
		return nil, nil, fmt.Errorf("acl.deny: %w", err)
	}
	return allow, deny, nil
}

func parsePrefixList(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		p, err := netip.ParsePrefix(e)
		if err != nil {
			addr, addrErr := netip.ParseAddr(e)
			if addrErr != nil {
				return nil, fmt.Errorf("parse acl entry %q: %w", e, err)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		out = append(out, p)
	}
	return out, nil
}

// ProtocolKey returns a unique identifier for the protocol, used by
// Validate to reject duplicate protocol entries.
func (pc ProtocolConfig) ProtocolKey() string {
	return pc.Name
}

// MulticastV4Addr parses InterfaceConfig.MulticastV4 as a netip.Addr.
// An empty value returns the zero Addr (family disabled).
func (ic InterfaceConfig) MulticastV4Addr() (netip.Addr, error) {
	return parseOptionalAddr(ic.MulticastV4, "multicast_v4")
}

// MulticastV6Addr parses InterfaceConfig.MulticastV6 as a netip.Addr.
// An empty value returns the zero Addr (family disabled).
func (ic InterfaceConfig) MulticastV6Addr() (netip.Addr, error) {
	return parseOptionalAddr(ic.MulticastV6, "multicast_v6")
}

// BindToV4Addr parses InterfaceConfig.BindToV4 as a netip.Addr. An empty
// value returns the zero Addr (bind to any v4 address).
func (ic InterfaceConfig) BindToV4Addr() (netip.Addr, error) {
	return parseOptionalAddr(ic.BindToV4, "bindto_v4")
}

// BindToV6Addr parses InterfaceConfig.BindToV6 as a netip.Addr. An empty
// value returns the zero Addr (bind to any v6 address).
func (ic InterfaceConfig) BindToV6Addr() (netip.Addr, error) {
	return parseOptionalAddr(ic.BindToV6, "bindto_v6")
}

func parseOptionalAddr(s, field string) (netip.Addr, error) {
	if s == "" {
		return netip.Addr{}, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return addr, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
//
// Only the admin, metrics and log sections get defaults. No protocols are
// declared, and there is no default aggregation_interval or mtu: every
// protocol entry sets its own, and Validate rejects a zero value.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":8500",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for rfc5444d configuration.
// Variables are named RFC5444D_<section>_<key>, e.g. RFC5444D_ADMIN_ADDR.
const envPrefix = "RFC5444D_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (RFC5444D_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	RFC5444D_ADMIN_ADDR    -> admin.addr
//	RFC5444D_METRICS_ADDR  -> metrics.addr
//	RFC5444D_METRICS_PATH  -> metrics.path
//	RFC5444D_LOG_LEVEL     -> log.level
//	RFC5444D_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// RFC5444D_ADMIN_ADDR -> admin.addr (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms RFC5444D_ADMIN_ADDR -> admin.addr.
// Strips the RFC5444D_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":   defaults.Admin.Addr,
		"metrics.addr": defaults.Metrics.Addr,
		"metrics.path": defaults.Metrics.Path,
		"log.level":    defaults.Log.Level,
		"log.format":   defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAdminAddr indicates the admin listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrInvalidMTU indicates a protocol's MTU is not positive.
	ErrInvalidMTU = errors.New("protocols[].mtu must be > 0")

	// ErrInvalidAggregationInterval indicates a non-positive aggregation interval.
	ErrInvalidAggregationInterval = errors.New("protocols[].aggregation_interval must be > 0")

	// ErrEmptyProtocolName indicates a protocol entry has no name.
	ErrEmptyProtocolName = errors.New("protocols[].name must not be empty")

	// ErrEmptyInterfaceName indicates an interface entry has no name.
	ErrEmptyInterfaceName = errors.New("protocols[].interfaces[].name must not be empty")

	// ErrInvalidMulticastGroup indicates an interface's multicast group is invalid.
	ErrInvalidMulticastGroup = errors.New("protocols[].interfaces[].multicast_v4/multicast_v6 is invalid")

	// ErrInvalidBindAddr indicates an interface's bind address is invalid.
	ErrInvalidBindAddr = errors.New("protocols[].interfaces[].bindto_v4/bindto_v6 is invalid")

	// ErrInvalidACL indicates an interface's ACL entry is not a valid
	// address or CIDR prefix.
	ErrInvalidACL = errors.New("protocols[].interfaces[].acl entry is invalid")

	// ErrDuplicateProtocolKey indicates two protocol entries share the same name.
	ErrDuplicateProtocolKey = errors.New("duplicate protocol name")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}

	if err := validateProtocols(cfg.Protocols); err != nil {
		return err
	}

	return nil
}

// validateProtocols checks each declarative protocol entry for correctness.
func validateProtocols(protocols []ProtocolConfig) error {
	seen := make(map[string]struct{}, len(protocols))

	for i, pc := range protocols {
		if pc.Name == "" {
			return fmt.Errorf("protocols[%d]: %w", i, ErrEmptyProtocolName)
		}
		if pc.MTU <= 0 {
			return fmt.Errorf("protocols[%d]: %w", i, ErrInvalidMTU)
		}
		if pc.AggregationInterval <= 0 {
			return fmt.Errorf("protocols[%d]: %w", i, ErrInvalidAggregationInterval)
		}

		key := pc.ProtocolKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("protocols[%d] name %q: %w", i, key, ErrDuplicateProtocolKey)
		}
		seen[key] = struct{}{}

		if err := validateInterfaces(i, pc.Interfaces); err != nil {
			return err
		}
	}

	return nil
}

func validateInterfaces(protocolIdx int, interfaces []InterfaceConfig) error {
	for j, ic := range interfaces {
		if ic.Name == "" {
			return fmt.Errorf("protocols[%d].interfaces[%d]: %w", protocolIdx, j, ErrEmptyInterfaceName)
		}
		if _, err := ic.MulticastV4Addr(); err != nil {
			return fmt.Errorf("protocols[%d].interfaces[%d]: %w: %w", protocolIdx, j, ErrInvalidMulticastGroup, err)
		}
		if _, err := ic.MulticastV6Addr(); err != nil {
			return fmt.Errorf("protocols[%d].interfaces[%d]: %w: %w", protocolIdx, j, ErrInvalidMulticastGroup, err)
		}
		if _, err := ic.BindToV4Addr(); err != nil {
			return fmt.Errorf("protocols[%d].interfaces[%d]: %w: %w", protocolIdx, j, ErrInvalidBindAddr, err)
		}
		if _, err := ic.BindToV6Addr(); err != nil {
			return fmt.Errorf("protocols[%d].interfaces[%d]: %w: %w", protocolIdx, j, ErrInvalidBindAddr, err)
		}
		if _, _, err := ic.ACL.Parse(); err != nil {
			return fmt.Errorf("protocols[%d].interfaces[%d]: %w: %w", protocolIdx, j, ErrInvalidACL, err)
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
