package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/hfpag/internal/gateway"
	"github.com/danmuck/hfpag/internal/transport/serial"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownFormat  = errors.New("config: unknown file format")
	ErrUnknownFeature = errors.New("config: unknown ag feature")
	ErrInvalid        = errors.New("config: invalid")
)

// FileConfig is the on-disk layout shared by the TOML and YAML formats.
type FileConfig struct {
	Name              string           `toml:"name" yaml:"name"`
	Operator          string           `toml:"operator" yaml:"operator"`
	AgFeatures        []string         `toml:"ag_features" yaml:"ag_features"`
	HeartbeatInterval string           `toml:"heartbeat_interval" yaml:"heartbeat_interval"`
	AdminAddr         string           `toml:"admin_addr" yaml:"admin_addr"`
	AdminToken        string           `toml:"admin_token" yaml:"admin_token"`
	CorsOrigins       []string         `toml:"cors_origins" yaml:"cors_origins"`
	Indicators        map[string]uint8 `toml:"indicators" yaml:"indicators"`
	Transport         TransportConfig  `toml:"transport" yaml:"transport"`
}

type TransportConfig struct {
	TCPAddr string         `toml:"tcp_addr" yaml:"tcp_addr"`
	BlueZ   BlueZConfig    `toml:"bluez" yaml:"bluez"`
	Serial  []SerialDevice `toml:"serial" yaml:"serial"`
	// SerialReadTimeout applies to every serial device.
	SerialReadTimeout string `toml:"serial_read_timeout" yaml:"serial_read_timeout"`
}

type BlueZConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Name    string `toml:"name" yaml:"name"`
	Channel uint16 `toml:"channel" yaml:"channel"`
}

type SerialDevice struct {
	Path    string `toml:"path" yaml:"path"`
	Peer    string `toml:"peer" yaml:"peer"`
	Baud    int    `toml:"baud" yaml:"baud"`
	Channel uint8  `toml:"channel" yaml:"channel"`
}

// definedFunc reports whether a dotted key was present in the file.
type definedFunc func(key ...string) bool

// Load reads a TOML or YAML file, chosen by extension, over the gateway
// defaults and validates the result.
func Load(path string) (gateway.ServiceConfig, error) {
	raw, defined, err := decode(path)
	if err != nil {
		return gateway.ServiceConfig{}, err
	}
	cfg, err := apply(gateway.DefaultServiceConfig(), raw, defined)
	if err != nil {
		return gateway.ServiceConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return gateway.ServiceConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string) (FileConfig, definedFunc, error) {
	var raw FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return FileConfig{}, nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		return raw, meta.IsDefined, nil
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return FileConfig{}, nil, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return FileConfig{}, nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if len(root.Content) == 0 {
			return raw, func(...string) bool { return false }, nil
		}
		if err := root.Content[0].Decode(&raw); err != nil {
			return FileConfig{}, nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		return raw, yamlDefined(root.Content[0]), nil
	default:
		return FileConfig{}, nil, fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

// yamlDefined walks mapping nodes the way toml.MetaData.IsDefined walks
// tables.
func yamlDefined(doc *yaml.Node) definedFunc {
	return func(key ...string) bool {
		node := doc
		for _, k := range key {
			if node.Kind != yaml.MappingNode {
				return false
			}
			var next *yaml.Node
			for i := 0; i+1 < len(node.Content); i += 2 {
				if node.Content[i].Value == k {
					next = node.Content[i+1]
					break
				}
			}
			if next == nil {
				return false
			}
			node = next
		}
		return true
	}
}

func apply(cfg gateway.ServiceConfig, raw FileConfig, defined definedFunc) (gateway.ServiceConfig, error) {
	if defined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if defined("operator") {
		cfg.Operator = strings.TrimSpace(raw.Operator)
	}
	if defined("ag_features") {
		features, err := ParseAgFeatures(raw.AgFeatures)
		if err != nil {
			return cfg, err
		}
		cfg.AgFeatures = features
	}
	if defined("heartbeat_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HeartbeatInterval))
		if err != nil {
			return cfg, fmt.Errorf("parse heartbeat_interval: %w", err)
		}
		cfg.HeartbeatInterval = d
	}
	if defined("admin_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if defined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if defined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CorsOrigins)
	}
	if defined("indicators") {
		status, err := parseIndicators(cfg.Indicators, raw.Indicators)
		if err != nil {
			return cfg, err
		}
		cfg.Indicators = status
	}

	if defined("transport", "tcp_addr") {
		cfg.TCPListenAddr = strings.TrimSpace(raw.Transport.TCPAddr)
	}
	if defined("transport", "bluez") {
		cfg.BlueZ = gateway.BlueZConfig{
			Enabled: raw.Transport.BlueZ.Enabled,
			Name:    strings.TrimSpace(raw.Transport.BlueZ.Name),
			Channel: raw.Transport.BlueZ.Channel,
		}
	}
	if defined("transport", "serial") {
		cfg.Serial.Devices = cfg.Serial.Devices[:0]
		for _, d := range raw.Transport.Serial {
			cfg.Serial.Devices = append(cfg.Serial.Devices, serial.Device{
				Path:     strings.TrimSpace(d.Path),
				Peer:     strings.TrimSpace(d.Peer),
				BaudRate: d.Baud,
				Channel:  d.Channel,
			})
		}
	}
	if defined("transport", "serial_read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Transport.SerialReadTimeout))
		if err != nil {
			return cfg, fmt.Errorf("parse transport.serial_read_timeout: %w", err)
		}
		cfg.Serial.ReadTimeout = d
	}
	return cfg, nil
}

// Validate rejects configurations the gateway cannot run.
func Validate(cfg gateway.ServiceConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalid)
	}
	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat_interval must be positive", ErrInvalid)
	}
	if cfg.TCPListenAddr == "" && len(cfg.Serial.Devices) == 0 && !cfg.BlueZ.Enabled {
		return fmt.Errorf("%w: no transport enabled", ErrInvalid)
	}
	if cfg.BlueZ.Channel > 30 {
		return fmt.Errorf("%w: rfcomm channel %d out of range 1-30", ErrInvalid, cfg.BlueZ.Channel)
	}
	seen := make(map[string]struct{}, len(cfg.Serial.Devices))
	for i, d := range cfg.Serial.Devices {
		if d.Path == "" {
			return fmt.Errorf("%w: transport.serial[%d] missing path", ErrInvalid, i)
		}
		if _, ok := seen[d.Path]; ok {
			return fmt.Errorf("%w: transport.serial[%d] duplicate path %s", ErrInvalid, i, d.Path)
		}
		seen[d.Path] = struct{}{}
		if d.BaudRate < 0 {
			return fmt.Errorf("%w: transport.serial[%d] negative baud", ErrInvalid, i)
		}
		if d.Channel > 30 {
			return fmt.Errorf("%w: transport.serial[%d] rfcomm channel %d out of range 1-30", ErrInvalid, i, d.Channel)
		}
		if d.Channel > 0 && d.Peer == "" {
			return fmt.Errorf("%w: transport.serial[%d] channel needs a peer", ErrInvalid, i)
		}
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
