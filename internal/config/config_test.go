package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/hfpag/internal/gateway"
	"github.com/danmuck/hfpag/internal/procedure"
	"github.com/danmuck/hfpag/internal/testutil/testlog"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTemplates(t *testing.T) {
	testlog.Start(t)
	for _, format := range []string{"toml", "yaml"} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "hfpag."+format)
			if err := WriteTemplate(path, format, false); err != nil {
				t.Fatalf("write template: %v", err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			def := gateway.DefaultServiceConfig()
			if cfg.AgFeatures != def.AgFeatures {
				t.Fatalf("features=%d want %d", cfg.AgFeatures, def.AgFeatures)
			}
			if cfg.Indicators != def.Indicators {
				t.Fatalf("indicators=%+v", cfg.Indicators)
			}
			if cfg.Operator != "hfpag" || cfg.TCPListenAddr != "127.0.0.1:7070" {
				t.Fatalf("unexpected cfg %+v", cfg)
			}
			if cfg.BlueZ.Enabled || cfg.BlueZ.Channel != 13 {
				t.Fatalf("unexpected bluez %+v", cfg.BlueZ)
			}
			if cfg.Serial.ReadTimeout != 200*time.Millisecond || len(cfg.Serial.Devices) != 0 {
				t.Fatalf("unexpected serial %+v", cfg.Serial)
			}
			if err := WriteTemplate(path, format, false); err == nil {
				t.Fatalf("expected refusal to overwrite")
			}
		})
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "min.toml", `operator = "Carrier"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := gateway.DefaultServiceConfig()
	if cfg.Name != def.Name || cfg.HeartbeatInterval != def.HeartbeatInterval {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.TCPListenAddr != def.TCPListenAddr || cfg.AdminListenAddr != def.AdminListenAddr {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Operator != "Carrier" {
		t.Fatalf("operator=%q", cfg.Operator)
	}
}

func TestLoadSerialDevicesYAML(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "serial.yml", `
ag_features: [extended_error_codes, hf_indicators]
indicators:
  call: 1
transport:
  tcp_addr: ""
  serial:
    - path: /dev/rfcomm0
      peer: "00:11:22:33:44:55"
      baud: 115200
      channel: 3
    - path: /dev/rfcomm1
admin_token: " secret "
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AgFeatures != procedure.AgExtendedErrorCodes|procedure.AgHfIndicators {
		t.Fatalf("features=%d", cfg.AgFeatures)
	}
	if cfg.Indicators.Call != 1 || cfg.Indicators.Signal != 5 {
		t.Fatalf("indicators=%+v", cfg.Indicators)
	}
	if cfg.TCPListenAddr != "" || len(cfg.Serial.Devices) != 2 {
		t.Fatalf("unexpected transports %+v", cfg)
	}
	if d := cfg.Serial.Devices[0]; d.Peer != "00:11:22:33:44:55" || d.BaudRate != 115200 || d.Channel != 3 {
		t.Fatalf("device=%+v", d)
	}
	if cfg.AdminToken != "secret" {
		t.Fatalf("admin token=%q", cfg.AdminToken)
	}
}

func TestLoadRejects(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name string
		file string
		body string
		want error
	}{
		{"unknown format", "x.json", `{}`, ErrUnknownFormat},
		{"unknown feature", "x.toml", `ag_features = ["teleport"]`, ErrUnknownFeature},
		{"no transport", "x.toml", "[transport]\ntcp_addr = \"\"\n", ErrInvalid},
		{"zero heartbeat", "x.toml", `heartbeat_interval = "0s"`, ErrInvalid},
		{"duplicate serial", "x.yaml", "transport:\n  serial:\n    - path: /dev/a\n    - path: /dev/a\n", ErrInvalid},
		{"channel range", "x.toml", "[transport.bluez]\nenabled = true\nchannel = 31\n", ErrInvalid},
		{"serial channel without peer", "x.toml", "[[transport.serial]]\npath = \"/dev/rfcomm0\"\nchannel = 3\n", ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := Load(writeConfig(t, "bad.toml", `indicators = { signal = 9 }`)); err == nil {
		t.Fatalf("expected out of range indicator error")
	}
	if _, err := Load(writeConfig(t, "bad.toml", `heartbeat_interval = "soon"`)); err == nil {
		t.Fatalf("expected duration error")
	}
}

func TestAgFeatureNamesRoundTrip(t *testing.T) {
	testlog.Start(t)
	f := gateway.DefaultServiceConfig().AgFeatures
	got, err := ParseAgFeatures(AgFeatureNames(f))
	if err != nil || got != f {
		t.Fatalf("got %d err %v want %d", got, err, f)
	}
}
