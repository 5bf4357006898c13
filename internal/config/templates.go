package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns the starter config for the given format.
func Template(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "toml":
		return tomlTemplate, nil
	case "yaml", "yml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

func WriteTemplate(path, format string, overwrite bool) error {
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tomlTemplate = `name = "hfpag.local"
operator = "hfpag"
ag_features = [
  "three_way_calling",
  "enhanced_call_status",
  "extended_error_codes",
  "codec_negotiation",
  "hf_indicators",
]
heartbeat_interval = "30s"
admin_addr = "127.0.0.1:9070"
# admin_token = "change-me"
cors_origins = ["http://localhost:3000"]

[indicators]
service = 1
signal = 5
battchg = 5

[transport]
tcp_addr = "127.0.0.1:7070"
serial_read_timeout = "200ms"

[transport.bluez]
enabled = false
name = "hfpag"
channel = 13

# [[transport.serial]]
# path = "/dev/rfcomm0"
# peer = "00:11:22:33:44:55"
# baud = 115200
# channel = 3
`

const yamlTemplate = `name: hfpag.local
operator: hfpag
ag_features:
  - three_way_calling
  - enhanced_call_status
  - extended_error_codes
  - codec_negotiation
  - hf_indicators
heartbeat_interval: 30s
admin_addr: 127.0.0.1:9070
# admin_token: change-me
cors_origins:
  - http://localhost:3000
indicators:
  service: 1
  signal: 5
  battchg: 5
transport:
  tcp_addr: 127.0.0.1:7070
  serial_read_timeout: 200ms
  bluez:
    enabled: false
    name: hfpag
    channel: 13
  # serial:
  #   - path: /dev/rfcomm0
  #     peer: "00:11:22:33:44:55"
  #     baud: 115200
  #     channel: 3
`
