// Package bluez registers the Hands-Free Audio Gateway profile with BlueZ
// over D-Bus and turns each RFCOMM connection BlueZ hands over into a
// transport.Link.
package bluez

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrUnsupportedPlatform = errors.New("bluez: only supported on linux")

// HfpAgUUID is the Handsfree Audio Gateway service class.
var HfpAgUUID = uuid.MustParse("0000111f-0000-1000-8000-00805f9b34fb")

const (
	DefaultChannel  uint16 = 13
	ProfileVersion  uint16 = 0x0108
	defaultName            = "Hands-Free Audio Gateway"
	defaultObjectNS        = "/com/danmuck/hfpag/profile"
)

// Config for the BlueZ transport.
type Config struct {
	Name    string
	Channel uint16
	// Features is the SDP SupportedFeatures value, not the +BRSF bitmap.
	Features uint16
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = defaultName
	}
	if c.Channel == 0 {
		c.Channel = DefaultChannel
	}
	return c
}

// SdpFeatures maps the +BRSF AG feature bitmap onto the SDP
// SupportedFeatures attribute. The low five bits line up; wide band speech
// is bit 5 in SDP and codec negotiation (bit 9) in +BRSF.
func SdpFeatures(brsf uint32) uint16 {
	f := uint16(brsf & 0x1f)
	if brsf&(1<<9) != 0 {
		f |= 1 << 5
	}
	return f
}

// PeerFromPath extracts the device address from a BlueZ device object path
// such as /org/bluez/hci0/dev_00_11_22_33_44_55.
func PeerFromPath(path string) string {
	idx := strings.LastIndex(path, "/dev_")
	if idx < 0 {
		return path
	}
	return strings.ReplaceAll(path[idx+5:], "_", ":")
}
