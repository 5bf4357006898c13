package indicators

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/danmuck/hfpag/internal/protocol/at"
)

var (
	ErrIndicatorDisabled = errors.New("indicators: hf indicator not enabled")
	ErrIndicatorValue    = errors.New("indicators: hf indicator value out of range")
	ErrUnknownHfKind     = errors.New("indicators: unknown hf indicator")
)

// HfIndicatorKind is the Bluetooth SIG assigned number of an HF indicator.
type HfIndicatorKind int

const (
	EnhancedSafety HfIndicatorKind = 1
	BatteryLevel   HfIndicatorKind = 2
)

func (k HfIndicatorKind) String() string {
	switch k {
	case EnhancedSafety:
		return "enhanced_safety"
	case BatteryLevel:
		return "battery_level"
	default:
		return "hf_indicator(" + strconv.Itoa(int(k)) + ")"
	}
}

// HfIndicator is one validated value reported by the HF with AT+BIEV.
type HfIndicator struct {
	Kind  HfIndicatorKind
	Value int
}

func (i HfIndicator) String() string {
	if i.Kind == EnhancedSafety {
		return fmt.Sprintf("%s=%t", i.Kind, i.Value == 1)
	}
	return fmt.Sprintf("%s=%d", i.Kind, i.Value)
}

// SafetyEnabled reports the enhanced-safety value as a bool.
func (i HfIndicator) SafetyEnabled() bool {
	return i.Kind == EnhancedSafety && i.Value == 1
}

type safetySlot struct {
	Enabled bool
	Value   *bool
}

type batterySlot struct {
	Enabled bool
	Value   *uint8
}

// HfIndicators holds the two optional HF indicator slots. A value is only
// written to an enabled slot.
type HfIndicators struct {
	EnhancedSafety safetySlot
	BatteryLevel   batterySlot
}

// Enable marks the named slots enabled. Unknown kinds are ignored.
func (h *HfIndicators) Enable(kinds ...HfIndicatorKind) {
	for _, k := range kinds {
		switch k {
		case EnhancedSafety:
			h.EnhancedSafety.Enabled = true
		case BatteryLevel:
			h.BatteryLevel.Enabled = true
		}
	}
}

// Update validates raw for kind and stores it. State is untouched on error.
func (h *HfIndicators) Update(kind HfIndicatorKind, raw int64) (HfIndicator, error) {
	switch kind {
	case EnhancedSafety:
		if !h.EnhancedSafety.Enabled {
			return HfIndicator{}, fmt.Errorf("%w: %s", ErrIndicatorDisabled, kind)
		}
		if raw != 0 && raw != 1 {
			return HfIndicator{}, fmt.Errorf("%w: %s=%d", ErrIndicatorValue, kind, raw)
		}
		v := raw == 1
		h.EnhancedSafety.Value = &v
		return HfIndicator{Kind: kind, Value: int(raw)}, nil
	case BatteryLevel:
		if !h.BatteryLevel.Enabled {
			return HfIndicator{}, fmt.Errorf("%w: %s", ErrIndicatorDisabled, kind)
		}
		if raw < 0 || raw > 100 {
			return HfIndicator{}, fmt.Errorf("%w: %s=%d", ErrIndicatorValue, kind, raw)
		}
		v := uint8(raw)
		h.BatteryLevel.Value = &v
		return HfIndicator{Kind: kind, Value: int(raw)}, nil
	default:
		return HfIndicator{}, fmt.Errorf("%w: %d", ErrUnknownHfKind, int(kind))
	}
}

// BindResponse is the reply to AT+BIND?: enhanced safety, battery level, OK.
// The order is part of the wire contract.
func (h HfIndicators) BindResponse() []at.Response {
	return []at.Response{
		at.Result("+BIND", strconv.Itoa(int(EnhancedSafety)), boolArg(h.EnhancedSafety.Enabled)),
		at.Result("+BIND", strconv.Itoa(int(BatteryLevel)), boolArg(h.BatteryLevel.Enabled)),
		at.Ok(),
	}
}

func boolArg(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
