package indicators

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedReportingStatus = errors.New("indicators: unsupported reporting status")
	ErrUnknownAgIndicator         = errors.New("indicators: unknown ag indicator")
	ErrAgIndicatorRange           = errors.New("indicators: ag indicator value out of range")
)

// AgIndicator is one of the seven AG indicators. The numeric value is the
// 1-based wire index used by +CIND and +CIEV and must never be reordered.
type AgIndicator uint8

const (
	Service   AgIndicator = 1
	Call      AgIndicator = 2
	CallSetup AgIndicator = 3
	CallHeld  AgIndicator = 4
	Signal    AgIndicator = 5
	Roam      AgIndicator = 6
	BattChg   AgIndicator = 7
)

// AllAgIndicators lists the indicators in wire order.
var AllAgIndicators = []AgIndicator{Service, Call, CallSetup, CallHeld, Signal, Roam, BattChg}

func (i AgIndicator) Index() int {
	return int(i)
}

func (i AgIndicator) String() string {
	switch i {
	case Service:
		return "service"
	case Call:
		return "call"
	case CallSetup:
		return "callsetup"
	case CallHeld:
		return "callheld"
	case Signal:
		return "signal"
	case Roam:
		return "roam"
	case BattChg:
		return "battchg"
	default:
		return fmt.Sprintf("indicator(%d)", uint8(i))
	}
}

// MaxValue is the largest value the indicator accepts on the wire.
func (i AgIndicator) MaxValue() uint8 {
	switch i {
	case CallSetup:
		return 3
	case CallHeld:
		return 2
	case Signal, BattChg:
		return 5
	default:
		return 1
	}
}

// ParseAgIndicator resolves a +CIND name to its indicator.
func ParseAgIndicator(name string) (AgIndicator, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, ind := range AllAgIndicators {
		if ind.String() == n {
			return ind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAgIndicator, name)
}

// IndicatorStatus is the AG's current value for every indicator.
type IndicatorStatus struct {
	Service   uint8
	Call      uint8
	CallSetup uint8
	CallHeld  uint8
	Signal    uint8
	Roam      uint8
	BattChg   uint8
}

// Get returns the value of ind, or 0 for an unknown indicator.
func (s IndicatorStatus) Get(ind AgIndicator) uint8 {
	switch ind {
	case Service:
		return s.Service
	case Call:
		return s.Call
	case CallSetup:
		return s.CallSetup
	case CallHeld:
		return s.CallHeld
	case Signal:
		return s.Signal
	case Roam:
		return s.Roam
	case BattChg:
		return s.BattChg
	default:
		return 0
	}
}

// Set validates and stores value for ind. State is unchanged on error.
func (s *IndicatorStatus) Set(ind AgIndicator, value uint8) error {
	if ind < Service || ind > BattChg {
		return fmt.Errorf("%w: %d", ErrUnknownAgIndicator, uint8(ind))
	}
	if value > ind.MaxValue() {
		return fmt.Errorf("%w: %s=%d max=%d", ErrAgIndicatorRange, ind, value, ind.MaxValue())
	}
	switch ind {
	case Service:
		s.Service = value
	case Call:
		s.Call = value
	case CallSetup:
		s.CallSetup = value
	case CallHeld:
		s.CallHeld = value
	case Signal:
		s.Signal = value
	case Roam:
		s.Roam = value
	case BattChg:
		s.BattChg = value
	}
	return nil
}

// Values returns the status in wire order.
func (s IndicatorStatus) Values() []uint8 {
	out := make([]uint8, 0, len(AllAgIndicators))
	for _, ind := range AllAgIndicators {
		out = append(out, s.Get(ind))
	}
	return out
}

// AgIndicatorsReporting tracks the HF's subscription to unsolicited +CIEV
// reports. call, callsetup and callheld are always reportable and have no
// flag.
type AgIndicatorsReporting struct {
	IsEnabled bool
	Service   bool
	Signal    bool
	Roam      bool
	BattChg   bool
}

// DefaultAgIndicatorsReporting returns reporting disabled with every flag set,
// so a peer may toggle single indicators before it ever subscribes.
func DefaultAgIndicatorsReporting() AgIndicatorsReporting {
	return AgIndicatorsReporting{
		IsEnabled: false,
		Service:   true,
		Signal:    true,
		Roam:      true,
		BattChg:   true,
	}
}

// SetReportingStatus applies the <ind> field of AT+CMER. It never touches the
// per-indicator flags.
func (r *AgIndicatorsReporting) SetReportingStatus(v int) error {
	switch v {
	case 0:
		r.IsEnabled = false
	case 1:
		r.IsEnabled = true
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedReportingStatus, v)
	}
	return nil
}

// UpdateFromFlags applies an AT+BIA style positional update. Position 1 is
// service, 2..4 are the call family and ignored, 5 signal, 6 roam, 7 battchg.
// nil entries leave the flag unchanged; entries past 7 are ignored.
func (r *AgIndicatorsReporting) UpdateFromFlags(flags []*bool) {
	for i, flag := range flags {
		if i >= len(AllAgIndicators) {
			break
		}
		if flag == nil {
			continue
		}
		switch AgIndicator(i + 1) {
		case Service:
			r.Service = *flag
		case Signal:
			r.Signal = *flag
		case Roam:
			r.Roam = *flag
		case BattChg:
			r.BattChg = *flag
		}
	}
}

// IndicatorEnabled reports whether a change of ind may be sent to the peer now.
func (r AgIndicatorsReporting) IndicatorEnabled(ind AgIndicator) bool {
	if !r.IsEnabled {
		return false
	}
	switch ind {
	case Call, CallSetup, CallHeld:
		return true
	case Service:
		return r.Service
	case Signal:
		return r.Signal
	case Roam:
		return r.Roam
	case BattChg:
		return r.BattChg
	default:
		return false
	}
}
