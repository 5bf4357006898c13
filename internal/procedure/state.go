package procedure

import (
	"strconv"

	"github.com/danmuck/hfpag/internal/indicators"
)

// HfFeatures is the AT+BRSF bitmap sent by the HF.
type HfFeatures uint32

const (
	HfEcNr HfFeatures = 1 << iota
	HfThreeWayCalling
	HfCliPresentation
	HfVoiceRecognition
	HfRemoteVolume
	HfEnhancedCallStatus
	HfEnhancedCallControl
	HfCodecNegotiation
	HfHfIndicators
	HfEscoS4
	HfEnhancedVoiceRecognition
)

// AgFeatures is the +BRSF bitmap sent by the AG.
type AgFeatures uint32

const (
	AgThreeWayCalling AgFeatures = 1 << iota
	AgEcNr
	AgVoiceRecognition
	AgInBandRing
	AgAttachVoiceTag
	AgRejectCall
	AgEnhancedCallStatus
	AgEnhancedCallControl
	AgExtendedErrorCodes
	AgCodecNegotiation
	AgHfIndicators
	AgEscoS4
	AgEnhancedVoiceRecognition
)

func (f HfFeatures) Has(bit HfFeatures) bool { return f&bit == bit }
func (f AgFeatures) Has(bit AgFeatures) bool { return f&bit == bit }

// CodecID is an HFP audio codec identifier.
type CodecID uint8

const (
	CodecCVSD CodecID = 1
	CodecMSBC CodecID = 2
	CodecLC3  CodecID = 3
)

func (c CodecID) String() string {
	switch c {
	case CodecCVSD:
		return "cvsd"
	case CodecMSBC:
		return "msbc"
	case CodecLC3:
		return "lc3-swb"
	default:
		return "codec(" + strconv.Itoa(int(c)) + ")"
	}
}

// NetworkOperatorNameFormat is the AT+COPS=3,<format> selection.
type NetworkOperatorNameFormat int

const LongAlphanumeric NetworkOperatorNameFormat = 0

// SlcState is the negotiated state of one service level connection.
type SlcState struct {
	// Initialized becomes true once, when SLC initialization completes.
	Initialized bool

	AgFeatures        AgFeatures
	HfFeatures        HfFeatures
	HfSupportedCodecs []CodecID
	SelectedCodec     *CodecID

	AgIndicatorStatus indicators.IndicatorStatus
	AgIndicatorEvents indicators.AgIndicatorsReporting
	HfIndicators      indicators.HfIndicators

	NetworkOperatorNameFormat *NetworkOperatorNameFormat
	ExtendedErrors            bool
}

// NewSlcState returns the state of a connection that has negotiated nothing.
func NewSlcState() SlcState {
	return SlcState{
		AgIndicatorEvents: indicators.DefaultAgIndicatorsReporting(),
	}
}

func (s *SlcState) CodecNegotiationSupported() bool {
	return s.AgFeatures.Has(AgCodecNegotiation) && s.HfFeatures.Has(HfCodecNegotiation)
}

func (s *SlcState) ThreeWayCallingSupported() bool {
	return s.AgFeatures.Has(AgThreeWayCalling) && s.HfFeatures.Has(HfThreeWayCalling)
}

func (s *SlcState) HfIndicatorsSupported() bool {
	return s.AgFeatures.Has(AgHfIndicators) && s.HfFeatures.Has(HfHfIndicators)
}

// HfSupportsCodec reports whether the HF listed c in AT+BAC. CVSD is
// mandatory and always supported.
func (s *SlcState) HfSupportsCodec(c CodecID) bool {
	if c == CodecCVSD {
		return true
	}
	for _, have := range s.HfSupportedCodecs {
		if have == c {
			return true
		}
	}
	return false
}
