package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/hfpag/internal/indicators"
	"github.com/danmuck/hfpag/internal/procedure"
)

var agFeatureNames = map[string]procedure.AgFeatures{
	"three_way_calling":          procedure.AgThreeWayCalling,
	"ec_nr":                      procedure.AgEcNr,
	"voice_recognition":          procedure.AgVoiceRecognition,
	"in_band_ring":               procedure.AgInBandRing,
	"attach_voice_tag":           procedure.AgAttachVoiceTag,
	"reject_call":                procedure.AgRejectCall,
	"enhanced_call_status":       procedure.AgEnhancedCallStatus,
	"enhanced_call_control":      procedure.AgEnhancedCallControl,
	"extended_error_codes":       procedure.AgExtendedErrorCodes,
	"codec_negotiation":          procedure.AgCodecNegotiation,
	"hf_indicators":              procedure.AgHfIndicators,
	"esco_s4":                    procedure.AgEscoS4,
	"enhanced_voice_recognition": procedure.AgEnhancedVoiceRecognition,
}

// ParseAgFeatures turns feature names into the +BRSF bitmap.
func ParseAgFeatures(names []string) (procedure.AgFeatures, error) {
	var out procedure.AgFeatures
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		bit, ok := agFeatureNames[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, raw)
		}
		out |= bit
	}
	return out, nil
}

// AgFeatureNames lists the names set in f, sorted.
func AgFeatureNames(f procedure.AgFeatures) []string {
	out := make([]string, 0, len(agFeatureNames))
	for name, bit := range agFeatureNames {
		if f.Has(bit) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// parseIndicators overlays named values on base.
func parseIndicators(base indicators.IndicatorStatus, values map[string]uint8) (indicators.IndicatorStatus, error) {
	out := base
	for name, v := range values {
		ind, err := indicators.ParseAgIndicator(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return base, fmt.Errorf("indicators.%s: %w", name, err)
		}
		if err := out.Set(ind, v); err != nil {
			return base, fmt.Errorf("indicators.%s: %w", name, err)
		}
	}
	return out, nil
}
