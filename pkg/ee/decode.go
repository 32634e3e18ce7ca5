package ee

import (
	"encoding/json"

	xe "github.com/guojinxiang/ndvi-time-series/pkg/errors"
)

// Sample is one observation of an NDVI series: a timestamp in epoch
// seconds and the value, nil where the pixel was masked.
type Sample struct {
	Seconds float64
	NDVI    *float64
}

// DecodeInt reads a plain number result.
func DecodeInt(data json.RawMessage) (int, error) {
	n := 0
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, xe.WrapWithNote(err, "the result is not a number")
	}
	return n, nil
}

// DecodeSeries reads a list of [seconds, value] pairs as an array result
// yields it. Entries with a masked value are kept with NDVI nil.
func DecodeSeries(data json.RawMessage) ([]Sample, error) {
	pairs := [][]*float64{}
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, xe.WrapWithNote(err, "the result is not a series")
	}

	samples := make([]Sample, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 || pair[0] == nil {
			return nil, xe.New("a series entry has no timestamp")
		}
		samples = append(samples, Sample{Seconds: *pair[0], NDVI: pair[1]})
	}
	return samples, nil
}

// DecodeCoefficients reads a band-name-to-value dictionary as reduceRegion
// yields it. Bands reduced over no data come back null and are dropped.
func DecodeCoefficients(data json.RawMessage) (map[string]float64, error) {
	raw := map[string]*float64{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, xe.WrapWithNote(err, "the result is not a coefficient dictionary")
	}

	coefficients := map[string]float64{}
	for band, value := range raw {
		if value == nil {
			continue
		}
		coefficients[band] = *value
	}
	return coefficients, nil
}
