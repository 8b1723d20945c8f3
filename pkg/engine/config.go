package engine

// NumBuckets is the number of RPM buckets in the cut-time map:
// 5000-5999 through 14000-14999 in 1000 RPM steps.
const NumBuckets = 11

// RPM bucket layout for the cut-time map.
const (
	bucketBaseRPM  = 5000
	bucketWidthRPM = 1000
	bucketTopRPM   = bucketBaseRPM + NumBuckets*bucketWidthRPM - bucketWidthRPM // 15000
)

// Config is the engine configuration snapshot. It is replaced wholesale
// via ApplyConfig; handlers read one snapshot per event so a reader
// never observes a mix of old and new values.
//
// The engine performs no validation on applied values. A zero debounce
// time or an implausible cut duration is accepted as-is; bounds
// checking belongs to the configuration layer.
type Config struct {
	// MinRPMThreshold is the RPM below which sensor shift requests are
	// ignored. Manual (button) requests bypass this gate.
	MinRPMThreshold uint16

	// DebounceTimeMs is the minimum spacing between accepted shift
	// events, in milliseconds.
	DebounceTimeMs uint16

	// CutTimeMap holds the ignition-cut duration in milliseconds per
	// RPM bucket. Lookups clamp below 5000 RPM to the first entry and
	// at or above 15000 RPM to the last.
	CutTimeMap [NumBuckets]uint16
}

// DefaultConfig returns the factory configuration: 3000 RPM threshold,
// 50 ms debounce, 80 ms cut in every bucket.
func DefaultConfig() Config {
	cfg := Config{
		MinRPMThreshold: 3000,
		DebounceTimeMs:  50,
	}
	for i := range cfg.CutTimeMap {
		cfg.CutTimeMap[i] = 80
	}
	return cfg
}

// DurationForRPM returns the cut duration in milliseconds for the given
// RPM. Out-of-range RPMs clamp to the first or last bucket rather than
// extrapolating.
func (c *Config) DurationForRPM(rpm uint16) uint16 {
	if rpm < bucketBaseRPM {
		return c.CutTimeMap[0]
	}
	if rpm >= bucketTopRPM {
		return c.CutTimeMap[NumBuckets-1]
	}
	return c.CutTimeMap[(rpm-bucketBaseRPM)/bucketWidthRPM]
}
