package backend

import (
	"context"
	"math/bits"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"flacsweep/logger"
)

const (
	// fpcalcLengthSec caps how much audio fpcalc reads per file.
	fpcalcLengthSec = 120

	// fpcalcTimeout bounds one fpcalc invocation so a single slow file
	// cannot stall the scan.
	fpcalcTimeout = 30 * time.Second

	// DefaultFingerprintThreshold is the maximum average bit error rate
	// at which two fingerprints still count as the same audio. Different
	// encodings of one track typically stay under 10%.
	DefaultFingerprintThreshold = 0.15

	// minFingerprintOverlap is the shortest comparable prefix, in
	// 32-bit words. Anything shorter cannot distinguish recordings.
	minFingerprintOverlap = 20
)

// ChromaprintResult is what fpcalc produced for one file: the audio
// duration it saw and the raw 32-bit subfingerprints.
type ChromaprintResult struct {
	DurationSec int
	Fingerprint []uint32
}

// Fingerprinter computes acoustic fingerprints. A (nil, nil) return means
// no fingerprint could be produced and the file simply skips the
// fingerprint pass; that is not an error.
type Fingerprinter interface {
	ComputeFingerprint(ctx context.Context, path string) (*ChromaprintResult, error)
}

type chromaprinter struct {
	timeout time.Duration
}

// NewChromaprinter returns the fpcalc-backed fingerprinter. fpcalc comes
// from chromaprint-tools and must be on PATH; when it is missing every
// call yields (nil, nil).
func NewChromaprinter() Fingerprinter {
	return chromaprinter{timeout: fpcalcTimeout}
}

func (c chromaprinter) ComputeFingerprint(ctx context.Context, path string) (*ChromaprintResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "fpcalc", "-raw", "-length", strconv.Itoa(fpcalcLengthSec), path)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// exit errors mean an unsupported file, exec errors a missing
		// tool; neither should fail the scan
		logger.Debug("fpcalc unavailable or failed",
			logger.String("path", path), logger.ErrorField(err))
		return nil, nil
	}

	result := parseFpcalcOutput(string(out))
	if result == nil || len(result.Fingerprint) == 0 {
		return nil, nil
	}
	return result, nil
}

// parseFpcalcOutput reads the -raw key=value output: DURATION=<sec> and
// FINGERPRINT=<comma-separated uint32s>.
func parseFpcalcOutput(out string) *ChromaprintResult {
	result := &ChromaprintResult{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "DURATION="):
			value := strings.TrimPrefix(line, "DURATION=")
			if idx := strings.Index(value, "."); idx >= 0 {
				value = value[:idx]
			}
			result.DurationSec, _ = strconv.Atoi(value)
		case strings.HasPrefix(line, "FINGERPRINT="):
			value := strings.TrimPrefix(line, "FINGERPRINT=")
			fields := strings.FieldsFunc(value, func(r rune) bool { return r == ' ' || r == ',' })
			result.Fingerprint = make([]uint32, 0, len(fields))
			for _, field := range fields {
				u, err := strconv.ParseUint(strings.TrimSpace(field), 10, 32)
				if err != nil {
					continue
				}
				result.Fingerprint = append(result.Fingerprint, uint32(u))
			}
		}
	}
	return result
}

// FingerprintsMatch reports whether two raw fingerprints are likely the
// same audio. threshold is the maximum allowed average bit error rate.
// Comparison runs over the shorter length so differing trim lengths are
// not penalized.
func FingerprintsMatch(a, b []uint32, threshold float64) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < minFingerprintOverlap {
		return false
	}
	var distance int
	for i := 0; i < n; i++ {
		distance += bits.OnesCount32(a[i] ^ b[i])
	}
	return float64(distance)/float64(32*n) < threshold
}

// FingerprintDurationOK reports whether two durations are close enough
// for a fingerprint comparison to be meaningful: within 5 seconds or 2%,
// whichever is larger. Unknown durations always pass.
func FingerprintDurationOK(aMs, bMs int) bool {
	if aMs <= 0 || bMs <= 0 {
		return true
	}
	diff := aMs - bMs
	if diff < 0 {
		diff = -diff
	}
	longer := aMs
	if bMs > longer {
		longer = bMs
	}
	maxMs := 5000
	if pct := int(float64(longer) * 0.02); pct > maxMs {
		maxMs = pct
	}
	return diff <= maxMs
}
