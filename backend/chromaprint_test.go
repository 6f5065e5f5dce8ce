package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeatFingerprint(word uint32, n int) []uint32 {
	fp := make([]uint32, n)
	for i := range fp {
		fp[i] = word
	}
	return fp
}

func TestParseFpcalcOutput(t *testing.T) {
	res := parseFpcalcOutput("DURATION=215.83\nFINGERPRINT=123,456,789\n")
	require.NotNil(t, res)
	assert.Equal(t, 215, res.DurationSec)
	assert.Equal(t, []uint32{123, 456, 789}, res.Fingerprint)

	res = parseFpcalcOutput("DURATION=200\nFINGERPRINT=1, 2,junk,3")
	require.NotNil(t, res)
	assert.Equal(t, 200, res.DurationSec)
	assert.Equal(t, []uint32{1, 2, 3}, res.Fingerprint)

	res = parseFpcalcOutput("")
	require.NotNil(t, res)
	assert.Zero(t, res.DurationSec)
	assert.Empty(t, res.Fingerprint)
}

func TestFingerprintsMatch(t *testing.T) {
	a := repeatFingerprint(0xDEADBEEF, 32)

	assert.True(t, FingerprintsMatch(a, a, DefaultFingerprintThreshold))

	// one flipped bit across 32 words stays well under the threshold
	b := append([]uint32(nil), a...)
	b[10] ^= 1
	assert.True(t, FingerprintsMatch(a, b, DefaultFingerprintThreshold))

	// fully inverted words cannot match
	c := make([]uint32, len(a))
	for i := range c {
		c[i] = a[i] ^ 0xFFFFFFFF
	}
	assert.False(t, FingerprintsMatch(a, c, DefaultFingerprintThreshold))

	// comparison runs over the shorter fingerprint
	assert.True(t, FingerprintsMatch(a, a[:24], DefaultFingerprintThreshold))
}

func TestFingerprintsMatchShortOverlap(t *testing.T) {
	short := repeatFingerprint(7, 19)
	assert.False(t, FingerprintsMatch(short, short, DefaultFingerprintThreshold))
	assert.False(t, FingerprintsMatch(nil, nil, DefaultFingerprintThreshold))

	exact := repeatFingerprint(7, 20)
	assert.True(t, FingerprintsMatch(exact, exact, DefaultFingerprintThreshold))
}

func TestFingerprintDurationOK(t *testing.T) {
	assert.True(t, FingerprintDurationOK(200000, 204000))  // inside the 5s window
	assert.False(t, FingerprintDurationOK(200000, 206000)) // outside it
	assert.True(t, FingerprintDurationOK(400000, 407000))  // 2% of the longer side wins for long tracks
	assert.False(t, FingerprintDurationOK(400000, 409000))
	assert.True(t, FingerprintDurationOK(0, 300000)) // unknown durations never block
	assert.True(t, FingerprintDurationOK(300000, 0))
}
