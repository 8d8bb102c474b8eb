package dnc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputBound(t *testing.T) {
	net := CreateNetwork("ob")
	s, err := net.AddServer("s", RateLatency(10, 2), MuxArbitrary)
	require.NoError(t, err)

	outs, err := ServerOutputBound(DefaultAnalysisConfig(), []Curve{TokenBucket(5, 3)}, s)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.True(t, outs[0].Equal(TokenBucket(11, 3)), "got %s", outs[0])

	// one candidate per arrival/service pair
	outs, err = OutputBound(DefaultAnalysisConfig(),
		[]Curve{TokenBucket(5, 3), TokenBucket(1, 1)},
		[]Curve{RateLatency(10, 2), RateLatency(20, 1)}, s)
	require.NoError(t, err)
	assert.Len(t, outs, 4)
	best, err := MinAll(outs)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, best.Eval(0.5).Float(), 1e-9)
	assert.InDelta(t, 14, best.Eval(12).Float(), 1e-9)

	_, err = OutputBound(DefaultAnalysisConfig(), nil, []Curve{RateLatency(10, 2)}, s)
	assert.ErrorIs(t, err, ErrEmptyCandidateSet)
	_, err = OutputBound(DefaultAnalysisConfig(), []Curve{TokenBucket(5, 3)}, nil, s)
	assert.ErrorIs(t, err, ErrEmptyCandidateSet)
}

func TestOutputBoundNeutralGamma(t *testing.T) {
	net := CreateNetwork("gamma")
	plain, err := net.AddServer("plain", RateLatency(10, 2), MuxArbitrary)
	require.NoError(t, err)
	neutral, err := net.AddServer("neutral", RateLatency(10, 2), MuxArbitrary,
		WithGamma(BurstDelay(0)), WithExtraGamma(BurstDelay(0)))
	require.NoError(t, err)

	arrivals := []Curve{TokenBucket(5, 3)}
	off, err := ServerOutputBound(DefaultAnalysisConfig(), arrivals, plain)
	require.NoError(t, err)
	for _, s := range []*Server{plain, neutral} {
		on, err := ServerOutputBound(DefaultAnalysisConfig().WithGamma(true, true), arrivals, s)
		require.NoError(t, err)
		assertCurve(t, off[0], on[0])
	}

	path, err := NewPath([]*Server{plain, neutral})
	require.NoError(t, err)
	assertCurve(t, BurstDelay(0), path.Gamma())
	on, err := OutputBound(DefaultAnalysisConfig().WithGamma(true, true), arrivals, []Curve{RateLatency(10, 2)}, path)
	require.NoError(t, err)
	assertCurve(t, off[0], on[0])
}

func TestOutputBoundVariants(t *testing.T) {
	net := CreateNetwork("variants")
	s, err := net.AddServer("s", RateLatency(10, 2), MuxArbitrary)
	require.NoError(t, err)
	cfg := DefaultAnalysisConfig().WithVariants(ConvolveDefault, DeconvolveTokenBucketRateLatency)

	outs, err := ServerOutputBound(cfg, []Curve{TokenBucket(5, 3)}, s)
	require.NoError(t, err)
	assert.True(t, outs[0].Equal(TokenBucket(11, 3)))

	_, err = ServerOutputBound(cfg, []Curve{twoRate(t)}, s)
	assert.ErrorIs(t, err, ErrUnsupportedVariant)
}

func TestOutputBoundExtraGamma(t *testing.T) {
	net := CreateNetwork("extra")
	s, err := net.AddServer("s", RateLatency(10, 2), MuxArbitrary, WithExtraGamma(TokenBucket(4, 1)))
	require.NoError(t, err)

	// extra-gamma caps the output with its own shape
	outs, err := ServerOutputBound(DefaultAnalysisConfig().WithGamma(false, true), []Curve{TokenBucket(5, 3)}, s)
	require.NoError(t, err)
	assertCurve(t, TokenBucket(4, 1), outs[0])

	outs, err = ServerOutputBound(DefaultAnalysisConfig(), []Curve{TokenBucket(5, 3)}, s)
	require.NoError(t, err)
	assertCurve(t, TokenBucket(11, 3), outs[0])
}
