package dnc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertCurve(t *testing.T, want, got Curve) {
	t.Helper()
	assert.True(t, want.ApproxEqual(got), "want %s\ngot  %s", want, got)
}

func TestConvolveClosedForms(t *testing.T) {
	tests := []struct {
		name string
		f, g Curve
		want Curve
	}{
		{"rate latency", RateLatency(10, 2), RateLatency(5, 1), RateLatency(5, 3)},
		{"token buckets", TokenBucket(5, 3), TokenBucket(2, 1), TokenBucket(2, 1)},
		{"delay", TokenBucket(5, 3), BurstDelay(2), ShiftRight(TokenBucket(5, 3), 2)},
		{"neutral", RateLatency(10, 2), BurstDelay(0), RateLatency(10, 2)},
		{"zero", RateLatency(10, 2), ZeroCurve(), ZeroCurve()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Convolve(tc.f, tc.g)
			require.NoError(t, err)
			assertCurve(t, tc.want, got)

			swapped, err := Convolve(tc.g, tc.f)
			require.NoError(t, err)
			assertCurve(t, got, swapped)
		})
	}
}

func TestConvolveGeneric(t *testing.T) {
	// the generic merge agrees with the closed form
	got, err := convolveGeneric(RateLatency(10, 2), RateLatency(5, 1))
	require.NoError(t, err)
	assertCurve(t, RateLatency(5, 3), got)

	// TB(5,3)⊗RL(10,2) is 0 up to 2, then min(10(x-2), 5+3(x-2))
	tbrl, err := Convolve(TokenBucket(5, 3), RateLatency(10, 2))
	require.NoError(t, err)
	rltb, err := Convolve(RateLatency(10, 2), TokenBucket(5, 3))
	require.NoError(t, err)
	for _, x := range []float64{0, 1, 2, 2.5, 2.7, 3, 5, 10} {
		want := 0.0
		if x > 2 {
			want = min(10*(x-2), 5+3*(x-2))
		}
		assert.InDelta(t, want, tbrl.Eval(x).Float(), 1e-6, "x=%g", x)
		assert.InDelta(t, want, rltb.Eval(x).Float(), 1e-6, "x=%g", x)
	}
	assert.NoError(t, tbrl.Validate())
}

func TestConvolveAssociative(t *testing.T) {
	a, b, c := TokenBucket(5, 3), RateLatency(10, 2), BurstDelay(1)
	ab, err := Convolve(a, b)
	require.NoError(t, err)
	abc, err := Convolve(ab, c)
	require.NoError(t, err)
	bc, err := Convolve(b, c)
	require.NoError(t, err)
	aBC, err := Convolve(a, bc)
	require.NoError(t, err)
	assertCurve(t, abc, aBC)

	all, err := ConvolveAll([]Curve{a, b, c})
	require.NoError(t, err)
	assertCurve(t, abc, all)

	none, err := ConvolveAll(nil)
	require.NoError(t, err)
	assert.True(t, none.Equal(BurstDelay(0)))
}

func TestConvolveWith(t *testing.T) {
	got, err := ConvolveWith(RateLatency(10, 2), RateLatency(5, 1), ConvolveRateLatency)
	require.NoError(t, err)
	assert.True(t, got.Equal(RateLatency(5, 3)))

	_, err = ConvolveWith(TokenBucket(5, 3), RateLatency(5, 1), ConvolveRateLatency)
	assert.ErrorIs(t, err, ErrUnsupportedVariant)

	_, err = Convolve(Curve{}, RateLatency(5, 1))
	assert.ErrorIs(t, err, ErrInvalidCurveShape)
}

func TestDeconvolve(t *testing.T) {
	tests := []struct {
		name string
		f, g Curve
		want Curve
	}{
		{"token bucket by rate latency", TokenBucket(5, 3), RateLatency(10, 2), TokenBucket(11, 3)},
		{"by delay", TokenBucket(5, 3), BurstDelay(3), TokenBucket(14, 3)},
		{"by neutral", TokenBucket(5, 3), BurstDelay(0), TokenBucket(5, 3)},
		{"unbounded", TokenBucket(5, 12), RateLatency(10, 2), BurstDelay(0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Deconvolve(tc.f, tc.g)
			require.NoError(t, err)
			assertCurve(t, tc.want, got)
		})
	}
}

func TestDeconvolveGeneric(t *testing.T) {
	got, err := deconvolveGeneric(TokenBucket(5, 3), RateLatency(10, 2))
	require.NoError(t, err)
	assertCurve(t, TokenBucket(11, 3), arrivalOrigin(TokenBucket(5, 3), got))

	// a concave curve growing slower than the server is just shifted
	f := twoRate(t)
	out, err := Deconvolve(f, RateLatency(4, 1))
	require.NoError(t, err)
	assert.NoError(t, out.ValidateArrival())
	for _, x := range []float64{0.5, 1, 2, 3, 6} {
		assert.InDelta(t, f.Eval(x+1).Float(), out.Eval(x).Float(), 1e-9, "x=%g", x)
	}
	assert.True(t, out.Eval(0).Equal(Finite(0)))
}

func TestDeconvolveWith(t *testing.T) {
	got, err := DeconvolveWith(TokenBucket(5, 3), RateLatency(10, 2), DeconvolveTokenBucketRateLatency)
	require.NoError(t, err)
	assert.True(t, got.Equal(TokenBucket(11, 3)))

	_, err = DeconvolveWith(twoRate(t), RateLatency(10, 2), DeconvolveTokenBucketRateLatency)
	assert.ErrorIs(t, err, ErrUnsupportedVariant)
}

func TestMinMax(t *testing.T) {
	a, b := TokenBucket(1, 3), TokenBucket(5, 1)
	lo, hi := Min(a, b), Max(a, b)
	for _, x := range []float64{0, 1, 2, 3, 7} {
		av, bv := a.Eval(x).Float(), b.Eval(x).Float()
		assert.InDelta(t, min(av, bv), lo.Eval(x).Float(), 1e-9, "min x=%g", x)
		assert.InDelta(t, max(av, bv), hi.Eval(x).Float(), 1e-9, "max x=%g", x)
	}

	_, err := MinAll(nil)
	assert.ErrorIs(t, err, ErrEmptyCandidateSet)
	best, err := MinAll([]Curve{a, b, TokenBucket(0.5, 5)})
	require.NoError(t, err)
	assert.InDelta(t, 4, best.Eval(1).Float(), 1e-9)
	assert.InDelta(t, 1, best.Eval(0.1).Float(), 1e-9)
}

func TestMinMaxCrossings(t *testing.T) {
	// the buckets cross at 4/7, where the steep one stops being the lower
	lo := Min(TokenBucket(5, 3), TokenBucket(1, 10))
	require.NoError(t, lo.Validate())
	assert.Equal(t, 2, lo.Len(), "got %s", lo)
	for _, x := range []float64{0, 0.25, 4.0 / 7, 1, 3} {
		want := min(1+10*x, 5+3*x)
		if x == 0 {
			want = 0
		}
		assert.InDelta(t, want, lo.Eval(x).Float(), 1e-6, "x=%g", x)
	}

	// rate-latency curves cross at 3.5
	hi := Max(RateLatency(2, 1), RateLatency(10, 3))
	require.NoError(t, hi.Validate())
	for x, want := range map[float64]float64{0: 0, 1: 0, 2: 2, 3: 4, 3.5: 5, 4: 10, 6: 30} {
		assert.InDelta(t, want, hi.Eval(x).Float(), 1e-6, "x=%g", x)
	}
	assert.True(t, hi.IsConvex())
}

// stepped jumps by 3 at x=2 and climbs at rate 6 up to x=4, then at rate 1.
func stepped(t *testing.T, origin float64) Curve {
	c, err := NewCurve([]Segment{
		{X: 0, Value: Finite(origin), Y: Finite(1), Slope: 0},
		{X: 2, Value: Finite(1), Y: Finite(4), Slope: 6},
		{X: 4, Value: Finite(16), Y: Finite(16), Slope: 1},
	})
	require.NoError(t, err)
	return c
}

func TestDeconvolveNonConcave(t *testing.T) {
	// 5x+1 until the jump leaves the latency window at 3, x+13 after
	got, err := Deconvolve(stepped(t, 0), RateLatency(5, 1))
	require.NoError(t, err)
	require.NoError(t, got.Validate())
	assert.True(t, got.Eval(0).Equal(Finite(0)))
	assert.InDelta(t, 1, got.RightLimit(0).Float(), 1e-6)
	for x, want := range map[float64]float64{0.5: 3.5, 1: 6, 2: 11, 3: 16, 5: 18} {
		assert.InDelta(t, want, got.Eval(x).Float(), 1e-6, "x=%g", x)
	}
}

func TestAddSub(t *testing.T) {
	sum, err := AddAll([]Curve{TokenBucket(5, 3), TokenBucket(2, 1)})
	require.NoError(t, err)
	assert.True(t, sum.Equal(TokenBucket(7, 4)), "got %s", sum)

	empty, err := AddAll(nil)
	require.NoError(t, err)
	assert.True(t, empty.Equal(ZeroCurve()))

	_, err = Add(BurstDelay(1), curveOf(Segment{Value: NegInf(), Y: NegInf()}))
	assert.ErrorIs(t, err, ErrUndefinedArithmetic)

	// RL(10,2) minus TB(5,3), closed upwards, crosses 0 at 2+11/7
	diff, err := Sub(RateLatency(10, 2), TokenBucket(5, 3))
	require.NoError(t, err)
	assertCurve(t, RateLatency(7, 25.0/7), diff)
}

func TestShifts(t *testing.T) {
	right := ShiftRight(TokenBucket(5, 3), 2)
	assert.True(t, right.Eval(2).Equal(Finite(0)))
	assert.True(t, right.RightLimit(2).Equal(Finite(5)))
	assert.True(t, ShiftRight(RateLatency(10, 2), 1).Equal(RateLatency(10, 3)))

	left := ShiftLeft(RateLatency(10, 2), 3)
	assert.True(t, left.Equal(curveOf(Segment{Value: Finite(10), Y: Finite(10), Slope: 10})), "got %s", left)
	assert.True(t, ShiftLeft(RateLatency(10, 2), 1).Equal(RateLatency(10, 1)))
}

// Deconvolving a convolution by the same curve never exceeds the original.
func TestDeconvolveConvolution(t *testing.T) {
	services := []Curve{RateLatency(10, 2), RateLatency(4, 0), BurstDelay(1)}
	for _, g := range services {
		t.Run(g.String(), func(t *testing.T) {
			f := TokenBucket(5, 3)
			conv, err := Convolve(f, g)
			require.NoError(t, err)
			back, err := Deconvolve(conv, g)
			require.NoError(t, err)
			for x := 0.0; x <= 10; x += 0.25 {
				assert.LessOrEqual(t, back.Eval(x).Float(), f.Eval(x).Float()+1e-6, "x=%g", x)
			}
			// beyond the service latency the burst is recovered
			assert.InDelta(t, f.Eval(10).Float(), back.Eval(10).Float(), 1e-6)
		})
	}
}

// Convolving a deconvolution by the same curve never falls below the
// original.
func TestConvolveDeconvolution(t *testing.T) {
	services := []Curve{RateLatency(10, 2), RateLatency(4, 0), BurstDelay(1), Max(RateLatency(2, 1), RateLatency(10, 3))}
	for _, g := range services {
		t.Run(g.String(), func(t *testing.T) {
			f := stepped(t, 1)
			dec, err := Deconvolve(f, g)
			require.NoError(t, err)
			require.NoError(t, dec.Validate())
			back, err := Convolve(dec, g)
			require.NoError(t, err)
			require.NoError(t, back.Validate())
			for x := 0.0; x <= 10; x += 0.25 {
				assert.GreaterOrEqual(t, back.Eval(x).Float(), f.Eval(x).Float()-1e-6, "x=%g", x)
				assert.GreaterOrEqual(t, back.RightLimit(x).Float(), f.RightLimit(x).Float()-1e-6, "x=%g+", x)
			}
		})
	}
}
