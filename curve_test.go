package dnc

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// twoRate is a concave arrival curve: burst 2 at rate 1 up to x=3, rate 0.5
// after.
func twoRate(t *testing.T) Curve {
	c, err := NewCurve([]Segment{
		{X: 0, Value: Finite(0), Y: Finite(2), Slope: 1},
		{X: 3, Value: Finite(5), Y: Finite(5), Slope: 0.5},
	})
	require.NoError(t, err)
	return c
}

func TestCurveShapes(t *testing.T) {
	tests := []struct {
		name  string
		curve Curve
		want  Shape
	}{
		{"zero", ZeroCurve(), Shape{Kind: ShapeZero}},
		{"token bucket", TokenBucket(5, 3), Shape{Kind: ShapeTokenBucket, Burst: 5, Rate: 3}},
		{"rate latency", RateLatency(10, 2), Shape{Kind: ShapeRateLatency, Rate: 10, Latency: 2}},
		{"rate only", RateLatency(10, 0), Shape{Kind: ShapeRateLatency, Rate: 10}},
		{"zero rate", RateLatency(0, 3), Shape{Kind: ShapeZero}},
		{"pure delay", BurstDelay(2), Shape{Kind: ShapeBurstDelay, Latency: 2}},
		{"neutral", BurstDelay(0), Shape{Kind: ShapeBurstDelay}},
		{"generic", twoRate(t), Shape{Kind: ShapeGeneric}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.curve.Shape())
			assert.NoError(t, tc.curve.Validate())
		})
	}
}

func TestCurveEval(t *testing.T) {
	tb := TokenBucket(5, 3)
	assert.True(t, tb.Eval(0).Equal(Finite(0)))
	assert.True(t, tb.RightLimit(0).Equal(Finite(5)))
	assert.True(t, tb.Eval(1).Equal(Finite(8)))

	rl := RateLatency(10, 2)
	assert.True(t, rl.Eval(1).Equal(Finite(0)))
	assert.True(t, rl.Eval(3).Equal(Finite(10)))

	bd := BurstDelay(2)
	assert.True(t, bd.Eval(2).Equal(Finite(0)))
	assert.True(t, bd.LeftLimit(2).Equal(Finite(0)))
	assert.True(t, bd.RightLimit(2).IsPosInf())
	assert.True(t, bd.Eval(2.5).IsPosInf())

	c := twoRate(t)
	assert.True(t, c.Eval(3).Equal(Finite(5)))
	assert.True(t, c.Eval(5).Equal(Finite(6)))
	assert.Equal(t, 0.5, c.UltimateSlope())
}

func TestNewCurveRejects(t *testing.T) {
	tests := map[string][]Segment{
		"empty":           nil,
		"late start":      {{X: 1, Slope: 1}},
		"negative slope":  {{Y: Finite(3), Value: Finite(0), Slope: -1}},
		"decreasing jump": {{Value: Finite(2), Y: Finite(1)}},
		"drop at break":   {{Y: Finite(4), Slope: 1}, {X: 1, Value: Finite(2), Y: Finite(2), Slope: 1}},
		"unordered":       {{Slope: 1}, {X: 2, Value: Finite(2), Y: Finite(2), Slope: 1}, {X: 1, Value: Finite(1), Y: Finite(1)}},
		"undefined value": {{Value: Undefined(), Y: Finite(1)}},
		"infinite slope":  {{Slope: math.Inf(1)}},
	}
	for name, segs := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewCurve(segs)
			assert.ErrorIs(t, err, ErrInvalidCurveShape)
		})
	}
}

func TestCurveRoles(t *testing.T) {
	shifted, err := NewCurve([]Segment{{Value: Finite(1), Y: Finite(1), Slope: 1}})
	require.NoError(t, err)
	assert.ErrorIs(t, shifted.ValidateArrival(), ErrInvalidCurveShape)
	assert.ErrorIs(t, shifted.ValidateService(), ErrInvalidCurveShape)

	// a service curve may be -inf at the origin only
	minusInf, err := NewCurve([]Segment{{Value: NegInf(), Y: Finite(0), Slope: 1}})
	require.NoError(t, err)
	assert.NoError(t, minusInf.ValidateService())
	assert.Error(t, minusInf.ValidateArrival())

	assert.NoError(t, TokenBucket(5, 3).ValidateArrival())
	assert.NoError(t, RateLatency(10, 2).ValidateService())
}

func TestCurveProperties(t *testing.T) {
	assert.True(t, TokenBucket(5, 3).IsAlmostConcave())
	assert.False(t, TokenBucket(5, 3).IsConcave())
	assert.False(t, TokenBucket(5, 3).IsConvex())
	assert.True(t, twoRate(t).IsAlmostConcave())
	assert.True(t, RateLatency(10, 2).IsConvex())
	assert.False(t, RateLatency(10, 2).IsAlmostConcave())
	assert.False(t, BurstDelay(1).IsConvex())
}

func TestCurveApproxEqual(t *testing.T) {
	// the same rate-latency curve, cut once more than needed
	split, err := NewCurve([]Segment{
		{},
		{X: 2, Slope: 10},
		{X: 4, Value: Finite(20), Y: Finite(20), Slope: 10},
	})
	require.NoError(t, err)
	assert.False(t, split.Equal(RateLatency(10, 2)))
	assert.True(t, split.ApproxEqual(RateLatency(10, 2)))
	assert.False(t, split.ApproxEqual(RateLatency(10, 3)))
	assert.True(t, normalize(split.segs).Equal(RateLatency(10, 2)))
}

func TestCurveSerialization(t *testing.T) {
	for name, c := range map[string]Curve{
		"token bucket": TokenBucket(5, 3),
		"delay":        BurstDelay(2),
		"generic":      twoRate(t),
	} {
		t.Run(name, func(t *testing.T) {
			ys, err := yaml.Marshal(c)
			require.NoError(t, err)
			var fromYAML Curve
			require.NoError(t, yaml.Unmarshal(ys, &fromYAML))
			assert.True(t, c.Equal(fromYAML), "yaml:\n%s", ys)

			js, err := json.Marshal(c)
			require.NoError(t, err)
			var fromJSON Curve
			require.NoError(t, json.Unmarshal(js, &fromJSON))
			assert.True(t, c.Equal(fromJSON), "json: %s", js)
		})
	}

	var bad Curve
	assert.Error(t, yaml.Unmarshal([]byte("- {x: 1, value: 0, y: 0, slope: 1}\n"), &bad))
}
