package dnc

// bound.go turns an arrival curve and a service curve into scalar bounds.

import (
	"math"
)

// HorizontalDeviation returns the delay bound
// sup_{x>=0} inf{tau >= 0 : alpha(x) <= beta(x+tau)}. It never fails: when
// no finite tau exists for some x the result is +inf.
func HorizontalDeviation(alpha, beta Curve) Num {
	if !alpha.Defined() || !beta.Defined() {
		return PosInf()
	}
	aInf, bInf := alpha.ultimateValue().IsPosInf(), beta.ultimateValue().IsPosInf()
	switch {
	case aInf && !bInf:
		return PosInf()
	case !aInf && !bInf && alpha.UltimateSlope() > beta.UltimateSlope() && !approxEq(alpha.UltimateSlope(), beta.UltimateSlope()):
		return PosInf()
	}

	supAlpha := math.Inf(1)
	if !aInf && alpha.UltimateSlope() == 0 {
		supAlpha = alpha.ultimateValue().Float()
	}

	// Between these levels both pseudo-inverses are linear, so the distance
	// peaks at one of them or just above one.
	levels := append(curveLevels(alpha), curveLevels(beta)...)
	hd := 0.0
	for _, y := range levels {
		if y <= supAlpha || approxEq(y, supAlpha) {
			xa, xb := lowerInverse(alpha, y), lowerInverse(beta, y)
			if !math.IsInf(xa, 1) {
				if math.IsInf(xb, 1) {
					return PosInf()
				}
				hd = math.Max(hd, xb-xa)
			}
		}
		if y < supAlpha && !approxEq(y, supAlpha) {
			xa, xb := upperInverse(alpha, y), upperInverse(beta, y)
			if !math.IsInf(xa, 1) {
				if math.IsInf(xb, 1) {
					return PosInf()
				}
				hd = math.Max(hd, xb-xa)
			}
		}
	}
	return Finite(roundFloat(hd, rdigits))
}

// curveLevels lists the finite values a curve takes or approaches at its
// breakpoints.
func curveLevels(c Curve) []float64 {
	levels := make([]float64, 0, 3*len(c.segs))
	add := func(v Num) {
		if v.IsFinite() {
			levels = append(levels, v.Float())
		}
	}
	for i, s := range c.segs {
		add(s.Value)
		add(s.Y)
		if end := c.end(i); !math.IsInf(end, 1) {
			add(s.at(end))
		}
	}
	return levels
}

// lowerInverse is inf{x >= 0 : c(x) >= y}, +Inf if c never gets there.
func lowerInverse(c Curve, y float64) float64 {
	geq := func(v Num) bool {
		f := v.Float()
		return f >= y || (v.IsFinite() && approxEq(f, y))
	}
	for i, s := range c.segs {
		if geq(s.Value) || geq(s.Y) {
			return s.X
		}
		if s.Y.IsFinite() && s.Slope > 0 {
			if x := s.X + (y-s.Y.Float())/s.Slope; x < c.end(i) {
				return x
			}
		}
	}
	return math.Inf(1)
}

// upperInverse is inf{x >= 0 : c(x) > y}, the right limit of lowerInverse.
func upperInverse(c Curve, y float64) float64 {
	gt := func(v Num) bool {
		f := v.Float()
		return f > y && !(v.IsFinite() && approxEq(f, y))
	}
	for i, s := range c.segs {
		if gt(s.Value) || gt(s.Y) {
			return s.X
		}
		if s.Y.IsFinite() && s.Slope > 0 {
			if x := s.X + (y-s.Y.Float())/s.Slope; x < c.end(i) {
				return math.Max(x, s.X)
			}
		}
	}
	return math.Inf(1)
}

// VerticalDeviation returns the backlog bound sup_{x>=0} alpha(x) - beta(x),
// +inf when alpha outgrows beta.
func VerticalDeviation(alpha, beta Curve) (Num, error) {
	segs, err := combine(alpha, beta, Num.Sub, -1)
	if err != nil {
		return Num{}, err
	}
	last := segs[len(segs)-1]
	if last.Y.IsPosInf() || (last.Y.IsFinite() && last.Slope > 0 && !approxEq(last.Slope, 0)) {
		return PosInf(), nil
	}
	m := Num{}
	for i, s := range segs {
		m = m.Max(s.Value).Max(s.Y)
		if i+1 < len(segs) {
			m = m.Max(s.at(segs[i+1].X))
		}
	}
	return roundNum(m), nil
}

// BusyPeriod returns sup{x >= 0 : alpha(x) > beta(x)}, the longest time a
// server with service beta can stay backlogged by traffic bounded by alpha.
// Under arbitrary multiplexing it bounds the delay of any bit. It is 0 when
// beta never falls behind alpha and +inf when it does so for ever.
func BusyPeriod(alpha, beta Curve) (Num, error) {
	segs, err := combine(alpha, beta, Num.Sub, -1)
	if err != nil {
		return Num{}, err
	}
	positive := func(v Num) bool {
		return v.IsPosInf() || (v.IsFinite() && v.Float() > 0 && !approxEq(v.Float(), 0))
	}
	for i := len(segs) - 1; i >= 0; i-- {
		s := segs[i]
		if i == len(segs)-1 {
			if positive(s.Y) {
				if !s.Y.IsFinite() || s.Slope >= 0 {
					return PosInf(), nil
				}
				return Finite(roundFloat(s.X+s.Y.Float()/-s.Slope, rdigits)), nil
			}
		} else {
			end := segs[i+1].X
			if positive(s.at(end)) {
				return Finite(end), nil
			}
			if positive(s.Y) {
				return Finite(roundFloat(s.X+s.Y.Float()/-s.Slope, rdigits)), nil
			}
		}
		if positive(s.Value) {
			return Finite(s.X), nil
		}
	}
	return Num{}, nil
}
