package dnc

// minplus.go implements the min-plus operators on curves. Each operator first
// matches the shapes of its operands against the canonical forms that have a
// closed form and only falls back to the generic piecewise merge when no form
// applies.

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

// Convolve returns the min-plus convolution (f⊗g)(x) = inf_{0<=t<=x} f(t) + g(x-t).
func Convolve(f, g Curve) (Curve, error) {
	if !f.Defined() || !g.Defined() {
		return Curve{}, fmt.Errorf("%w: convolving an empty curve", ErrInvalidCurveShape)
	}
	fs, gs := f.Shape(), g.Shape()
	switch {
	case gs.Kind == ShapeBurstDelay:
		return ShiftRight(f, gs.Latency), nil
	case fs.Kind == ShapeBurstDelay:
		return ShiftRight(g, fs.Latency), nil
	}
	if fr, ft, ok := f.asRateLatency(); ok {
		if gr, gt, ok := g.asRateLatency(); ok {
			return RateLatency(math.Min(fr, gr), ft+gt), nil
		}
	}
	if f.IsAlmostConcave() && g.IsAlmostConcave() {
		return Min(f, g), nil
	}
	return convolveGeneric(f, g)
}

// ConvolveWith is Convolve with an explicit algorithm choice. The
// rate-latency variant fails with ErrUnsupportedVariant unless both curves
// are rate-latency curves.
func ConvolveWith(f, g Curve, variant ConvolutionVariant) (Curve, error) {
	if variant != ConvolveRateLatency {
		return Convolve(f, g)
	}
	fr, ft, fok := f.asRateLatency()
	gr, gt, gok := g.asRateLatency()
	if !fok || !gok {
		return Curve{}, fmt.Errorf("%w: %s needs two rate-latency curves, got %s and %s",
			ErrUnsupportedVariant, variant, f.Shape().Kind, g.Shape().Kind)
	}
	return RateLatency(math.Min(fr, gr), ft+gt), nil
}

// ConvolveAll convolves the curves in order. The convolution of no curve is
// the neutral element BurstDelay(0).
func ConvolveAll(cs []Curve) (Curve, error) {
	acc := BurstDelay(0)
	for _, c := range cs {
		var err error
		if acc, err = Convolve(acc, c); err != nil {
			return Curve{}, err
		}
	}
	return acc, nil
}

func convolveGeneric(f, g Curve) (Curve, error) {
	fp, gp := f.pieces(), g.pieces()
	ps := make([]piece, 0, len(fp)*len(gp)*2)
	for _, a := range fp {
		for _, b := range gp {
			var err error
			if ps, err = appendConvolved(ps, a, b); err != nil {
				return Curve{}, err
			}
		}
	}
	return envelope(ps, false), nil
}

// appendConvolved adds the pieces of a⊗b. Pieces cut from curves are anchored
// at their lower end, which is what the open-open case relies on.
func appendConvolved(ps []piece, a, b piece) ([]piece, error) {
	base := a.ay.Add(b.ay)
	if err := base.Err(); err != nil {
		return ps, fmt.Errorf("%w: convolving %s with %s", err, a.ay, b.ay)
	}
	lo, hi := a.lo+b.lo, a.hi+b.hi
	switch {
	case a.isPoint() && b.isPoint():
		return append(ps, pointPiece(lo, base)), nil
	case a.isPoint():
		return append(ps, piece{lo: lo, hi: hi, ax: lo, ay: base, slope: b.slope}), nil
	case b.isPoint():
		return append(ps, piece{lo: lo, hi: hi, ax: lo, ay: base, slope: a.slope}), nil
	}
	if !base.IsFinite() {
		return append(ps, piece{lo: lo, hi: hi, ax: lo, ay: base}), nil
	}
	// spend the cheaper slope first
	first, second := a, b
	if b.slope < a.slope {
		first, second = b, a
	}
	span := first.hi - first.lo
	if math.IsInf(span, 1) || first.slope == second.slope {
		return append(ps, piece{lo: lo, hi: hi, ax: lo, ay: base, slope: first.slope}), nil
	}
	kink := lo + span
	kv := Finite(base.Float() + first.slope*span)
	return append(ps,
		piece{lo: lo, hi: kink, ax: lo, ay: base, slope: first.slope},
		pointPiece(kink, kv),
		piece{lo: kink, hi: hi, ax: kink, ay: kv, slope: second.slope},
	), nil
}

// Deconvolve returns the min-plus deconvolution (f⊘g)(x) = sup_{t>=0} f(x+t) - g(t).
// When f(0) = 0 the result is read as an arrival curve and is also 0 at the
// origin, since no traffic fits in an empty interval.
func Deconvolve(f, g Curve) (Curve, error) {
	if !f.Defined() || !g.Defined() {
		return Curve{}, fmt.Errorf("%w: deconvolving an empty curve", ErrInvalidCurveShape)
	}
	var res Curve
	gs := g.Shape()
	if gs.Kind == ShapeBurstDelay {
		res = ShiftLeft(f, gs.Latency)
		return arrivalOrigin(f, res), nil
	}
	gr, gt, gRL := g.asRateLatency()
	if b, r, ok := f.asTokenBucket(); ok && gRL {
		return deconvolveTokenBucketRateLatency(b, r, gr, gt), nil
	}
	if gRL && f.IsAlmostConcave() {
		return arrivalOrigin(f, deconvolveConcaveRateLatency(f, gr, gt)), nil
	}
	res, err := deconvolveGeneric(f, g)
	if err != nil {
		return Curve{}, err
	}
	return arrivalOrigin(f, res), nil
}

// DeconvolveWith is Deconvolve with an explicit algorithm choice. The
// token-bucket/rate-latency variant fails with ErrUnsupportedVariant unless f
// is a token bucket and g a rate-latency curve.
func DeconvolveWith(f, g Curve, variant DeconvolutionVariant) (Curve, error) {
	if variant != DeconvolveTokenBucketRateLatency {
		return Deconvolve(f, g)
	}
	b, r, fok := f.asTokenBucket()
	gr, gt, gok := g.asRateLatency()
	if !fok || !gok {
		return Curve{}, fmt.Errorf("%w: %s needs a token bucket and a rate-latency curve, got %s and %s",
			ErrUnsupportedVariant, variant, f.Shape().Kind, g.Shape().Kind)
	}
	return deconvolveTokenBucketRateLatency(b, r, gr, gt), nil
}

// deconvolveTokenBucketRateLatency is TB(b,r) ⊘ RL(R,T) = TB(b+rT, r), or
// unbounded output when the bucket outpaces the server.
func deconvolveTokenBucketRateLatency(burst, rate, srvRate, latency float64) Curve {
	if rate > srvRate && !approxEq(rate, srvRate) {
		return BurstDelay(0)
	}
	return TokenBucket(burst+rate*latency, rate)
}

// deconvolveConcaveRateLatency handles an almost concave f against RL(R,T):
// f⊘λ_R follows f from the first breakpoint where f grows no faster than R
// and the line of slope R through that point before it, and deconvolving by
// the latency shifts the result left.
func deconvolveConcaveRateLatency(f Curve, rate, latency float64) Curve {
	i := slices.IndexFunc(f.segs, func(s Segment) bool {
		return s.Slope <= rate || approxEq(s.Slope, rate)
	})
	if i < 0 {
		return BurstDelay(0)
	}
	var h []Segment
	if i == 0 {
		h = slices.Clone(f.segs)
		h[0].Value = h[0].Y
	} else {
		x0, v0 := f.segs[i].X, f.segs[i].Value.Float()
		start := Finite(v0 - rate*x0)
		h = append([]Segment{{Value: start, Y: start, Slope: rate}}, f.segs[i:]...)
	}
	return ShiftLeft(curveOf(h...), latency)
}

func deconvolveGeneric(f, g Curve) (Curve, error) {
	fp, gp := f.pieces(), g.pieces()
	ps := make([]piece, 0, len(fp)*len(gp)*2)
	for _, a := range fp {
		for _, b := range gp {
			var err error
			if ps, err = appendDeconvolved(ps, a, b); err != nil {
				return Curve{}, err
			}
		}
	}
	return envelope(ps, true), nil
}

// appendDeconvolved adds the pieces of a⊘b over x = v - t, where v ranges
// over a and t over b. Where g is +inf the term cannot raise the sup, so
// such pairs are skipped.
func appendDeconvolved(ps []piece, a, b piece) ([]piece, error) {
	if b.ay.IsPosInf() {
		return ps, nil
	}
	base := a.ay.Sub(b.ay)
	if err := base.Err(); err != nil {
		return ps, fmt.Errorf("%w: deconvolving %s by %s", err, a.ay, b.ay)
	}
	lo, hi := a.lo-b.hi, a.hi-b.lo
	switch {
	case a.isPoint() && b.isPoint():
		return append(ps, pointPiece(lo, base)), nil
	case a.isPoint():
		return append(ps, piece{lo: lo, hi: hi, ax: hi, ay: base, slope: b.slope}), nil
	case b.isPoint():
		return append(ps, piece{lo: lo, hi: hi, ax: lo, ay: base, slope: a.slope}), nil
	}
	if !base.IsFinite() {
		return append(ps, piece{lo: lo, hi: hi, ax: 0, ay: base}), nil
	}

	a1, b1, s1 := a.lo, a.hi, a.slope
	a2, b2, s2 := b.lo, b.hi, b.slope
	y := base.Float()
	switch {
	case s1 == s2:
		return append(ps, piece{lo: lo, hi: hi, ax: a1 - a2, ay: base, slope: s1}), nil
	case s1 < s2:
		// sup at the smallest admissible t
		kink := a1 - a2
		return append(ps,
			piece{lo: lo, hi: kink, ax: kink, ay: base, slope: s2},
			pointPiece(kink, base),
			piece{lo: kink, hi: hi, ax: kink, ay: base, slope: s1},
		), nil
	}
	// s1 > s2: sup at the largest admissible t
	l1, l2 := b1-a1, b2-a2
	finite1, finite2 := !math.IsInf(l1, 1), !math.IsInf(l2, 1)
	if !finite1 && !finite2 {
		return append(ps, piece{lo: lo, hi: hi, ay: PosInf()}), nil
	}
	kink := b1 - b2
	if finite2 {
		ps = append(ps, piece{lo: lo, hi: kink, ax: lo, ay: Finite(y - s2*l2), slope: s1})
	}
	if finite1 {
		ps = append(ps, piece{lo: kink, hi: hi, ax: hi, ay: Finite(y + s1*l1), slope: s2})
	}
	if finite1 && finite2 {
		ps = append(ps, pointPiece(kink, Finite(y+s1*l1-s2*l2)))
	}
	return ps, nil
}

// arrivalOrigin pins res to 0 at the origin when f is 0 there.
func arrivalOrigin(f, res Curve) Curve {
	if !f.segs[0].Value.Equal(Num{}) {
		return res
	}
	segs := slices.Clone(res.segs)
	segs[0].Value = Num{}.Min(segs[0].Y)
	return normalize(segs)
}

// ShiftRight returns f⊗δ_d: f(0) up to d, then f delayed by d.
func ShiftRight(f Curve, d float64) Curve {
	if d <= 0 {
		return f
	}
	v0 := f.segs[0].Value
	segs := make([]Segment, 0, len(f.segs)+1)
	segs = append(segs, Segment{Value: v0, Y: v0})
	for _, s := range f.segs {
		s.X += d
		segs = append(segs, s)
	}
	return normalize(segs)
}

// ShiftLeft returns x -> f(x+d), which is f⊘δ_d.
func ShiftLeft(f Curve, d float64) Curve {
	if d <= 0 {
		return f
	}
	i := f.segmentAt(d)
	segs := make([]Segment, 0, len(f.segs)-i)
	segs = append(segs, Segment{Value: f.Eval(d), Y: f.RightLimit(d), Slope: f.segs[i].Slope})
	for _, s := range f.segs[i+1:] {
		s.X -= d
		segs = append(segs, s)
	}
	return normalize(segs)
}

// Min is the pointwise minimum of f and g.
func Min(f, g Curve) Curve {
	return envelope(append(f.pieces(), g.pieces()...), false)
}

// Max is the pointwise maximum of f and g.
func Max(f, g Curve) Curve {
	return envelope(append(f.pieces(), g.pieces()...), true)
}

// MinAll reduces a candidate set to its pointwise minimum, the tightest
// bound the set holds.
func MinAll(cs []Curve) (Curve, error) {
	if len(cs) == 0 {
		return Curve{}, ErrEmptyCandidateSet
	}
	acc := cs[0]
	for _, c := range cs[1:] {
		acc = Min(acc, c)
	}
	return acc, nil
}

// Add is the pointwise sum f+g.
func Add(f, g Curve) (Curve, error) {
	segs, err := combine(f, g, Num.Add, 1)
	if err != nil {
		return Curve{}, err
	}
	return normalize(segs), nil
}

// AddAll sums the curves. The sum of no curve is ZeroCurve.
func AddAll(cs []Curve) (Curve, error) {
	acc := ZeroCurve()
	for _, c := range cs {
		var err error
		if acc, err = Add(acc, c); err != nil {
			return Curve{}, err
		}
	}
	return acc, nil
}

// Sub returns the non-decreasing closure of f-g, x -> sup_{0<=s<=x} f(s)-g(s),
// the smallest non-decreasing curve above the plain difference.
func Sub(f, g Curve) (Curve, error) {
	segs, err := combine(f, g, Num.Sub, -1)
	if err != nil {
		return Curve{}, err
	}
	return upperClosure(segs), nil
}

// combine refines f and g to their common breakpoints and joins them
// segment by segment. The slope of the result is f's plus sign times g's.
// The returned segments may decrease.
func combine(f, g Curve, op func(Num, Num) Num, sign float64) ([]Segment, error) {
	if !f.Defined() || !g.Defined() {
		return nil, fmt.Errorf("%w: combining an empty curve", ErrInvalidCurveShape)
	}
	xs := mergeBreakpoints(f.breakpoints(), g.breakpoints())
	segs := make([]Segment, 0, len(xs))
	for _, x := range xs {
		v := op(f.Eval(x), g.Eval(x))
		y := op(f.RightLimit(x), g.RightLimit(x))
		if v.IsUndefined() || y.IsUndefined() {
			return nil, fmt.Errorf("%w: at x=%g", ErrUndefinedArithmetic, x)
		}
		slope := f.segs[f.segmentAt(x)].Slope + sign*g.segs[g.segmentAt(x)].Slope
		if !y.IsFinite() {
			slope = 0
		}
		segs = append(segs, Segment{X: x, Value: v, Y: y, Slope: slope})
	}
	return segs, nil
}

// upperClosure returns x -> sup_{s<=x} h(s) for h given by segs.
func upperClosure(segs []Segment) Curve {
	out := make([]Segment, 0, len(segs)+1)
	m := NegInf()
	for i, s := range segs {
		end := math.Inf(1)
		if i+1 < len(segs) {
			end = segs[i+1].X
		}
		m = m.Max(s.Value)
		at := m
		switch {
		case !s.Y.IsFinite() || s.Slope <= 0:
			m = m.Max(s.Y)
			out = append(out, Segment{X: s.X, Value: at, Y: m})
			continue
		case s.Y.cmp(m) >= 0:
			out = append(out, Segment{X: s.X, Value: at, Y: s.Y, Slope: s.Slope})
		case !m.IsFinite():
			out = append(out, Segment{X: s.X, Value: at, Y: m})
			continue
		default:
			out = append(out, Segment{X: s.X, Value: at, Y: m})
			if xc := s.X + (m.Float()-s.Y.Float())/s.Slope; xc < end {
				out = append(out, Segment{X: xc, Value: m, Y: m, Slope: s.Slope})
			}
		}
		if !math.IsInf(end, 1) {
			m = m.Max(s.at(end))
		}
	}
	return normalize(out)
}

// lowerClosure returns x -> inf_{s>=x} h(s) for h given by segs.
func lowerClosure(segs []Segment) Curve {
	parts := make([][]Segment, len(segs))
	m := PosInf()
	for i := len(segs) - 1; i >= 0; i-- {
		s := segs[i]
		end := math.Inf(1)
		if i+1 < len(segs) {
			end = segs[i+1].X
		}
		var p []Segment
		switch {
		case !s.Y.IsFinite() || s.Slope == 0:
			p = []Segment{{X: s.X, Y: s.Y.Min(m)}}
		case s.Slope < 0:
			tail := NegInf()
			if !math.IsInf(end, 1) {
				tail = s.at(end)
			}
			p = []Segment{{X: s.X, Y: tail.Min(m)}}
		case s.Y.cmp(m) >= 0:
			p = []Segment{{X: s.X, Y: m}}
		case m.IsPosInf():
			p = []Segment{{X: s.X, Y: s.Y, Slope: s.Slope}}
		default:
			p = []Segment{{X: s.X, Y: s.Y, Slope: s.Slope}}
			if xc := s.X + (m.Float()-s.Y.Float())/s.Slope; xc < end {
				p = append(p, Segment{X: xc, Value: m, Y: m})
			}
		}
		p[0].Value = s.Value.Min(p[0].Y)
		m = p[0].Value
		parts[i] = p
	}
	out := make([]Segment, 0, len(segs)+1)
	for _, p := range parts {
		out = append(out, p...)
	}
	return normalize(out)
}
