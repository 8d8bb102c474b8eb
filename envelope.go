package dnc

// envelope.go is the generic piecewise merge behind convolution,
// deconvolution, min and max. Every operand is cut into pieces, points and
// open linear stretches; an operation produces a bag of candidate pieces and
// the curve is the lower (inf) or upper (sup) envelope of that bag on x >= 0.

import (
	"math"

	"golang.org/x/exp/slices"
)

// piece is a partial linear function. When lo == hi it is the single point
// (lo, ay). Otherwise it is the line through (ax, ay) with the given slope,
// restricted to the open interval (lo, hi). lo may be negative and hi may be
// +Inf; only the part on x >= 0 ever reaches a curve.
type piece struct {
	lo, hi float64
	ax     float64
	ay     Num
	slope  float64
}

func pointPiece(x float64, v Num) piece {
	return piece{lo: x, hi: x, ax: x, ay: v}
}

func (p piece) isPoint() bool {
	return p.lo == p.hi
}

func (p piece) at(x float64) Num {
	if !p.ay.IsFinite() {
		return p.ay
	}
	return Finite(p.ay.Float() + p.slope*(x-p.ax))
}

// covers reports whether p is defined at breakpoint x.
func (p piece) covers(x float64) bool {
	if p.isPoint() {
		return approxEq(p.lo, x)
	}
	return p.lo < x && x < p.hi && !approxEq(p.lo, x) && !approxEq(p.hi, x)
}

// pieces cuts c into its points and open stretches.
func (c Curve) pieces() []piece {
	ps := make([]piece, 0, 2*len(c.segs))
	for i, s := range c.segs {
		ps = append(ps, pointPiece(s.X, s.Value))
		ps = append(ps, piece{lo: s.X, hi: c.end(i), ax: s.X, ay: s.Y, slope: s.Slope})
	}
	return ps
}

// envelope returns the lower envelope of ps on x >= 0, or the upper one when
// upper is set. Where nothing is defined the lower envelope is +inf and the
// upper one -inf, the values of an empty inf and an empty sup.
func envelope(ps []piece, upper bool) Curve {
	xs := []float64{0}
	for _, p := range ps {
		if p.lo >= 0 && !math.IsInf(p.lo, 0) {
			xs = append(xs, roundFloat(p.lo, rdigits))
		}
		if p.hi >= 0 && !math.IsInf(p.hi, 0) {
			xs = append(xs, roundFloat(p.hi, rdigits))
		}
	}
	slices.Sort(xs)
	xs = slices.CompactFunc(xs, approxEq)

	empty := PosInf()
	better := func(a, b Num) bool { return a.cmp(b) < 0 }
	if upper {
		empty = NegInf()
		better = func(a, b Num) bool { return a.cmp(b) > 0 }
	}

	segs := make([]Segment, 0, len(xs))
	for k, x := range xs {
		value := empty
		for _, p := range ps {
			if p.covers(x) {
				if v := p.at(x); better(v, value) {
					value = v
				}
			}
		}

		next := math.Inf(1)
		if k+1 < len(xs) {
			next = xs[k+1]
		}
		mid := x + 1
		if !math.IsInf(next, 1) {
			mid = x + (next-x)/2
		}
		active := make([]piece, 0)
		for _, p := range ps {
			if !p.isPoint() && p.lo < mid && p.hi > mid {
				active = append(active, p)
			}
		}

		lines := envelopeLines(active, x, next, upper, empty)
		lines[0].Value = value
		segs = append(segs, lines...)
	}
	return normalize(segs)
}

// envelopeLines walks the lower (or upper) envelope of the lines in active
// across (from, to) and returns one segment per line it uses. The Value of
// the first segment is left for the caller to fill in.
func envelopeLines(active []piece, from, to float64, upper bool, empty Num) []Segment {
	dominant, absorbed := NegInf(), PosInf()
	if upper {
		dominant, absorbed = PosInf(), NegInf()
	}
	lines := make([]piece, 0, len(active))
	for _, p := range active {
		switch {
		case p.ay.Equal(dominant):
			return []Segment{{X: from, Y: dominant}}
		case p.ay.Equal(absorbed):
			continue
		}
		lines = append(lines, p)
	}
	if len(lines) == 0 {
		return []Segment{{X: from, Y: empty}}
	}

	// beats reports whether line a should replace line b at x, valued va
	// and vb there.
	beats := func(va, vb float64, a, b piece) bool {
		if approxEq(va, vb) {
			if upper {
				return a.slope > b.slope
			}
			return a.slope < b.slope
		}
		if upper {
			return va > vb
		}
		return va < vb
	}

	cur := lines[0]
	for _, l := range lines[1:] {
		if beats(l.at(from).Float(), cur.at(from).Float(), l, cur) {
			cur = l
		}
	}

	x := from
	var out []Segment
	for {
		v := cur.at(x)
		out = append(out, Segment{X: x, Value: v, Y: v, Slope: cur.slope})

		cross := math.Inf(1)
		var nextLine piece
		for _, l := range lines {
			gaining := l.slope < cur.slope
			if upper {
				gaining = l.slope > cur.slope
			}
			if !gaining {
				continue
			}
			xc := x + (l.at(x).Float()-cur.at(x).Float())/(cur.slope-l.slope)
			if xc < cross || (xc == cross && beats(0, 0, l, nextLine)) {
				cross, nextLine = xc, l
			}
		}
		if math.IsInf(cross, 1) || cross >= to || approxEq(cross, to) {
			return out
		}
		if cross < x || approxEq(cross, x) {
			// already level with cur at x, take over right away
			cross = x
			out = out[:len(out)-1]
		}
		x, cur = cross, nextLine
	}
}
