package dnc

// curve.go holds the piecewise-linear curve representation shared by arrival
// curves, service curves and the gamma corrections, together with the
// canonical shapes the closed-form algorithms recognize.

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// A Segment describes a curve from its start X up to the start of the next
// segment. Value is the curve at X itself, Y is the right limit at X, and
// on the open interval that follows the curve is the line through (X, Y)
// with the given Slope. Keeping Value apart from Y lets a curve jump at a
// breakpoint, as a token bucket does at the origin.
type Segment struct {
	X     float64 `json:"x" yaml:"x"`
	Value Num     `json:"value" yaml:"value"`
	Y     Num     `json:"y" yaml:"y"`
	Slope float64 `json:"slope" yaml:"slope"`
}

// at returns the segment's line at x. A line through an infinite Y is
// constant.
func (s Segment) at(x float64) Num {
	if !s.Y.IsFinite() {
		return s.Y
	}
	return Finite(s.Y.Float() + s.Slope*(x-s.X))
}

// Curve is an immutable non-decreasing piecewise-linear function on x >= 0.
// Its first segment starts at 0 and the last one extends to +inf.
type Curve struct {
	segs []Segment
}

// NewCurve copies segs into a Curve and checks the curve invariants.
func NewCurve(segs []Segment) (Curve, error) {
	c := Curve{segs: slices.Clone(segs)}
	if err := c.Validate(); err != nil {
		return Curve{}, err
	}
	return c, nil
}

func curveOf(segs ...Segment) Curve {
	return Curve{segs: segs}
}

// Segments returns a copy of the curve's segments.
func (c Curve) Segments() []Segment {
	return slices.Clone(c.segs)
}

// Len is the number of segments.
func (c Curve) Len() int {
	return len(c.segs)
}

// Defined reports whether c holds any segment. The zero Curve is not defined
// and marks an absent optional curve.
func (c Curve) Defined() bool {
	return len(c.segs) > 0
}

// end returns where segment i stops.
func (c Curve) end(i int) float64 {
	if i+1 < len(c.segs) {
		return c.segs[i+1].X
	}
	return math.Inf(1)
}

// segmentAt returns the index of the segment whose start is the largest one
// not beyond x.
func (c Curve) segmentAt(x float64) int {
	idx, found := slices.BinarySearchFunc(c.segs, x, func(s Segment, t float64) int {
		switch {
		case s.X < t:
			return -1
		case s.X > t:
			return 1
		}
		return 0
	})
	if found {
		return idx
	}
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// Eval returns c(x). Negative x is outside the domain and reads as c(0).
func (c Curve) Eval(x float64) Num {
	if !c.Defined() {
		return Undefined()
	}
	if x <= 0 {
		return c.segs[0].Value
	}
	i := c.segmentAt(x)
	if c.segs[i].X == x {
		return c.segs[i].Value
	}
	return c.segs[i].at(x)
}

// RightLimit returns c(x+).
func (c Curve) RightLimit(x float64) Num {
	if !c.Defined() {
		return Undefined()
	}
	if x < 0 {
		x = 0
	}
	i := c.segmentAt(x)
	return c.segs[i].at(x)
}

// LeftLimit returns c(x-) for x > 0 and c(0) at the origin.
func (c Curve) LeftLimit(x float64) Num {
	if !c.Defined() {
		return Undefined()
	}
	if x <= 0 {
		return c.segs[0].Value
	}
	i := c.segmentAt(x)
	if c.segs[i].X == x {
		i--
	}
	return c.segs[i].at(x)
}

// UltimateSlope is the slope of the last segment.
func (c Curve) UltimateSlope() float64 {
	return c.segs[len(c.segs)-1].Slope
}

// ultimateValue is the right limit of the last segment, +inf for curves
// that become infinite.
func (c Curve) ultimateValue() Num {
	return c.segs[len(c.segs)-1].Y
}

// breakpoints lists the segment starts.
func (c Curve) breakpoints() []float64 {
	xs := make([]float64, len(c.segs))
	for i, s := range c.segs {
		xs[i] = s.X
	}
	return xs
}

// Validate checks the invariants every curve must keep.
func (c Curve) Validate() error {
	if !c.Defined() {
		return fmt.Errorf("%w: no segments", ErrInvalidCurveShape)
	}
	if c.segs[0].X != 0 {
		return fmt.Errorf("%w: first segment starts at %g", ErrInvalidCurveShape, c.segs[0].X)
	}
	for i, s := range c.segs {
		if math.IsNaN(s.X) || math.IsInf(s.X, 0) || s.X < 0 {
			return fmt.Errorf("%w: segment %d starts at %g", ErrInvalidCurveShape, i, s.X)
		}
		if s.Value.IsUndefined() || s.Y.IsUndefined() {
			return fmt.Errorf("%w: segment %d: %w", ErrInvalidCurveShape, i, ErrUndefinedArithmetic)
		}
		if math.IsNaN(s.Slope) || math.IsInf(s.Slope, 0) || s.Slope < 0 {
			return fmt.Errorf("%w: segment %d has slope %g", ErrInvalidCurveShape, i, s.Slope)
		}
		if numLess(s.Y, s.Value) {
			return fmt.Errorf("%w: segment %d decreases at %g", ErrInvalidCurveShape, i, s.X)
		}
		if i == 0 {
			continue
		}
		if s.X <= c.segs[i-1].X {
			return fmt.Errorf("%w: segment %d does not start after segment %d", ErrInvalidCurveShape, i, i-1)
		}
		if numLess(s.Value, c.segs[i-1].at(s.X)) {
			return fmt.Errorf("%w: curve decreases at %g", ErrInvalidCurveShape, s.X)
		}
	}
	return nil
}

// ValidateArrival checks c is an arrival curve: a curve with c(0) = 0 and
// no negative value.
func (c Curve) ValidateArrival() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.segs[0].Value.Equal(Num{}) {
		return fmt.Errorf("%w: arrival curve has value %s at the origin", ErrInvalidCurveShape, c.segs[0].Value)
	}
	if numLess(c.segs[0].Y, Num{}) {
		return fmt.Errorf("%w: arrival curve is negative", ErrInvalidCurveShape)
	}
	return nil
}

// ValidateService checks c is a service curve: c(0) is 0 or -inf and the
// curve is non-negative away from the origin.
func (c Curve) ValidateService() error {
	if err := c.Validate(); err != nil {
		return err
	}
	v := c.segs[0].Value
	if !v.Equal(Num{}) && !v.IsNegInf() {
		return fmt.Errorf("%w: service curve has value %s at the origin", ErrInvalidCurveShape, v)
	}
	if numLess(c.segs[0].Y, Num{}) {
		return fmt.Errorf("%w: service curve is negative", ErrInvalidCurveShape)
	}
	return nil
}

// numLess is a < b beyond the comparison tolerance. Undefined compares false.
func numLess(a, b Num) bool {
	if a.IsUndefined() || b.IsUndefined() {
		return false
	}
	if a.IsFinite() && b.IsFinite() {
		return a.v < b.v && !approxEq(a.v, b.v)
	}
	return a.cmp(b) < 0
}

// Equal reports segment-by-segment identity.
func (c Curve) Equal(o Curve) bool {
	return slices.EqualFunc(c.segs, o.segs, func(a, b Segment) bool {
		return a.X == b.X && a.Value.Equal(b.Value) && a.Y.Equal(b.Y) && a.Slope == b.Slope
	})
}

// ApproxEqual reports whether c and o describe the same function, up to the
// comparison tolerance, however each one is segmented.
func (c Curve) ApproxEqual(o Curve) bool {
	if !c.Defined() || !o.Defined() {
		return c.Defined() == o.Defined()
	}
	xs := mergeBreakpoints(c.breakpoints(), o.breakpoints())
	for _, x := range xs {
		if !c.Eval(x).ApproxEqual(o.Eval(x)) ||
			!c.RightLimit(x).ApproxEqual(o.RightLimit(x)) ||
			!c.LeftLimit(x).ApproxEqual(o.LeftLimit(x)) {
			return false
		}
	}
	last := xs[len(xs)-1] + 1
	return c.Eval(last).ApproxEqual(o.Eval(last)) &&
		(c.ultimateValue().IsInf() || approxEq(c.UltimateSlope(), o.UltimateSlope()))
}

// mergeBreakpoints returns the sorted union of breakpoint lists.
func mergeBreakpoints(lists ...[]float64) []float64 {
	var xs []float64
	for _, l := range lists {
		xs = append(xs, l...)
	}
	slices.Sort(xs)
	return slices.CompactFunc(xs, approxEq)
}

func (c Curve) String() string {
	parts := make([]string, len(c.segs))
	for i, s := range c.segs {
		parts[i] = fmt.Sprintf("(%g: %s|%s %g)", s.X, s.Value, s.Y, s.Slope)
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// MarshalYAML writes the curve as its list of segments.
func (c Curve) MarshalYAML() (interface{}, error) {
	return c.segs, nil
}

// UnmarshalYAML reads a segment list and validates it.
func (c *Curve) UnmarshalYAML(node *yaml.Node) error {
	var segs []Segment
	if err := node.Decode(&segs); err != nil {
		return err
	}
	nc, err := NewCurve(segs)
	if err != nil {
		return err
	}
	*c = nc
	return nil
}

func (c Curve) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.segs)
}

func (c *Curve) UnmarshalJSON(b []byte) error {
	var segs []Segment
	if err := json.Unmarshal(b, &segs); err != nil {
		return err
	}
	nc, err := NewCurve(segs)
	if err != nil {
		return err
	}
	*c = nc
	return nil
}

// ZeroCurve is the curve that is 0 everywhere: no service, or no traffic.
func ZeroCurve() Curve {
	return curveOf(Segment{})
}

// TokenBucket returns the arrival curve that is 0 at the origin and
// burst+rate*x after it.
func TokenBucket(burst, rate float64) Curve {
	return curveOf(Segment{Y: Finite(burst), Slope: rate})
}

// RateLatency returns the service curve rate*max(0, x-latency).
func RateLatency(rate, latency float64) Curve {
	if rate == 0 {
		return ZeroCurve()
	}
	if latency <= 0 {
		return curveOf(Segment{Slope: rate})
	}
	return curveOf(Segment{}, Segment{X: latency, Slope: rate})
}

// BurstDelay returns the pure delay curve: 0 up to and including latency,
// +inf after it. BurstDelay(0) is the neutral element of convolution.
func BurstDelay(latency float64) Curve {
	if latency <= 0 {
		return curveOf(Segment{Y: PosInf()})
	}
	return curveOf(Segment{}, Segment{X: latency, Y: PosInf()})
}

// ShapeKind tags the canonical curve shapes the closed-form algorithms know.
type ShapeKind int

const (
	ShapeGeneric ShapeKind = iota
	ShapeZero
	ShapeBurstDelay
	ShapeRateLatency
	ShapeTokenBucket
)

var shapeKindToStr = map[ShapeKind]string{
	ShapeGeneric:     "generic",
	ShapeZero:        "zero",
	ShapeBurstDelay:  "burst-delay",
	ShapeRateLatency: "rate-latency",
	ShapeTokenBucket: "token-bucket",
}

var shapeKindFromStr = map[string]ShapeKind{
	"generic":      ShapeGeneric,
	"zero":         ShapeZero,
	"burst-delay":  ShapeBurstDelay,
	"rate-latency": ShapeRateLatency,
	"token-bucket": ShapeTokenBucket,
}

func (k ShapeKind) String() string {
	return shapeKindToStr[k]
}

// Shape is the recognized shape of a curve and its parameters. Parameters
// that do not apply to the kind are zero.
type Shape struct {
	Kind    ShapeKind
	Rate    float64
	Burst   float64
	Latency float64
}

// Shape classifies c. A rate-latency curve without latency is reported as
// ShapeRateLatency even though it is also a token bucket without burst.
func (c Curve) Shape() Shape {
	switch len(c.segs) {
	case 1:
		s := c.segs[0]
		if !s.Value.Equal(Num{}) {
			return Shape{}
		}
		switch {
		case s.Y.IsPosInf():
			return Shape{Kind: ShapeBurstDelay}
		case !s.Y.IsFinite() || s.Y.Float() < 0:
			return Shape{}
		case s.Y.Float() == 0 && s.Slope == 0:
			return Shape{Kind: ShapeZero}
		case s.Y.Float() == 0:
			return Shape{Kind: ShapeRateLatency, Rate: s.Slope}
		}
		return Shape{Kind: ShapeTokenBucket, Burst: s.Y.Float(), Rate: s.Slope}
	case 2:
		s0, s1 := c.segs[0], c.segs[1]
		if !s0.Value.Equal(Num{}) || !s0.Y.Equal(Num{}) || s0.Slope != 0 || !s1.Value.Equal(Num{}) {
			return Shape{}
		}
		switch {
		case s1.Y.IsPosInf():
			return Shape{Kind: ShapeBurstDelay, Latency: s1.X}
		case s1.Y.Equal(Num{}) && s1.Slope > 0:
			return Shape{Kind: ShapeRateLatency, Rate: s1.Slope, Latency: s1.X}
		}
	}
	return Shape{}
}

// asTokenBucket returns the burst and rate of c if c is a token bucket,
// counting the zero curve and latency-free rate-latency curves.
func (c Curve) asTokenBucket() (burst, rate float64, ok bool) {
	sh := c.Shape()
	switch sh.Kind {
	case ShapeTokenBucket:
		return sh.Burst, sh.Rate, true
	case ShapeRateLatency:
		return 0, sh.Rate, sh.Latency == 0
	case ShapeZero:
		return 0, 0, true
	}
	return 0, 0, false
}

// asRateLatency returns the rate and latency of c if c is a rate-latency
// curve, counting the zero curve as rate 0.
func (c Curve) asRateLatency() (rate, latency float64, ok bool) {
	sh := c.Shape()
	switch sh.Kind {
	case ShapeRateLatency:
		return sh.Rate, sh.Latency, true
	case ShapeZero:
		return 0, 0, true
	}
	return 0, 0, false
}

// isFiniteValued reports whether every value and limit of c is finite.
func (c Curve) isFiniteValued() bool {
	for _, s := range c.segs {
		if !s.Value.IsFinite() || !s.Y.IsFinite() {
			return false
		}
	}
	return true
}

// continuousAfterOrigin reports whether c has no jump except possibly at 0.
func (c Curve) continuousAfterOrigin() bool {
	for i := 1; i < len(c.segs); i++ {
		s := c.segs[i]
		if !s.Value.ApproxEqual(s.Y) || !s.Value.ApproxEqual(c.segs[i-1].at(s.X)) {
			return false
		}
	}
	return true
}

// IsAlmostConcave reports whether c is finite, 0 at the origin, and concave
// on x > 0: continuous there with non-increasing slopes. Token buckets are
// almost concave.
func (c Curve) IsAlmostConcave() bool {
	if !c.Defined() || !c.isFiniteValued() || !c.segs[0].Value.Equal(Num{}) || !c.continuousAfterOrigin() {
		return false
	}
	for i := 1; i < len(c.segs); i++ {
		if c.segs[i].Slope > c.segs[i-1].Slope && !approxEq(c.segs[i].Slope, c.segs[i-1].Slope) {
			return false
		}
	}
	return true
}

// IsConcave is IsAlmostConcave without the jump at the origin.
func (c Curve) IsConcave() bool {
	return c.IsAlmostConcave() && c.segs[0].Y.ApproxEqual(c.segs[0].Value)
}

// IsConvex reports whether c is finite, continuous and has non-decreasing
// slopes. Rate-latency curves are convex.
func (c Curve) IsConvex() bool {
	if !c.Defined() || !c.isFiniteValued() || !c.segs[0].Y.ApproxEqual(c.segs[0].Value) || !c.continuousAfterOrigin() {
		return false
	}
	for i := 1; i < len(c.segs); i++ {
		if c.segs[i].Slope < c.segs[i-1].Slope && !approxEq(c.segs[i].Slope, c.segs[i-1].Slope) {
			return false
		}
	}
	return true
}

// hasNegInf reports whether c takes the value -inf anywhere.
func (c Curve) hasNegInf() bool {
	for _, s := range c.segs {
		if s.Value.IsNegInf() || s.Y.IsNegInf() {
			return true
		}
	}
	return false
}

// normalize rounds breakpoints, drops empty segments and merges neighbours
// that continue the same line.
func normalize(segs []Segment) Curve {
	out := make([]Segment, 0, len(segs))
	for _, s := range segs {
		s.X = roundFloat(s.X, rdigits)
		s.Value = roundNum(s.Value)
		s.Y = roundNum(s.Y)
		s.Slope = roundFloat(s.Slope, rdigits)
		if !s.Y.IsFinite() {
			s.Slope = 0
		}
		if n := len(out); n > 0 {
			prev := out[n-1]
			if s.X <= prev.X || approxEq(s.X, prev.X) {
				// a later segment starting at the same place only keeps the
				// earlier point value
				s.X = prev.X
				s.Value = prev.Value
				out[n-1] = s
				continue
			}
			cont := prev.at(s.X)
			if s.Value.ApproxEqual(cont) && s.Y.ApproxEqual(cont) && approxEq(s.Slope, prev.Slope) {
				continue
			}
		}
		out = append(out, s)
	}
	return Curve{segs: out}
}

func roundNum(a Num) Num {
	if !a.IsFinite() {
		return a
	}
	return Finite(roundFloat(a.v, rdigits))
}
