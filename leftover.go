package dnc

// leftover.go derives the service left to a flow once cross traffic has been
// served, per server (arbitrary and FIFO multiplexing) and over a whole path
// at once (PMOO).

import (
	"fmt"
	"math"
)

// Leftover returns the service left at a server with service curve beta to a
// flow whose cross traffic is bounded by cross, under arbitrary multiplexing:
// max(0, sup_{s<=x} beta(s) - cross(s)).
func Leftover(beta, cross Curve) (Curve, error) {
	if rate, latency, ok := beta.asRateLatency(); ok {
		if burst, r, ok := cross.asTokenBucket(); ok {
			return leftoverRateLatency(rate, latency, burst, r), nil
		}
	}
	diff, err := Sub(beta, cross)
	if err != nil {
		return Curve{}, err
	}
	res := Max(diff, ZeroCurve())
	if beta.hasNegInf() {
		res = Min(res, beta)
	}
	return res, nil
}

// leftoverRateLatency is the closed form RL(R-r, (RT+b)/(R-r)).
func leftoverRateLatency(rate, latency, burst, r float64) Curve {
	if r >= rate {
		return ZeroCurve()
	}
	return RateLatency(rate-r, (rate*latency+burst)/(rate-r))
}

// LeftoverFIFO returns the service left under FIFO multiplexing, using the
// delay bound theta of the cross traffic as the free parameter:
// [beta(x) - cross(x-theta)]^+ for x > theta and 0 before. The result is
// lowered to the largest non-decreasing curve below it.
func LeftoverFIFO(beta, cross Curve) (Curve, error) {
	if rate, latency, ok := beta.asRateLatency(); ok {
		if burst, r, ok := cross.asTokenBucket(); ok {
			if r >= rate {
				return ZeroCurve(), nil
			}
			return RateLatency(rate-r, latency+burst/rate), nil
		}
	}
	theta := HorizontalDeviation(cross, beta)
	if !theta.IsFinite() {
		return ZeroCurve(), nil
	}
	segs, err := combine(beta, ShiftRight(cross, theta.Float()), Num.Sub, -1)
	if err != nil {
		return Curve{}, err
	}
	pos := Max(curveOf(segs...), ZeroCurve())
	cut := Min(pos, BurstDelay(theta.Float()))
	return lowerClosure(cut.segs), nil
}

// CrossRun is cross traffic that joins a path at server index From and
// leaves it after server index To, both inclusive. Arrival bounds the
// traffic where it joins.
type CrossRun struct {
	From, To int
	Arrival  Curve
}

// rlPiece is a rate-latency lower bound; an infinite rate stands for the
// pure delay BurstDelay(latency).
type rlPiece struct {
	rate, latency float64
}

// tbPiece is a token-bucket upper bound; an infinite burst bounds nothing.
type tbPiece struct {
	burst, rate float64
}

// PmooLeftover returns candidate leftover service curves for a flow crossing
// the servers of a path in order, with the given cross traffic, paying each
// cross burst once for the whole path. Service curves are cut into
// rate-latency lower bounds and arrival curves into token-bucket upper bounds;
// every combination gives a valid candidate. When the combinations exceed
// calc.MaxPmooCombinations each curve is replaced by one conservative bound.
func PmooLeftover(services []Curve, runs []CrossRun, calc CalculatorConfig) ([]Curve, error) {
	if len(services) == 0 {
		return nil, ErrEmptyCandidateSet
	}
	for _, run := range runs {
		if run.From < 0 || run.To >= len(services) || run.From > run.To {
			return nil, fmt.Errorf("%w: cross run [%d,%d] on a path of %d servers",
				ErrInvalidCurveShape, run.From, run.To, len(services))
		}
	}

	rls := make([][]rlPiece, len(services))
	tbs := make([][]tbPiece, len(runs))
	total := 1
	for i, beta := range services {
		rls[i] = rateLatencyPieces(beta)
		total = cappedProduct(total, len(rls[i]), calc.MaxPmooCombinations)
	}
	for i, run := range runs {
		tbs[i] = tokenBucketPieces(run.Arrival)
		total = cappedProduct(total, len(tbs[i]), calc.MaxPmooCombinations)
	}
	if total > calc.MaxPmooCombinations {
		for i, beta := range services {
			rls[i] = []rlPiece{rateLatencyBelow(beta)}
		}
		for i, run := range runs {
			tbs[i] = []tbPiece{tokenBucketAbove(run.Arrival)}
		}
	}

	// odometer over one piece per service and one per run
	idx := make([]int, len(services)+len(runs))
	rl := make([]rlPiece, len(services))
	tb := make([]tbPiece, len(runs))
	var out []Curve
	for {
		for i := range services {
			rl[i] = rls[i][idx[i]]
		}
		for i := range runs {
			tb[i] = tbs[i][idx[len(services)+i]]
		}
		out = append(out, pmooRateLatency(rl, runs, tb))

		d := 0
		for d < len(idx) {
			limit := 0
			if d < len(services) {
				limit = len(rls[d])
			} else {
				limit = len(tbs[d-len(services)])
			}
			idx[d]++
			if idx[d] < limit {
				break
			}
			idx[d] = 0
			d++
		}
		if d == len(idx) {
			return out, nil
		}
	}
}

func cappedProduct(a, b, limit int) int {
	if a > limit || b > limit || a*b > limit {
		return limit + 1
	}
	return a * b
}

// pmooRateLatency is the PMOO closed form for rate-latency servers and
// token-bucket cross traffic: rate min_k(R_k - sum of r crossing k), latency
// sum_k T_k plus, per cross run, its burst and the rate times the latencies
// it crosses, all over that rate.
func pmooRateLatency(rl []rlPiece, runs []CrossRun, tb []tbPiece) Curve {
	rate := math.Inf(1)
	latency := 0.0
	for k, p := range rl {
		crossRate := 0.0
		for g, run := range runs {
			if run.From <= k && k <= run.To {
				crossRate += tb[g].rate
			}
		}
		rate = math.Min(rate, p.rate-crossRate)
		latency += p.latency
	}
	if rate <= 0 {
		return ZeroCurve()
	}
	for g, run := range runs {
		if math.IsInf(tb[g].burst, 1) {
			return ZeroCurve()
		}
		crossed := 0.0
		for k := run.From; k <= run.To; k++ {
			crossed += rl[k].latency
		}
		if !math.IsInf(rate, 1) {
			latency += (tb[g].burst + tb[g].rate*crossed) / rate
		}
	}
	if math.IsInf(rate, 1) {
		return BurstDelay(latency)
	}
	return RateLatency(rate, latency)
}

// rateLatencyPieces cuts a service curve into rate-latency curves below it.
// A convex curve is the maximum of its tangent rate-latency curves; any other
// curve gets the single bound of rateLatencyBelow.
func rateLatencyPieces(beta Curve) []rlPiece {
	if rate, latency, ok := beta.asRateLatency(); ok {
		return []rlPiece{{rate: rate, latency: latency}}
	}
	if sh := beta.Shape(); sh.Kind == ShapeBurstDelay {
		return []rlPiece{{rate: math.Inf(1), latency: sh.Latency}}
	}
	if !beta.IsConvex() || !beta.segs[0].Value.Equal(Num{}) {
		return []rlPiece{rateLatencyBelow(beta)}
	}
	var out []rlPiece
	for _, s := range beta.segs {
		if s.Slope > 0 {
			out = append(out, rlPiece{rate: s.Slope, latency: math.Max(0, s.X-s.Y.Float()/s.Slope)})
		}
	}
	if len(out) == 0 {
		return []rlPiece{{}}
	}
	return out
}

// rateLatencyBelow returns the rate-latency curve with the ultimate rate of
// beta and the least latency that keeps it under beta.
func rateLatencyBelow(beta Curve) rlPiece {
	if beta.ultimateValue().IsPosInf() {
		for _, s := range beta.segs {
			if s.Y.IsPosInf() {
				return rlPiece{rate: math.Inf(1), latency: s.X}
			}
		}
	}
	rate := beta.UltimateSlope()
	if rate <= 0 {
		return rlPiece{}
	}
	latency := 0.0
	fit := func(x float64, v Num) {
		if v.IsFinite() {
			latency = math.Max(latency, x-v.Float()/rate)
		}
	}
	for i, s := range beta.segs {
		fit(s.X, s.Value)
		fit(s.X, s.Y)
		if end := beta.end(i); !math.IsInf(end, 1) {
			fit(end, s.at(end))
		}
	}
	return rlPiece{rate: rate, latency: latency}
}

// tokenBucketPieces cuts an arrival curve into token buckets above it. An
// almost concave curve is the minimum of its tangent token buckets; any
// other curve gets the single bound of tokenBucketAbove.
func tokenBucketPieces(alpha Curve) []tbPiece {
	if burst, rate, ok := alpha.asTokenBucket(); ok {
		return []tbPiece{{burst: burst, rate: rate}}
	}
	if !alpha.IsAlmostConcave() {
		return []tbPiece{tokenBucketAbove(alpha)}
	}
	out := make([]tbPiece, 0, len(alpha.segs))
	for _, s := range alpha.segs {
		out = append(out, tbPiece{burst: s.Y.Float() - s.Slope*s.X, rate: s.Slope})
	}
	return out
}

// tokenBucketAbove returns the token bucket with the ultimate rate of alpha
// and the least burst that keeps it above alpha.
func tokenBucketAbove(alpha Curve) tbPiece {
	if alpha.ultimateValue().IsPosInf() {
		return tbPiece{burst: math.Inf(1)}
	}
	rate := alpha.UltimateSlope()
	burst := 0.0
	fit := func(x float64, v Num) {
		if x > 0 || v.Float() > 0 {
			burst = math.Max(burst, v.Float()-rate*x)
		}
	}
	for i, s := range alpha.segs {
		fit(s.X, s.Value)
		fit(s.X, s.Y)
		if end := alpha.end(i); !math.IsInf(end, 1) {
			fit(end, s.at(end))
		}
	}
	return tbPiece{burst: burst, rate: rate}
}
