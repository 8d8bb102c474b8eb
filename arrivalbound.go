package dnc

// arrivalbound.go derives arrival curves of traffic inside the network. Flows
// entering a server from the same upstream server are bounded together by an
// output bound over the upstream server, or over the longest sub-path they
// share, following AnalysisConfig.ArrivalBound.

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/patrickmn/go-cache"
	"golang.org/x/exp/slices"
)

// arrivalBounder computes arrival bounds for one configuration. Results are
// memoized in a go-cache, which is safe for concurrent use, so one bounder
// serves every flow of an AnalyzeAll run.
type arrivalBounder struct {
	net    *Network
	cfg    AnalysisConfig
	calc   CalculatorConfig
	memo   *cache.Cache
	logger *slog.Logger
}

// key identifies a bound by network, configuration, kind, server, flow set
// and flow of interest, so bounders of different networks or calculator
// settings can share one cache.
func (ab *arrivalBounder) key(kind string, s *Server, flows []*Flow, foi *Flow) string {
	ids := make([]int, len(flows))
	for i, f := range flows {
		ids[i] = f.id
	}
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	foiId := -1
	if foi != nil {
		foiId = foi.id
	}
	return fmt.Sprintf("%s#%d|%s|%+v|%s|%d|%s|%d", ab.net.Name, ab.net.serial, ab.cfg, ab.calc,
		kind, s.id, strings.Join(parts, ","), foiId)
}

func (ab *arrivalBounder) check(c Curve, arrival bool) error {
	if !ab.calc.ChecksEnabled {
		return nil
	}
	if arrival {
		return c.ValidateArrival()
	}
	return c.ValidateService()
}

// arrivalAt bounds the aggregate of flows where it enters s. Flows starting
// at s contribute their own arrival curves. The flow of interest foi, if
// any, is left out of the cross traffic of every upstream server.
func (ab *arrivalBounder) arrivalAt(s *Server, flows []*Flow, foi *Flow) (Curve, error) {
	if len(flows) == 0 {
		return ZeroCurve(), nil
	}
	key := ab.key("arrival", s, flows, foi)
	if v, found := ab.memo.Get(key); found {
		return v.(Curve), nil
	}

	parts := make([]Curve, 0, len(flows))
	var preds []*Server
	groups := make(map[*Server][]*Flow)
	for _, f := range flows {
		if f.Source() == s {
			parts = append(parts, f.Arrival())
			continue
		}
		pred, ok := f.Path().Predecessor(s)
		if !ok {
			return Curve{}, fmt.Errorf("%w: flow %s does not cross %s", ErrUnknownFlow, f, s)
		}
		if _, present := groups[pred]; !present {
			preds = append(preds, pred)
		}
		groups[pred] = append(groups[pred], f)
	}
	for _, pred := range preds {
		out, err := ab.outputOf(pred, groups[pred], foi)
		if err != nil {
			return Curve{}, err
		}
		parts = append(parts, out)
	}

	sum, err := AddAll(parts)
	if err != nil {
		return Curve{}, err
	}
	if err := ab.check(sum, true); err != nil {
		return Curve{}, fmt.Errorf("arrival bound at %s: %w", s, err)
	}
	ab.logger.Debug("arrival bound", "server", s.alias, "flows", len(flows), "method", ab.cfg.ArrivalBound.String())
	ab.memo.Set(key, sum, cache.NoExpiration)
	return sum, nil
}

// outputOf bounds the traffic of group leaving p.
func (ab *arrivalBounder) outputOf(p *Server, group []*Flow, foi *Flow) (Curve, error) {
	var arrival Curve
	var services []Curve
	var at GammaSource
	var err error

	switch ab.cfg.ArrivalBound {
	case ArrivalBoundPerHop:
		if arrival, err = ab.arrivalAt(p, group, foi); err != nil {
			return Curve{}, err
		}
		leftover, err := ab.leftoverAt(p, group, foi)
		if err != nil {
			return Curve{}, err
		}
		services, at = []Curve{leftover}, p

	case ArrivalBoundPathConcatenation, ArrivalBoundPmoo:
		sub := sharedPath(p, group)
		if arrival, err = ab.arrivalAt(sub[0], group, foi); err != nil {
			return Curve{}, err
		}
		if ab.cfg.ArrivalBound == ArrivalBoundPmoo {
			services, err = ab.pmooLeftover(sub, group, foi)
		} else {
			var concat Curve
			concat, err = ab.concatenatedLeftover(sub, group, foi)
			services = []Curve{concat}
		}
		if err != nil {
			return Curve{}, err
		}
		path, err := NewPath(sub)
		if err != nil {
			return Curve{}, err
		}
		at = path

	default:
		return Curve{}, fmt.Errorf("unknown arrival bound method %d", ab.cfg.ArrivalBound)
	}

	outs, err := OutputBound(ab.cfg, []Curve{arrival}, services, at)
	if err != nil {
		return Curve{}, fmt.Errorf("output bound at %s: %w", p, err)
	}
	return MinAll(outs)
}

// sharedPath returns the longest run of servers ending at p that every flow
// of group crosses in the same order, one server straight after the other.
func sharedPath(p *Server, group []*Flow) []*Server {
	lead := group[0].Path().servers
	end := slices.Index(lead, p)
	start := end
	for start > 0 {
		prev, cur := lead[start-1], lead[start]
		shared := true
		for _, f := range group[1:] {
			if pred, ok := f.Path().Predecessor(cur); !ok || pred != prev {
				shared = false
				break
			}
		}
		if !shared {
			break
		}
		start--
	}
	return lead[start : end+1]
}

// crossAt lists the flows at s that are neither in group nor foi.
func (ab *arrivalBounder) crossAt(s *Server, group []*Flow, foi *Flow) []*Flow {
	var cross []*Flow
	for _, f := range ab.net.flowsAt[s.id] {
		if f != foi && !slices.Contains(group, f) {
			cross = append(cross, f)
		}
	}
	return cross
}

// leftoverAt returns the service s leaves to group once the other flows
// there are served, under the discipline in force at s.
func (ab *arrivalBounder) leftoverAt(s *Server, group []*Flow, foi *Flow) (Curve, error) {
	cross := ab.crossAt(s, group, foi)
	if len(cross) == 0 {
		return s.Service(), nil
	}
	crossArrival, err := ab.arrivalAt(s, cross, foi)
	if err != nil {
		return Curve{}, err
	}
	var leftover Curve
	if ab.cfg.muxAt(s) == MuxFifo {
		leftover, err = LeftoverFIFO(s.Service(), crossArrival)
	} else {
		leftover, err = Leftover(s.Service(), crossArrival)
	}
	if err != nil {
		return Curve{}, fmt.Errorf("leftover at %s: %w", s, err)
	}
	if err := ab.check(leftover, false); err != nil {
		return Curve{}, fmt.Errorf("leftover at %s: %w", s, err)
	}
	return leftover, nil
}

// concatenatedLeftover convolves the leftover service of every server of sub.
func (ab *arrivalBounder) concatenatedLeftover(sub []*Server, group []*Flow, foi *Flow) (Curve, error) {
	var concat Curve
	for i, s := range sub {
		leftover, err := ab.leftoverAt(s, group, foi)
		if err != nil {
			return Curve{}, err
		}
		if i == 0 {
			concat = leftover
			continue
		}
		if concat, err = ConvolveWith(concat, leftover, ab.cfg.Convolution); err != nil {
			return Curve{}, fmt.Errorf("concatenating at %s: %w", s, err)
		}
	}
	return concat, nil
}

// pmooLeftover returns the PMOO leftover candidates of sub for group. Cross
// traffic is cut into the runs it travels along sub, and runs joining and
// leaving at the same servers are bounded together.
func (ab *arrivalBounder) pmooLeftover(sub []*Server, group []*Flow, foi *Flow) ([]Curve, error) {
	type span struct{ from, to int }
	var order []span
	runFlows := make(map[span][]*Flow)

	// open[f] is where the run f is currently on started
	open := make(map[*Flow]int)
	closeRun := func(f *Flow, to int) {
		sp := span{open[f], to}
		if _, present := runFlows[sp]; !present {
			order = append(order, sp)
		}
		runFlows[sp] = append(runFlows[sp], f)
		delete(open, f)
	}
	for k, s := range sub {
		cross := ab.crossAt(s, group, foi)
		for _, f := range cross {
			if _, on := open[f]; !on {
				open[f] = k
			}
		}
		for _, f := range cross {
			// a run ends where f does not go straight on to the next server
			if k == len(sub)-1 {
				closeRun(f, k)
				continue
			}
			if next := f.Path().Index(s) + 1; next >= f.Path().Len() || f.Path().servers[next] != sub[k+1] {
				closeRun(f, k)
			}
		}
	}

	services := make([]Curve, len(sub))
	for i, s := range sub {
		services[i] = s.Service()
	}
	runs := make([]CrossRun, 0, len(order))
	for _, sp := range order {
		arrival, err := ab.arrivalAt(sub[sp.from], runFlows[sp], foi)
		if err != nil {
			return nil, err
		}
		runs = append(runs, CrossRun{From: sp.from, To: sp.to, Arrival: arrival})
	}
	candidates, err := PmooLeftover(services, runs, ab.calc)
	if err != nil {
		return nil, fmt.Errorf("pmoo leftover over %s: %w", sub[0], err)
	}
	return candidates, nil
}
