package dnc

import (
	"fmt"
)

// TotalFlowAnalysis bounds every server on the path of a flow against the
// whole traffic it serves and adds the per-server delays up. The backlog
// bound is the largest per-server backlog.
type TotalFlowAnalysis struct {
	*analysisBase
}

// NewTotalFlowAnalysis fails if net is not feed-forward.
func NewTotalFlowAnalysis(net *Network, cfg AnalysisConfig, opts ...Option) (*TotalFlowAnalysis, error) {
	base, err := newAnalysisBase(net, cfg, TFA, opts)
	if err != nil {
		return nil, err
	}
	return &TotalFlowAnalysis{analysisBase: base}, nil
}

func (a *TotalFlowAnalysis) Kind() AnalysisKind { return TFA }

func (a *TotalFlowAnalysis) Analyze(foi *Flow) (Result, error) {
	if err := a.checkFlow(foi); err != nil {
		return Result{}, err
	}
	res := Result{
		Flow:         foi.alias,
		Analysis:     TFA,
		Delay:        Finite(0),
		Backlog:      Finite(0),
		ServerDelays: make(map[string]Num),
	}
	for _, s := range foi.path.servers {
		delay, backlog, err := a.ServerBounds(s)
		if err != nil {
			return Result{}, fmt.Errorf("tfa of %s: %w", foi, err)
		}
		res.ServerDelays[s.alias] = delay
		res.Delay = res.Delay.Add(delay)
		res.Backlog = res.Backlog.Max(backlog)
	}
	a.logger.Debug("flow bounded", "flow", foi.alias, "delay", res.Delay.String(), "backlog", res.Backlog.String())
	return res, nil
}

// ServerBounds returns the delay and backlog bounds at s for the aggregate
// of all the flows s serves. Under FIFO the delay is the horizontal
// deviation; under arbitrary multiplexing it is the busy period, since a
// bit may wait as long as the server stays backlogged.
func (a *TotalFlowAnalysis) ServerBounds(s *Server) (Num, Num, error) {
	if err := a.net.owns(s); err != nil {
		return Num{}, Num{}, err
	}
	alpha, err := a.ab.arrivalAt(s, a.net.flowsAt[s.id], nil)
	if err != nil {
		return Num{}, Num{}, err
	}
	beta := s.Service()

	var delay Num
	if a.cfg.muxAt(s) == MuxFifo {
		delay = HorizontalDeviation(alpha, beta)
	} else if delay, err = BusyPeriod(alpha, beta); err != nil {
		return Num{}, Num{}, fmt.Errorf("delay at %s: %w", s, err)
	}
	backlog, err := VerticalDeviation(alpha, beta)
	if err != nil {
		return Num{}, Num{}, fmt.Errorf("backlog at %s: %w", s, err)
	}
	return delay, backlog, nil
}
