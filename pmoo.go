package dnc

import (
	"fmt"
)

// PmooAnalysis derives one leftover service curve for the whole path of the
// flow of interest, so that each cross flow's burst is paid only once, and
// takes the best bounds over the candidate leftovers.
type PmooAnalysis struct {
	*analysisBase
}

// NewPmooAnalysis fails if net is not feed-forward.
func NewPmooAnalysis(net *Network, cfg AnalysisConfig, opts ...Option) (*PmooAnalysis, error) {
	base, err := newAnalysisBase(net, cfg, PMOO, opts)
	if err != nil {
		return nil, err
	}
	return &PmooAnalysis{analysisBase: base}, nil
}

func (a *PmooAnalysis) Kind() AnalysisKind { return PMOO }

func (a *PmooAnalysis) Analyze(foi *Flow) (Result, error) {
	if err := a.checkFlow(foi); err != nil {
		return Result{}, err
	}
	candidates, err := a.LeftoverServices(foi)
	if err != nil {
		return Result{}, err
	}

	alpha := foi.Arrival()
	res := Result{Flow: foi.alias, Analysis: PMOO, Delay: PosInf(), Backlog: PosInf()}
	for _, beta := range candidates {
		backlog, err := VerticalDeviation(alpha, beta)
		if err != nil {
			return Result{}, fmt.Errorf("pmoo of %s: %w", foi, err)
		}
		res.Delay = res.Delay.Min(HorizontalDeviation(alpha, beta))
		res.Backlog = res.Backlog.Min(backlog)
	}
	a.logger.Debug("flow bounded", "flow", foi.alias, "candidates", len(candidates),
		"delay", res.Delay.String(), "backlog", res.Backlog.String())
	return res, nil
}

// LeftoverServices returns the candidate leftover service curves of the path
// of foi.
func (a *PmooAnalysis) LeftoverServices(foi *Flow) ([]Curve, error) {
	candidates, err := a.ab.pmooLeftover(foi.path.servers, []*Flow{foi}, foi)
	if err != nil {
		return nil, fmt.Errorf("pmoo of %s: %w", foi, err)
	}
	return candidates, nil
}
