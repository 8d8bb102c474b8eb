package dnc

import (
	"fmt"
)

// SeparateFlowAnalysis computes the service left to the flow of interest at
// every server of its path, concatenates the leftovers into one end-to-end
// service curve and bounds the flow's own arrival curve against it.
type SeparateFlowAnalysis struct {
	*analysisBase
}

// NewSeparateFlowAnalysis fails if net is not feed-forward.
func NewSeparateFlowAnalysis(net *Network, cfg AnalysisConfig, opts ...Option) (*SeparateFlowAnalysis, error) {
	base, err := newAnalysisBase(net, cfg, SFA, opts)
	if err != nil {
		return nil, err
	}
	return &SeparateFlowAnalysis{analysisBase: base}, nil
}

func (a *SeparateFlowAnalysis) Kind() AnalysisKind { return SFA }

func (a *SeparateFlowAnalysis) Analyze(foi *Flow) (Result, error) {
	if err := a.checkFlow(foi); err != nil {
		return Result{}, err
	}
	beta, err := a.EndToEndService(foi)
	if err != nil {
		return Result{}, err
	}
	alpha := foi.Arrival()
	backlog, err := VerticalDeviation(alpha, beta)
	if err != nil {
		return Result{}, fmt.Errorf("sfa of %s: %w", foi, err)
	}
	res := Result{
		Flow:     foi.alias,
		Analysis: SFA,
		Delay:    HorizontalDeviation(alpha, beta),
		Backlog:  backlog,
	}
	a.logger.Debug("flow bounded", "flow", foi.alias, "delay", res.Delay.String(), "backlog", res.Backlog.String())
	return res, nil
}

// EndToEndService returns the convolution of the leftover service curves
// along the path of foi.
func (a *SeparateFlowAnalysis) EndToEndService(foi *Flow) (Curve, error) {
	beta, err := a.ab.concatenatedLeftover(foi.path.servers, []*Flow{foi}, foi)
	if err != nil {
		return Curve{}, fmt.Errorf("sfa of %s: %w", foi, err)
	}
	return beta, nil
}
