package dnc

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// AnalysisKind names one of the bounding strategies.
type AnalysisKind int

const (
	TFA AnalysisKind = iota
	SFA
	PMOO
)

var kindToStr = map[AnalysisKind]string{
	TFA:  "tfa",
	SFA:  "sfa",
	PMOO: "pmoo",
}

func (k AnalysisKind) String() string               { return kindToStr[k] }
func (k AnalysisKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *AnalysisKind) UnmarshalText(b []byte) (err error) {
	*k, err = lookup(kindToStr, string(b), "analysis")
	return err
}

// Result holds the bounds an analysis derived for one flow. A +inf bound
// means none could be derived.
type Result struct {
	Flow     string       `json:"flow" yaml:"flow"`
	Analysis AnalysisKind `json:"analysis" yaml:"analysis"`
	Delay    Num          `json:"delay" yaml:"delay"`
	Backlog  Num          `json:"backlog" yaml:"backlog"`

	// ServerDelays holds the per-server delays that TFA sums up.
	ServerDelays map[string]Num `json:"serverdelays,omitempty" yaml:"serverdelays,omitempty"`
}

// Analysis bounds the delay and backlog of single flows of a network.
// Implementations are safe for concurrent use.
type Analysis interface {
	Kind() AnalysisKind
	Config() AnalysisConfig
	Analyze(f *Flow) (Result, error)
}

// Option tunes an analysis at construction.
type Option func(*analysisBase)

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(b *analysisBase) { b.logger = logger }
}

// WithCalculator sets the calculator configuration; DefaultCalculatorConfig()
// otherwise.
func WithCalculator(calc CalculatorConfig) Option {
	return func(b *analysisBase) { b.calc = calc }
}

// WithCache shares an arrival bound cache between analyses of the same
// network. Entries are keyed by configuration, so analyses with different
// configurations can share one cache.
func WithCache(memo *cache.Cache) Option {
	return func(b *analysisBase) { b.memo = memo }
}

// analysisBase holds what the three analyses share.
type analysisBase struct {
	net    *Network
	cfg    AnalysisConfig
	calc   CalculatorConfig
	logger *slog.Logger
	memo   *cache.Cache
	ab     *arrivalBounder
}

func newAnalysisBase(net *Network, cfg AnalysisConfig, kind AnalysisKind, opts []Option) (*analysisBase, error) {
	b := &analysisBase{
		net:    net,
		cfg:    cfg,
		calc:   DefaultCalculatorConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := net.CheckFeedForward(); err != nil {
		return nil, fmt.Errorf("%s on %s: %w", kind, net.Name, err)
	}
	if b.memo == nil {
		b.memo = cache.New(cache.NoExpiration, 0)
	}
	b.logger = b.logger.With("analysis", kind.String())
	b.ab = &arrivalBounder{net: net, cfg: cfg, calc: b.calc, memo: b.memo, logger: b.logger}
	return b, nil
}

func (b *analysisBase) Config() AnalysisConfig { return b.cfg }
func (b *analysisBase) Logger() *slog.Logger   { return b.logger }

// checkFlow makes sure f belongs to the analysed network.
func (b *analysisBase) checkFlow(f *Flow) error {
	if f == nil {
		return fmt.Errorf("%w: nil flow", ErrUnknownFlow)
	}
	if g, present := b.net.flowByAlias[f.alias]; !present || g != f {
		return fmt.Errorf("%w: %s is not a flow of %s", ErrUnknownFlow, f.alias, b.net.Name)
	}
	return nil
}

// NewAnalysis builds the analysis of the given kind.
func NewAnalysis(kind AnalysisKind, net *Network, cfg AnalysisConfig, opts ...Option) (Analysis, error) {
	var a Analysis
	var err error
	switch kind {
	case TFA:
		a, err = NewTotalFlowAnalysis(net, cfg, opts...)
	case SFA:
		a, err = NewSeparateFlowAnalysis(net, cfg, opts...)
	case PMOO:
		a, err = NewPmooAnalysis(net, cfg, opts...)
	default:
		return nil, fmt.Errorf("unknown analysis kind %d", kind)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AnalyzeAll bounds every flow in flows, in parallel. The results come back
// in the order of flows. The first error cancels the flows not yet started.
func AnalyzeAll(ctx context.Context, a Analysis, flows []*Flow) ([]Result, error) {
	logger := slog.Default()
	if l, ok := a.(interface{ Logger() *slog.Logger }); ok {
		logger = l.Logger()
	}

	results := make([]Result, len(flows))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range flows {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := a.Analyze(f)
			if err != nil {
				return fmt.Errorf("flow %s: %w", f, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("analysis failed", "error", err)
		return nil, err
	}
	logger.Info("analysis done", "flows", len(flows), "config", a.Config().String())
	return results, nil
}
