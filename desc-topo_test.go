package dnc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDesc() *NetworkDesc {
	nd := CreateNetworkDesc("sample")
	bd := CurveDesc{Shape: "burst-delay", Latency: 0.5}
	nd.Servers = append(nd.Servers,
		ServerDesc{Name: "a", Service: CurveDesc{Shape: "rate-latency", Rate: 10, Latency: 1}},
		ServerDesc{Name: "b", Service: CurveDesc{Shape: "rate-latency", Rate: 20, Latency: 0.5},
			Multiplexing: MuxFifo, Gamma: &bd},
		ServerDesc{Name: "c", Service: CurveDesc{Shape: "generic", Segments: []Segment{
			{X: 0, Value: Finite(0), Y: Finite(0), Slope: 0},
			{X: 1, Value: Finite(0), Y: Finite(0), Slope: 5},
			{X: 3, Value: Finite(10), Y: Finite(10), Slope: 20},
		}}},
	)
	nd.Links = append(nd.Links, LinkDesc{Src: "a", Dst: "b"}, LinkDesc{Src: "b", Dst: "c"}, LinkDesc{Src: "a", Dst: "c"})
	nd.Flows = append(nd.Flows,
		FlowDesc{Name: "f0", Arrival: CurveDesc{Shape: "token-bucket", Burst: 2, Rate: 1}, Path: []string{"a", "b", "c"}},
		FlowDesc{Name: "f1", Arrival: CurveDesc{Shape: "token-bucket", Burst: 1, Rate: 2}, Src: "a", Dst: "c"},
	)
	return nd
}

func TestCurveDesc(t *testing.T) {
	curves := []Curve{
		ZeroCurve(),
		TokenBucket(3, 2),
		RateLatency(5, 1),
		BurstDelay(2),
		twoRate(t),
	}
	for _, c := range curves {
		cd := DescribeCurve(c)
		back, err := cd.Curve()
		require.NoError(t, err)
		assert.True(t, c.Equal(back), "%s described as %+v", c, cd)
	}
	assert.Equal(t, "generic", DescribeCurve(twoRate(t)).Shape)

	_, err := CurveDesc{Shape: "sawtooth"}.Curve()
	assert.ErrorIs(t, err, ErrInvalidCurveShape)
	_, err = CurveDesc{Shape: "generic", Segments: []Segment{{X: 1}}}.Curve()
	assert.ErrorIs(t, err, ErrInvalidCurveShape)
}

func TestBuildNetwork(t *testing.T) {
	net, err := sampleDesc().Build()
	require.NoError(t, err)
	assert.Equal(t, "sample", net.Name)
	assert.Len(t, net.Servers(), 3)

	b, err := net.Server("b")
	require.NoError(t, err)
	assert.Equal(t, MuxFifo, b.Multiplexing())
	assertCurve(t, BurstDelay(0.5), b.Gamma())

	routed, err := net.Flow("f1")
	require.NoError(t, err)
	assert.Equal(t, "a->c", routed.Path().String())
}

func TestNetworkDescFiles(t *testing.T) {
	net, err := sampleDesc().Build()
	require.NoError(t, err)
	want := net.Transform()
	assert.Equal(t, []string{"a", "c"}, want.Flows[1].Path)

	dir := t.TempDir()
	for _, name := range []string{"net.yaml", "net.json"} {
		t.Run(name, func(t *testing.T) {
			filename := filepath.Join(dir, name)
			require.NoError(t, want.WriteToFile(filename))
			nd, err := ReadNetworkDesc(filename, isYAMLFile(filename), nil)
			require.NoError(t, err)
			rebuilt, err := nd.Build()
			require.NoError(t, err)
			assert.Equal(t, want, rebuilt.Transform())
		})
	}
}

func TestReadNetworkDescBytes(t *testing.T) {
	dict := []byte(`
name: inline
servers:
  - name: s
    service: {shape: rate-latency, rate: 4, latency: 2}
    multiplexing: fifo
flows:
  - name: f
    arrival: {shape: token-bucket, burst: 1, rate: 1}
    path: [s]
`)
	nd, err := ReadNetworkDesc("", true, dict)
	require.NoError(t, err)
	net, err := nd.Build()
	require.NoError(t, err)
	f, err := net.Flow("f")
	require.NoError(t, err)
	assert.True(t, f.Arrival().Equal(TokenBucket(1, 1)))
}

func TestBuildReportsAllErrors(t *testing.T) {
	nd := sampleDesc()
	nd.Servers = append(nd.Servers, ServerDesc{Name: "x", Service: CurveDesc{Shape: "sawtooth"}})
	nd.Links = append(nd.Links, LinkDesc{Src: "a", Dst: "y"})
	_, err := nd.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCurveShape)
	assert.ErrorIs(t, err, ErrUnknownServer)

	nd = sampleDesc()
	nd.Flows = append(nd.Flows,
		FlowDesc{Name: "g", Arrival: CurveDesc{Shape: "token-bucket", Burst: 1, Rate: 1}, Path: []string{"c", "a"}},
		FlowDesc{Name: "h", Arrival: CurveDesc{Shape: "token-bucket", Burst: 1, Rate: 1}, Src: "c", Dst: "a"},
		FlowDesc{Name: "f0", Arrival: CurveDesc{Shape: "token-bucket", Burst: 1, Rate: 1}, Path: []string{"a"}},
	)
	_, err = nd.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoLink)
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.ErrorIs(t, err, ErrDuplicateAlias)
}

// Bounds derived from a network saved and reloaded match the bounds of the
// network itself.
func TestBoundsSurviveReload(t *testing.T) {
	gc := DefaultGeneratorConfig()
	gc.Name = "reload"
	nd, err := GenerateNetworkDesc(gc)
	require.NoError(t, err)
	net, err := nd.Build()
	require.NoError(t, err)

	filename := filepath.Join(t.TempDir(), "net.yaml")
	require.NoError(t, nd.WriteToFile(filename))
	reread, err := ReadNetworkDesc(filename, true, nil)
	require.NoError(t, err)
	reloaded, err := reread.Build()
	require.NoError(t, err)

	for _, kind := range []AnalysisKind{TFA, SFA, PMOO} {
		before, err := NewAnalysis(kind, net, DefaultAnalysisConfig(), quiet)
		require.NoError(t, err)
		after, err := NewAnalysis(kind, reloaded, DefaultAnalysisConfig(), quiet)
		require.NoError(t, err)
		want, err := AnalyzeAll(context.Background(), before, net.Flows())
		require.NoError(t, err)
		got, err := AnalyzeAll(context.Background(), after, reloaded.Flows())
		require.NoError(t, err)
		assert.Equal(t, want, got, kind.String())
	}
}
