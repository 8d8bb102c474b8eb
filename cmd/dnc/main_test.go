package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iti/dnc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGenerateAnalyze(t *testing.T) {
	dir := t.TempDir()
	netFile := filepath.Join(dir, "net.yaml")
	reportFile := filepath.Join(dir, "report.json")

	_, err := run(t, "generate", netFile, "--name", "cli", "--servers", "4", "--flows", "5", "--mux", "fifo")
	require.NoError(t, err)
	nd, err := dnc.ReadNetworkDesc(netFile, true, nil)
	require.NoError(t, err)
	assert.Len(t, nd.Servers, 4)
	assert.Len(t, nd.Flows, 5)
	assert.Equal(t, dnc.MuxFifo, nd.Servers[0].Multiplexing)

	out, err := run(t, "analyze", netFile, "-a", "sfa,pmoo", "-o", reportFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 1+2*5)
	assert.Contains(t, lines[0], "cli")

	rp, err := dnc.ReadReport(reportFile, false, nil)
	require.NoError(t, err)
	assert.Len(t, rp.Results, 10)
	for _, r := range rp.Results {
		assert.True(t, r.Delay.IsFinite(), "%s of %s", r.Analysis, r.Flow)
	}

	out, err = run(t, "analyze", netFile, "-a", "tfa", "-f", "f0", "--no-checks")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestAnalyzeConfigFile(t *testing.T) {
	dir := t.TempDir()
	netFile := filepath.Join(dir, "net.json")
	cfgFile := filepath.Join(dir, "cfg.yaml")

	_, err := run(t, "generate", netFile, "--servers", "3", "--flows", "3")
	require.NoError(t, err)
	cfg := dnc.DefaultAnalysisConfig().WithArrivalBound(dnc.ArrivalBoundPerHop)
	require.NoError(t, cfg.WriteToFile(cfgFile))

	out, err := run(t, "analyze", netFile, "-c", cfgFile, "-a", "sfa")
	require.NoError(t, err)
	assert.Contains(t, out, "ab=per-hop")
}

func TestAnalyzeRejects(t *testing.T) {
	dir := t.TempDir()
	netFile := filepath.Join(dir, "net.yaml")
	_, err := run(t, "generate", netFile, "--servers", "2", "--flows", "2")
	require.NoError(t, err)

	_, err = run(t, "analyze", netFile, "-a", "nc")
	assert.Error(t, err)
	_, err = run(t, "analyze", netFile, "-f", "nobody")
	assert.ErrorIs(t, err, dnc.ErrUnknownFlow)
	_, err = run(t, "analyze", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
	_, err = run(t, "generate", netFile, "--mux", "round-robin")
	assert.Error(t, err)
	_, err = run(t, "generate", filepath.Join(dir, "net.txt"))
	assert.Error(t, err)
}
