package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/uoaprobe/internal/scenario"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestListShowsReadyAndSkipped(t *testing.T) {
	out, err := execute(t, "list", "--lb-ipv4", "10.0.0.1:6000", "--self-ipv4", "10.0.1.5", "-k", "ipv4")
	require.NoError(t, err)

	assert.Contains(t, out, "SCENARIO")
	assert.Regexp(t, `lb-ipv4/udp4\s+request-reply\s+1\s+ready`, out)
	assert.Regexp(t, `serv-ipv4/uoa4-opt\s+request-reply\s+\d+\s+skip: --serv-ipv4 not set`, out)
	assert.NotContains(t, out, "lb-ipv6/udp6")
}

func TestListRejectsMalformedTarget(t *testing.T) {
	_, err := execute(t, "list", "--serv-ipv4", "not-an-endpoint")
	require.Error(t, err)
}

func TestRunWithoutMatchingScenario(t *testing.T) {
	_, err := execute(t, "run", "-k", "no-such-scenario")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario matches")
}

func TestPrimingRoundsFlagDefault(t *testing.T) {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	addTargetFlags(fs)
	addProbeFlags(fs)
	assert.Equal(t, "3", fs.Lookup("priming-rounds").DefValue)

	cfg, err := loadConfig(fs, merge(targetFlags, probeFlags))
	require.NoError(t, err)
	assert.Equal(t, scenario.DefaultPrimingRounds, cfg.Probe.PrimingRounds)

	require.NoError(t, fs.Parse([]string{"--priming-rounds", "5"}))
	cfg, err = loadConfig(fs, merge(targetFlags, probeFlags))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Probe.PrimingRounds)
}
