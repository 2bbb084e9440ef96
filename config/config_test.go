package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ans104/compliance"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "bundles", cfg.InputDir)
	assert.Equal(t, "output", cfg.OutputDir)
}

func TestParse(t *testing.T) {
	t.Setenv("ANS104_TEST_ROOT", "/srv/ans")
	cfg, err := Parse(strings.NewReader(`
input_dir: ${ANS104_TEST_ROOT}/raw
output_dir: ${ANS104_MISSING:-/tmp}/out
mode: strict
workers: 3
parallel_bundles: 2
include_unverified: true
sink: cas
store:
  write_policy: first
  backends:
    - name: localfs
      config: {dir: "${ANS104_TEST_ROOT}/payloads"}
log:
  level: debug
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, "/srv/ans/raw", cfg.InputDir)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, compliance.Strict, cfg.Mode)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 2, cfg.ParallelBundles)
	assert.True(t, cfg.IncludeUnverified)
	assert.Equal(t, SinkCAS, cfg.Sink)
	require.NotNil(t, cfg.Store)
	assert.Equal(t, "/srv/ans/payloads", cfg.Store.Backends[0].Config["dir"])
	assert.Equal(t, "ArFS", cfg.MetadataTag)
	assert.Equal(t, int64(1<<20), cfg.MaxMetadataBytes)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "inptu_dir: x\n",
		"bad mode":       "mode: lenient\n",
		"bad sink":       "sink: s3\n",
		"cas no store":   "sink: cas\n",
		"zero workers":   "workers: 0\n",
		"bad log level":  "log: {level: loud}\n",
		"bad log format": "log: {format: xml}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestLoad_EnvVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ans104.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 7\n"), 0o644))

	t.Setenv(EnvVar, path)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)

	t.Setenv(EnvVar, "")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var sb strings.Builder
	LogConfig{Level: "warn", Format: "json"}.NewLogger(&sb).Info("hidden")
	assert.Empty(t, sb.String())
	LogConfig{Level: "warn", Format: "json"}.NewLogger(&sb).Warn("shown", "k", 1)
	assert.Contains(t, sb.String(), `"msg":"shown"`)
}
