// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/internal/jobs"
	"github.com/pdiddy/pubrun/internal/pubstore"
	"github.com/pdiddy/pubrun/pkg/types"
)

func TestParseParams(t *testing.T) {
	file := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(file, []byte("keywords:\n  - BRCA1\n  - p53\nminCount: 3\nsectioning: true\n"), 0o644))

	p, err := parseParams(file, []string{"minCount=5", "label=a=b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"BRCA1", "p53"}, p.Strings("keywords"))
	n, ok := p.Int("minCount")
	assert.True(t, ok)
	assert.Equal(t, int64(5), n, "flags override the file")
	assert.Equal(t, "a=b", p.String("label"))
	b, ok := p.Bool("sectioning")
	assert.True(t, ok && b)

	_, err = parseParams("", []string{"novalue"})
	assert.ErrorIs(t, err, alg.ErrConfig)

	_, err = parseParams(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorIs(t, err, alg.ErrConfig)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b,"))
	assert.Nil(t, splitList(""))
}

func TestEngineConfigDefaultsAndValidation(t *testing.T) {
	setConfigDefaults()
	cfg, err := engineConfig()
	require.NoError(t, err)
	assert.Equal(t, 18, cfg.IDWidth())
	assert.Equal(t, types.ReduceStoreMemory, cfg.ReduceStore)
	assert.Equal(t, 250, cfg.Snippet.MaxContext)

	viper.Set("annot_digits", 12)
	defer viper.Set("annot_digits", 5)
	_, err = engineConfig()
	assert.ErrorIs(t, err, alg.ErrConfig)
}

func TestWorkerFlags(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		c := &cobra.Command{Use: "x"}
		c.Flags().Bool("debug", false, "")
		c.Flags().Bool("quiet", false, "")
		require.NoError(t, c.ParseFlags(args))
		return c
	}

	flags, err := workerFlags(newCmd())
	require.NoError(t, err)
	assert.Empty(t, flags)

	cfg := filepath.Join(t.TempDir(), "other.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("annot_digits: 6\n"), 0o644))
	viper.SetConfigFile(cfg)
	defer viper.SetConfigName("pubrun")

	flags, err = workerFlags(newCmd("--debug"))
	require.NoError(t, err)
	assert.Equal(t, []string{"--config", cfg, "--debug"}, flags)

	flags, err = workerFlags(newCmd("--quiet"))
	require.NoError(t, err)
	assert.Equal(t, []string{"--config", cfg, "--quiet"}, flags)
}

func TestWorkerCommand(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "0_00000")
	require.NoError(t, pubstore.WritePartition(base,
		[]types.Article{{ArticleID: 1, ExternalID: "PMID1"}},
		[]types.FileRecord{{FileID: 1000, ArticleID: 1, FileType: types.FileMain, Content: "The gene BRCA1."}}))
	paramFile := filepath.Join(dir, "keywords"+jobs.ParamExt)
	require.NoError(t, jobs.WriteParams(paramFile, types.Params{"keywords": "BRCA1"}))

	viper.Set("temp_dir", filepath.Join(dir, "tmp"))
	defer viper.Set("temp_dir", os.TempDir())

	out := filepath.Join(dir, "out", "pmc_0_00000.tab")
	rootCmd.SetArgs([]string{"worker", "keywords", "annotate", base, out, paramFile})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "000000000100000000\tPMID1\t9\t14\tbrca1\tunknown\tThe gene <<<BRCA1>>>.", lines[1])

	var stderr bytes.Buffer
	rootCmd.SetErr(&stderr)
	defer rootCmd.SetErr(nil)
	rootCmd.SetArgs([]string{"worker", "nosuchalg", "annotate", base, out, paramFile})
	err = rootCmd.Execute()
	assert.ErrorIs(t, err, alg.ErrNotFound)

	missingOut := filepath.Join(dir, "out", "missing.tab")
	rootCmd.SetArgs([]string{"worker", "keywords", "annotate", filepath.Join(dir, "0_00009"), missingOut, paramFile})
	err = rootCmd.Execute()
	assert.ErrorIs(t, err, alg.ErrConfig)
	assert.ErrorIs(t, err, pubstore.ErrNotFound)
	assert.NoFileExists(t, missingOut)
}

func TestAlgorithmsCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)
	rootCmd.SetArgs([]string{"algorithms"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "wordcount:Map")
}
