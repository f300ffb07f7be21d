// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/internal/algorithms"
	"github.com/pdiddy/pubrun/internal/jobs"
	"github.com/pdiddy/pubrun/internal/section"
	"github.com/pdiddy/pubrun/pkg/types"
)

func setConfigDefaults() {
	d := types.DefaultEngineConfig()
	viper.SetDefault("text_dir", d.TextDir)
	viper.SetDefault("article_digits", d.ArticleDigits)
	viper.SetDefault("file_digits", d.FileDigits)
	viper.SetDefault("annot_digits", d.AnnotDigits)
	viper.SetDefault("temp_dir", d.TempDir)
	viper.SetDefault("map_reduce_tmp_dir", d.MapReduceTmpDir)
	viper.SetDefault("batch_dir", d.BatchDir)
	viper.SetDefault("parallel", d.Parallel)
	viper.SetDefault("reduce_store", string(d.ReduceStore))
	viper.SetDefault("snippet.min_context", d.Snippet.MinContext)
	viper.SetDefault("snippet.max_context", d.Snippet.MaxContext)
	viper.SetDefault("otlp_endpoint", "")
}

// engineConfig builds the engine configuration from viper.
func engineConfig() (types.EngineConfig, error) {
	cfg := types.EngineConfig{
		TextDir:         viper.GetString("text_dir"),
		Datasets:        viper.GetStringMapString("datasets"),
		ArticleDigits:   viper.GetInt("article_digits"),
		FileDigits:      viper.GetInt("file_digits"),
		AnnotDigits:     viper.GetInt("annot_digits"),
		TempDir:         viper.GetString("temp_dir"),
		MapReduceTmpDir: viper.GetString("map_reduce_tmp_dir"),
		BatchDir:        viper.GetString("batch_dir"),
		Parallel:        viper.GetInt("parallel"),
		ReduceStore:     types.ReduceStore(viper.GetString("reduce_store")),
		OTLPEndpoint:    viper.GetString("otlp_endpoint"),
		Snippet: types.SnippetConfig{
			MinContext: viper.GetInt("snippet.min_context"),
			MaxContext: viper.GetInt("snippet.max_context"),
		},
	}
	if cfg.AnnotDigits < 1 || cfg.AnnotDigits > 9 || cfg.FileDigits < 1 || cfg.ArticleDigits < 1 {
		return cfg, fmt.Errorf("%w: invalid id digits %d/%d/%d", alg.ErrConfig, cfg.ArticleDigits, cfg.FileDigits, cfg.AnnotDigits)
	}
	if cfg.IDWidth() > 18 {
		return cfg, fmt.Errorf("%w: annotation ids of %d digits overflow int64", alg.ErrConfig, cfg.IDWidth())
	}
	return cfg, nil
}

// newRegistry returns a registry holding the built-in algorithms.
func newRegistry() *alg.Registry {
	reg := alg.NewRegistry()
	algorithms.Register(reg)
	return reg
}

// newEngine wires the engine from configuration.
func newEngine(cmd *cobra.Command) (*jobs.Engine, error) {
	cfg, err := engineConfig()
	if err != nil {
		return nil, err
	}
	flags, err := workerFlags(cmd)
	if err != nil {
		return nil, err
	}
	return &jobs.Engine{
		Config:      cfg,
		Registry:    newRegistry(),
		WorkerFlags: flags,
		Sectioner:   section.Headings{},
		Progress:    cmd.ErrOrStderr(),
	}, nil
}

// workerFlags returns the flags that make a worker load the configuration
// file and log level of this process. Workers may start in another
// directory, so the config file path is made absolute.
func workerFlags(cmd *cobra.Command) ([]string, error) {
	var flags []string
	if used := viper.ConfigFileUsed(); used != "" {
		abs, err := filepath.Abs(used)
		if err != nil {
			return nil, fmt.Errorf("resolving config file: %w", err)
		}
		flags = append(flags, "--config", abs)
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		flags = append(flags, "--debug")
	} else if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		flags = append(flags, "--quiet")
	}
	return flags, nil
}

// paramFlags registers the algorithm parameter flags on cmd.
func paramFlags(cmd *cobra.Command) {
	cmd.Flags().String("params", "", "YAML file of algorithm parameters")
	cmd.Flags().StringArray("param", nil, "algorithm parameter key=value (repeatable)")
}

// paramsFromFlags reads the --params file and applies --param overrides.
func paramsFromFlags(cmd *cobra.Command) (types.Params, error) {
	file, _ := cmd.Flags().GetString("params")
	kvs, _ := cmd.Flags().GetStringArray("param")
	return parseParams(file, kvs)
}

func parseParams(file string, kvs []string) (types.Params, error) {
	params := types.Params{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: reading parameters: %v", alg.ErrConfig, err)
		}
		var m map[string]any
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", alg.ErrConfig, file, err)
		}
		for k, v := range m {
			params[k] = v
		}
	}
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: parameter %q is not key=value", alg.ErrConfig, kv)
		}
		params[k] = v
	}
	return params, nil
}

// splitList splits a comma-separated argument.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
