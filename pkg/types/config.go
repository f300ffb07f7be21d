package types

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// ReduceStore selects where the reducer keeps merged partition data.
type ReduceStore string

const (
	ReduceStoreMemory ReduceStore = "memory"
	ReduceStoreBolt   ReduceStore = "bolt"
)

// SnippetConfig bounds the context window around an annotated span.
type SnippetConfig struct {
	// MinContext is the number of characters always kept on each side (default 0).
	MinContext int `json:"min_context" yaml:"min_context"`

	// MaxContext is the widest context taken on each side (default 250).
	MaxContext int `json:"max_context" yaml:"max_context"`
}

// EngineConfig holds the settings shared by the partitioner and the workers.
// It also resolves dataset names to directories of stored partitions.
type EngineConfig struct {
	// TextDir is the base directory that holds one subdirectory per dataset.
	TextDir string `json:"text_dir" yaml:"text_dir"`

	// Datasets maps dataset names to explicit directories, overriding TextDir.
	Datasets map[string]string `json:"datasets,omitempty" yaml:"datasets,omitempty"`

	// ArticleDigits, FileDigits and AnnotDigits are the fixed decimal widths
	// of the article, file and annotation parts of an annotation id
	// (defaults 10, 3, 5).
	ArticleDigits int `json:"article_digits" yaml:"article_digits"`
	FileDigits    int `json:"file_digits" yaml:"file_digits"`
	AnnotDigits   int `json:"annot_digits" yaml:"annot_digits"`

	// TempDir is the local scratch directory for worker output before it is
	// moved to its final location (default os.TempDir()).
	TempDir string `json:"temp_dir" yaml:"temp_dir"`

	// MapReduceTmpDir is the base directory for map outputs awaiting reduce.
	MapReduceTmpDir string `json:"map_reduce_tmp_dir" yaml:"map_reduce_tmp_dir"`

	// BatchDir is the default batch working directory (default ".").
	BatchDir string `json:"batch_dir" yaml:"batch_dir"`

	// Parallel is the number of jobs the local runner executes at once.
	Parallel int `json:"parallel" yaml:"parallel"`

	// ReduceStore selects the merged-data backend: memory or bolt.
	ReduceStore ReduceStore `json:"reduce_store" yaml:"reduce_store"`

	// OTLPEndpoint enables span export when non-empty (e.g. "localhost:4318").
	OTLPEndpoint string `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty"`

	Snippet SnippetConfig `json:"snippet" yaml:"snippet"`
}

// DefaultEngineConfig returns the configuration used when no file or
// environment overrides a value.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TextDir:         "text",
		ArticleDigits:   10,
		FileDigits:      3,
		AnnotDigits:     5,
		TempDir:         os.TempDir(),
		MapReduceTmpDir: "mapReduceTmp",
		BatchDir:        ".",
		Parallel:        4,
		ReduceStore:     ReduceStoreMemory,
		Snippet:         SnippetConfig{MinContext: 0, MaxContext: 250},
	}
}

// IDWidth is the total number of decimal digits of an annotation id.
func (c EngineConfig) IDWidth() int {
	return c.ArticleDigits + c.FileDigits + c.AnnotDigits
}

// AnnotIDSpace is the number of annotation ids available per file,
// 10^AnnotDigits.
func (c EngineConfig) AnnotIDSpace() int64 {
	return int64(math.Pow10(c.AnnotDigits))
}

// ResolveTextDir maps a dataset name to the directory holding its stored
// partitions. An existing directory path is returned unchanged.
func (c EngineConfig) ResolveTextDir(dataset string) (string, error) {
	if dataset == "" {
		return "", fmt.Errorf("empty dataset name")
	}
	if info, err := os.Stat(dataset); err == nil && info.IsDir() {
		return dataset, nil
	}
	if dir, ok := c.Datasets[dataset]; ok {
		return dir, nil
	}
	dir := filepath.Join(c.TextDir, dataset)
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("resolving dataset %s: %w", dataset, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("resolving dataset %s: %s is not a directory", dataset, dir)
	}
	return dir, nil
}
