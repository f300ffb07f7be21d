// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/pubrun/internal/pubstore"
)

// ErrNoPartitions is returned when a dataset has no matching partitions.
var ErrNoPartitions = errors.New("no input partitions found")

// FindPartitions returns the base paths of the stored partitions in dir,
// sorted. A base is the file name up to its first ".". With updateIDs, only
// partitions named "<updateID>_..." are kept.
func FindPartitions(dir string, updateIDs []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPartitions, err)
	}

	seen := make(map[string]bool)
	var bases []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, pubstore.ArticlesExt) {
			continue
		}
		base := name
		if i := strings.Index(name, "."); i >= 0 {
			base = name[:i]
		}
		if seen[base] || !matchesUpdate(base, updateIDs) {
			continue
		}
		seen[base] = true
		bases = append(bases, filepath.Join(dir, base))
	}

	if len(bases) == 0 {
		if len(updateIDs) > 0 {
			return nil, fmt.Errorf("%w in %s for updates %v", ErrNoPartitions, dir, updateIDs)
		}
		return nil, fmt.Errorf("%w: no *%s files in %s", ErrNoPartitions, pubstore.ArticlesExt, dir)
	}
	sort.Strings(bases)
	return bases, nil
}

func matchesUpdate(base string, updateIDs []string) bool {
	if len(updateIDs) == 0 {
		return true
	}
	for _, id := range updateIDs {
		if strings.HasPrefix(base, id+"_") {
			return true
		}
	}
	return false
}

// OutName returns the output name of a partition: the dataset directory's
// name and the partition base joined by "_".
func OutName(datasetDir, partition string) string {
	return filepath.Base(filepath.Clean(datasetDir)) + "_" + filepath.Base(partition)
}

// IDOffset returns the first annotation id offset of the n-th of count
// algorithms sharing an id space of the given size. The ranges
// [IDOffset(n), IDOffset(n+1)) of different algorithms never overlap.
func IDOffset(n, count int, space int64) int64 {
	if count <= 0 {
		return 0
	}
	return int64(n) * (space / int64(count))
}
