// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mapreduce

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/internal/codec"
	"github.com/pdiddy/pubrun/internal/fsutil"
	"github.com/pdiddy/pubrun/internal/pubstore"
	"github.com/pdiddy/pubrun/internal/tracer"
	"github.com/pdiddy/pubrun/pkg/types"
)

// progressEvery is the number of keys between progress lines.
const progressEvery = 10000

// ReduceOptions configures RunReduce.
type ReduceOptions struct {
	Config types.EngineConfig

	// NoHeader suppresses the header line.
	NoHeader bool

	// Progress receives human-readable progress lines; nil discards them.
	Progress io.Writer

	Logger *slog.Logger
}

// FindPartitions returns the partition outputs under inPath: inPath itself
// when it is a file, otherwise every file below it ending in PartitionExt,
// in lexical path order.
func FindPartitions(inPath string) ([]string, error) {
	info, err := os.Stat(inPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoInput, err)
	}
	if !info.IsDir() {
		return []string{inPath}, nil
	}

	var paths []string
	err = filepath.WalkDir(inPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, PartitionExt) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInput, inPath)
	}
	sort.Strings(paths)
	return paths, nil
}

// Merge reads every partition output into store. Scalar values are added as
// one-element lists. Keys of one partition are merged in sorted order.
func Merge(ctx context.Context, paths []string, store Store, progress io.Writer) error {
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		var part map[string]any
		if err := codec.ReadFile(path, &part); err != nil {
			return err
		}
		keys := make([]string, 0, len(part))
		for k := range part {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := store.Append(k, asList(part[k])); err != nil {
				return fmt.Errorf("merging %s: %w", path, err)
			}
		}
		fmt.Fprintf(progress, "merged %d of %d partitions (%d keys)\n", i+1, len(paths), store.Len())
	}
	return nil
}

func asList(v any) []any {
	switch vv := v.(type) {
	case []any:
		return vv
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	}
	return []any{v}
}

// RunReduce merges the partition outputs at inPath and writes inst's
// reduction to outName ("stdout" for standard output). An existing output
// file is removed first.
func RunReduce(ctx context.Context, inst *alg.Instance, params types.Params, inPath, outName string, opts ReduceOptions) (err error) {
	ctx, span := tracer.Start(ctx, "reduce", attribute.String("alg", inst.Name), attribute.String("in", inPath))
	defer func() { tracer.End(span, err) }()

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("alg", inst.Name)
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}

	if err := alg.Validate(inst, alg.ModeReduce); err != nil {
		return err
	}
	if outName != fsutil.Stdout {
		if err := fsutil.RemoveIfExists(outName); err != nil {
			return err
		}
	}
	if s, ok := inst.Impl.(alg.Starter); ok {
		if err := s.Startup(params, alg.State{}); err != nil {
			return fmt.Errorf("startup of %s: %w", inst.Name, err)
		}
	}

	paths, err := FindPartitions(inPath)
	if err != nil {
		return err
	}
	log.Info("reducing", "partitions", len(paths), "in", inPath, "store", opts.Config.ReduceStore)

	store, err := NewStore(opts.Config.ReduceStore, opts.Config.TempDir)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := Merge(ctx, paths, store, progress); err != nil {
		return err
	}

	out, err := fsutil.CreateOutput(outName, opts.Config.TempDir)
	if err != nil {
		return err
	}
	rows, err := reduceTo(ctx, out, inst, params, store, opts.NoHeader, progress)
	if err != nil {
		out.Abort()
		return err
	}
	if err := out.Commit(); err != nil {
		return err
	}
	log.Info("reduce finished", "keys", store.Len(), "rows", rows, "out", outName)
	return nil
}

func reduceTo(ctx context.Context, w io.Writer, inst *alg.Instance, params types.Params, data Store, noHeader bool, progress io.Writer) (int, error) {
	if !noHeader {
		if _, err := io.WriteString(w, strings.Join(alg.Headers(inst.Impl), "\t")+"\n"); err != nil {
			return 0, err
		}
	}
	if rs, ok := inst.Impl.(alg.ReduceStarter); ok {
		if err := rs.ReduceStartup(data, params, w); err != nil {
			return 0, fmt.Errorf("reduce startup of %s: %w", inst.Name, err)
		}
	}

	reducer := inst.Impl.(alg.Reducer)
	keys, err := data.Keys()
	if err != nil {
		return 0, err
	}
	var count int
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		values, err := data.Values(key)
		if err != nil {
			return count, err
		}
		rows, err := reducer.Reduce(key, values)
		if err != nil {
			return count, fmt.Errorf("reducing key %q: %w", key, err)
		}
		for _, row := range rows {
			fields, ok := rowFields(row)
			if !ok {
				continue
			}
			if _, err := io.WriteString(w, strings.Join(fields, "\t")+"\n"); err != nil {
				return count, err
			}
			count++
		}
		if (i+1)%progressEvery == 0 {
			fmt.Fprintf(progress, "reduced %d of %d keys\n", i+1, len(keys))
		}
	}
	return count, nil
}

// rowFields converts one reducer row to text fields. nil rows are skipped
// and scalars become single-field rows.
func rowFields(row any) ([]string, bool) {
	switch r := row.(type) {
	case nil:
		return nil, false
	case []string:
		out := make([]string, len(r))
		for i, s := range r {
			out[i] = pubstore.RemoveTabNl(s)
		}
		return out, true
	case []any:
		out := make([]string, len(r))
		for i, v := range r {
			out[i] = pubstore.RemoveTabNl(formatField(v))
		}
		return out, true
	}
	return []string{pubstore.RemoveTabNl(formatField(row))}, true
}

func formatField(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case []byte:
		return string(vv)
	}
	return fmt.Sprint(v)
}
