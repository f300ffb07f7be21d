// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mapreduce runs the two phases of a map/reduce algorithm. The map
// phase folds one stored partition into a key to values state and writes
// it as a partition output. The reduce phase merges every partition output
// by key and writes the reducer's rows as tab-separated text.
package mapreduce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/internal/codec"
	"github.com/pdiddy/pubrun/internal/fsutil"
	"github.com/pdiddy/pubrun/internal/tracer"
	"github.com/pdiddy/pubrun/pkg/types"
)

// PartitionExt marks partition output files.
const PartitionExt = ".msgpack.gz"

// ErrNoInput is returned when a reduction finds no partition outputs.
var ErrNoInput = errors.New("no partition outputs found")

// Source yields the articles of one partition with their selected files.
type Source interface {
	Each(sel types.Selection, fn func(article *types.Article, files []types.FileRecord) error) error
}

// MapOptions configures RunMap.
type MapOptions struct {
	Config types.EngineConfig
	Logger *slog.Logger
}

// RunMap runs inst's Map over every selected file of src and writes the
// final state to outName. The state is written to a local temporary file
// first and moved to outName once complete, so a reducer never reads a
// partial output.
func RunMap(ctx context.Context, src Source, inst *alg.Instance, params types.Params, outName string, opts MapOptions) (err error) {
	ctx, span := tracer.Start(ctx, "map", attribute.String("alg", inst.Name), attribute.String("out", outName))
	defer func() { tracer.End(span, err) }()

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("alg", inst.Name)

	if err := alg.Validate(inst, alg.ModeMap); err != nil {
		return err
	}
	if _, err := params.TakeAnnotIDOffset(inst.Name); err != nil {
		return fmt.Errorf("%w: %v", alg.ErrConfig, err)
	}

	state := alg.State{}
	if s, ok := inst.Impl.(alg.Starter); ok {
		log.Debug("running startup")
		if err := s.Startup(params, state); err != nil {
			return fmt.Errorf("startup of %s: %w", inst.Name, err)
		}
	}

	mapper := inst.Impl.(alg.Mapper)
	flags := alg.ResolveFlags(inst.Impl, params)
	log.Info("mapping", "only_main", flags.OnlyMain, "only_meta", flags.OnlyMeta, "best_main", flags.BestMain)

	var files int
	err = src.Each(flags.Selection(), func(article *types.Article, fs []types.FileRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, f := range fs {
			if err := mapper.Map(article, f, f.Text(), state); err != nil {
				return fmt.Errorf("mapping file %d: %w", f.FileID, err)
			}
			files++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if e, ok := inst.Impl.(alg.Ender); ok {
		log.Debug("running end", "keys", len(state))
		if state, err = e.End(state); err != nil {
			return fmt.Errorf("end of %s: %w", inst.Name, err)
		}
		if state == nil {
			state = alg.State{}
		}
	}

	tmp, err := fsutil.TempFile(opts.Config.TempDir, "pubRunMap*"+PartitionExt)
	if err != nil {
		return err
	}
	if err := codec.WriteFile(tmp, map[string]any(state)); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := fsutil.MoveFile(tmp, outName); err != nil {
		return err
	}
	log.Info("map finished", "files", files, "keys", len(state), "out", outName)
	return nil
}
