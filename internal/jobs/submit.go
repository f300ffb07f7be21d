// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jobs splits a run into one worker job per algorithm and input
// partition, submits the jobs to a batch runner and drives the annotate and
// map/reduce workflows built on top of them.
package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/internal/annotate"
	"github.com/pdiddy/pubrun/internal/batch"
	"github.com/pdiddy/pubrun/internal/fsutil"
	"github.com/pdiddy/pubrun/internal/section"
	"github.com/pdiddy/pubrun/internal/tracer"
	"github.com/pdiddy/pubrun/pkg/types"
)

const (
	// AnnotateExt is the extension of annotation job outputs.
	AnnotateExt = annotate.OutputExt

	// WorkerCommand is the subcommand that runs one job.
	WorkerCommand = "worker"
)

// Engine holds what every workflow needs.
type Engine struct {
	Config   types.EngineConfig
	Registry *alg.Registry

	// Runner receives the worker jobs. When nil a local runner is created
	// in the batch directory of each submission.
	Runner batch.Runner

	// Executable is the worker binary (default: the running executable).
	Executable string

	// WorkerFlags are appended to every worker command, so workers load the
	// same configuration and log level as the submitting process.
	WorkerFlags []string

	// Sectioner is used by local annotate runs.
	Sectioner section.Sectioner

	// Progress receives human-readable progress; nil discards it.
	Progress io.Writer

	Logger *slog.Logger
}

func (e *Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) progress() io.Writer {
	if e.Progress != nil {
		return e.Progress
	}
	return io.Discard
}

// SubmitRequest describes one batch of worker jobs.
type SubmitRequest struct {
	// Algs and OutDirs pair up: the jobs of Algs[i] write to OutDirs[i].
	Algs    []string
	OutDirs []string

	// Datasets are dataset names or directories of stored partitions.
	Datasets []string

	Mode   alg.Mode
	OutExt string
	Params types.Params

	// AddFields names article fields to add to annotation rows.
	AddFields []string

	// UpdateIDs restricts the partitions to the listed updates.
	UpdateIDs []string

	// BatchDir is where the runner and the parameter bundles live. Empty
	// selects a directory under the configured batch dir named after the
	// batch's contents.
	BatchDir string

	Wait    bool
	Cleanup bool
}

// BatchID returns a stable identifier for a batch of algs over datasets.
func BatchID(mode alg.Mode, algs, datasets []string) string {
	key := string(mode) + "\x00" + strings.Join(algs, ",") + "\x00" + strings.Join(datasets, ",")
	return fmt.Sprintf("%016x", murmur3.Sum64([]byte(key)))
}

// SubmitJobs creates one job per algorithm, dataset and partition and
// submits them. Each algorithm's parameters are written once, with its
// annotation id offset when several algorithms run together. It returns
// the output names (<dataset>_<partition>) of all partitions, sorted.
func (e *Engine) SubmitJobs(ctx context.Context, req SubmitRequest) (names []string, err error) {
	ctx, span := tracer.Start(ctx, "submit", attribute.String("mode", string(req.Mode)), attribute.StringSlice("algs", req.Algs))
	defer func() { tracer.End(span, err) }()
	log := e.log()

	if req.Mode != alg.ModeMap && req.Mode != alg.ModeAnnotate {
		return nil, fmt.Errorf("%w: cannot submit %q jobs", alg.ErrConfig, req.Mode)
	}
	if len(req.Algs) == 0 {
		return nil, fmt.Errorf("%w: no algorithm given", alg.ErrConfig)
	}
	if len(req.Algs) != len(req.OutDirs) {
		return nil, fmt.Errorf("%w: %d algorithms but %d output directories", alg.ErrConfig, len(req.Algs), len(req.OutDirs))
	}

	type dataset struct {
		dir   string
		parts []string
	}
	var inputs []dataset
	for _, name := range req.Datasets {
		dir, err := e.Config.ResolveTextDir(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoPartitions, err)
		}
		parts, err := FindPartitions(dir, req.UpdateIDs)
		if err != nil {
			return nil, err
		}
		log.Debug("found partitions", "dataset", name, "dir", dir, "count", len(parts))
		inputs = append(inputs, dataset{dir: dir, parts: parts})
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no dataset given", ErrNoPartitions)
	}

	exe, err := e.executable()
	if err != nil {
		return nil, err
	}

	runner, batchDir, err := e.runnerFor(req)
	if err != nil {
		return nil, err
	}
	if local, ok := runner.(*batch.LocalRunner); ok && runner != e.Runner {
		defer func() {
			if err != nil || (req.Wait && !req.Cleanup) {
				local.Close()
			}
		}()
	}

	outNames := make(map[string]bool)
	var paramFiles []string
	for n, algName := range req.Algs {
		outDir, err := filepath.Abs(req.OutDirs[n])
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}

		paramDir := batchDir
		if paramDir == "" {
			paramDir = outDir
		}
		paramFile := ParamPath(paramDir, algName)
		params := req.Params.Clone()
		if len(req.AddFields) > 0 {
			params[types.ParamAddFields] = req.AddFields
		}
		key := types.AnnotIDKey(alg.ShortName(algName))
		if _, ok := params[key]; !ok && len(req.Algs) > 1 {
			params[key] = IDOffset(n, len(req.Algs), e.Config.AnnotIDSpace())
		}
		if err := WriteParams(paramFile, params); err != nil {
			return nil, err
		}
		paramFiles = append(paramFiles, paramFile)

		for _, in := range inputs {
			for _, part := range in.parts {
				name := OutName(in.dir, part)
				outNames[name] = true
				out := filepath.Join(outDir, name) + req.OutExt
				args := []string{exe, WorkerCommand, algName, string(req.Mode), part, out, paramFile}
				cmd := batch.Command{
					Args:   append(args, e.WorkerFlags...),
					Output: out,
				}
				if err := runner.Submit(ctx, cmd); err != nil {
					return nil, fmt.Errorf("submitting %s: %w", cmd, err)
				}
			}
		}
	}
	log.Info("jobs submitted", "algs", len(req.Algs), "partitions", len(outNames), "batch_dir", runner.BatchDir())

	if err := runner.Finish(ctx, req.Wait, req.Cleanup); err != nil {
		return nil, err
	}
	if req.Cleanup {
		if req.Wait {
			for _, f := range paramFiles {
				if err := fsutil.RemoveIfExists(f); err != nil {
					return nil, err
				}
			}
		} else {
			log.Warn("jobs still running, keeping parameter files", "files", paramFiles)
		}
	}

	for name := range outNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (e *Engine) executable() (string, error) {
	if e.Executable != "" {
		return e.Executable, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating worker executable: %w", err)
	}
	return exe, nil
}

// runnerFor returns the runner for req and the directory that holds its
// parameter bundles.
func (e *Engine) runnerFor(req SubmitRequest) (batch.Runner, string, error) {
	if e.Runner != nil {
		if req.BatchDir != "" {
			return e.Runner, req.BatchDir, nil
		}
		return e.Runner, e.Runner.BatchDir(), nil
	}
	dir := req.BatchDir
	if dir == "" {
		dir = filepath.Join(e.Config.BatchDir, "pubrun-"+BatchID(req.Mode, req.Algs, req.Datasets))
	}
	r, err := batch.NewLocalRunner(dir, e.Config.Parallel, e.log())
	if err != nil {
		return nil, "", err
	}
	return r, dir, nil
}
