// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/internal/annotate"
	"github.com/pdiddy/pubrun/internal/fsutil"
	"github.com/pdiddy/pubrun/internal/mapreduce"
	"github.com/pdiddy/pubrun/internal/pubstore"
	"github.com/pdiddy/pubrun/pkg/types"
)

// AnnotateRequest describes an annotation run.
type AnnotateRequest struct {
	Algs      []string
	OutDirs   []string
	Datasets  []string
	Params    types.Params
	AddFields []string
	UpdateIDs []string
	BatchDir  string
	Wait      bool
	Cleanup   bool

	// Concat merges each output directory into <outDir>.tab once the jobs
	// are done. It implies Wait.
	Concat bool
}

// Annotate checks every algorithm, then submits one annotate job per
// algorithm and partition. No job is submitted if any algorithm fails its
// check.
func (e *Engine) Annotate(ctx context.Context, req AnnotateRequest) ([]string, error) {
	log := e.log()
	for _, name := range req.Algs {
		log.Debug("testing algorithm startup", "alg", name)
		if _, err := e.Registry.Check(name, req.Params, alg.ModeAnnotate); err != nil {
			return nil, err
		}
	}
	log.Debug("algorithms ok, submitting jobs")

	names, err := e.SubmitJobs(ctx, SubmitRequest{
		Algs:      req.Algs,
		OutDirs:   req.OutDirs,
		Datasets:  req.Datasets,
		Mode:      alg.ModeAnnotate,
		OutExt:    AnnotateExt,
		Params:    req.Params,
		AddFields: req.AddFields,
		UpdateIDs: req.UpdateIDs,
		BatchDir:  req.BatchDir,
		Wait:      req.Wait || req.Concat,
		Cleanup:   req.Cleanup,
	})
	if err != nil {
		return nil, err
	}

	if req.Concat {
		for _, dir := range req.OutDirs {
			out := strings.TrimRight(dir, string(filepath.Separator)) + ".tab"
			n, err := annotate.ConcatFiles(dir, out)
			if err != nil {
				return names, err
			}
			fmt.Fprintf(e.progress(), "Concatenated %d files into %s\n", n, out)
		}
	}
	return names, nil
}

// MapReduceRequest describes a map/reduce run.
type MapReduceRequest struct {
	Alg      string
	Datasets []string
	OutFile  string
	Params   types.Params

	// TmpDir holds the map outputs (default <map_reduce_tmp_dir>/<alg>).
	TmpDir string

	UpdateIDs []string
	BatchDir  string

	// RunTest maps and reduces one partition locally before submitting.
	RunTest bool

	// OnlyTest stops after the test run.
	OnlyTest bool

	// SkipMap reuses the map outputs already in TmpDir.
	SkipMap bool

	// Cleanup removes TmpDir and the batch bookkeeping afterwards.
	Cleanup bool
}

// testRunLines is the number of reducer output lines logged by a test run.
const testRunLines = 10

// MapReduce maps every partition of the datasets through a batch of jobs
// and reduces their outputs into OutFile.
func (e *Engine) MapReduce(ctx context.Context, req MapReduceRequest) error {
	log := e.log()
	if len(req.Datasets) == 0 {
		return fmt.Errorf("%w: no dataset given", ErrNoPartitions)
	}
	if _, err := e.Registry.Check(req.Alg, req.Params, alg.ModeMap, alg.ModeReduce); err != nil {
		return err
	}

	tmpDir := req.TmpDir
	if tmpDir == "" {
		tmpDir = filepath.Join(e.Config.MapReduceTmpDir, alg.ShortName(req.Alg))
	}
	if req.SkipMap {
		if info, err := os.Stat(tmpDir); err != nil || !info.IsDir() {
			return fmt.Errorf("%w: map output directory %s does not exist", mapreduce.ErrNoInput, tmpDir)
		}
	} else {
		if fsutil.Exists(tmpDir) {
			log.Info("deleting map/reduce temp directory", "dir", tmpDir)
			if err := os.RemoveAll(tmpDir); err != nil {
				return err
			}
		}
		if err := os.MkdirAll(tmpDir, 0o755); err != nil {
			return fmt.Errorf("creating map/reduce temp directory: %w", err)
		}
	}

	if req.RunTest || req.OnlyTest {
		if err := e.TestRun(ctx, req); err != nil {
			return fmt.Errorf("test run: %w", err)
		}
	}
	if req.OnlyTest {
		return nil
	}

	if !req.SkipMap {
		_, err := e.SubmitJobs(ctx, SubmitRequest{
			Algs:      []string{req.Alg},
			OutDirs:   []string{tmpDir},
			Datasets:  req.Datasets,
			Mode:      alg.ModeMap,
			OutExt:    mapreduce.PartitionExt,
			Params:    req.Params,
			UpdateIDs: req.UpdateIDs,
			BatchDir:  req.BatchDir,
			Wait:      true,
			Cleanup:   req.Cleanup,
		})
		if err != nil {
			return err
		}
	}

	inst, err := e.Registry.Resolve(req.Alg, alg.ModeReduce.DefaultClass())
	if err != nil {
		return err
	}
	err = mapreduce.RunReduce(ctx, inst, req.Params.Clone(), tmpDir, req.OutFile, mapreduce.ReduceOptions{
		Config:   e.Config,
		Progress: e.progress(),
		Logger:   log,
	})
	if err != nil {
		return err
	}

	if req.Cleanup && !req.SkipMap {
		log.Info("deleting map/reduce temp directory", "dir", tmpDir)
		return os.RemoveAll(tmpDir)
	}
	return nil
}

// TestRun maps the first partition of the first dataset and reduces it into
// a file in the local temp dir, logging the first lines of the result. No
// job is submitted.
func (e *Engine) TestRun(ctx context.Context, req MapReduceRequest) error {
	log := e.log()
	dir, err := e.Config.ResolveTextDir(req.Datasets[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoPartitions, err)
	}
	var updates []string
	if len(req.UpdateIDs) > 0 {
		updates = req.UpdateIDs[:1]
	}
	parts, err := FindPartitions(dir, updates)
	if err != nil {
		return err
	}

	mapOut := filepath.Join(e.Config.TempDir, "pubMapReduceTest"+mapreduce.PartitionExt)
	redOut := filepath.Join(e.Config.TempDir, "pubRunMapReduce_TestOutput.tmp")
	log.Info("testing algorithm", "alg", req.Alg, "partition", parts[0])

	if !req.SkipMap || !fsutil.Exists(mapOut) {
		inst, err := e.Registry.Resolve(req.Alg, alg.ModeMap.DefaultClass())
		if err != nil {
			return err
		}
		src, err := pubstore.Open(parts[0], e.Config.FileDigits)
		if err != nil {
			return err
		}
		err = mapreduce.RunMap(ctx, src, inst, req.Params.Clone(), mapOut, mapreduce.MapOptions{Config: e.Config, Logger: log})
		src.Close()
		if err != nil {
			return err
		}
	}

	inst, err := e.Registry.Resolve(req.Alg, alg.ModeReduce.DefaultClass())
	if err != nil {
		return err
	}
	err = mapreduce.RunReduce(ctx, inst, req.Params.Clone(), mapOut, redOut, mapreduce.ReduceOptions{Config: e.Config, Logger: log})
	if err != nil {
		return err
	}

	f, err := os.Open(redOut)
	if err != nil {
		return err
	}
	defer f.Close()
	log.Info("example reducer output")
	sc := bufio.NewScanner(f)
	for i := 0; i < testRunLines && sc.Scan(); i++ {
		log.Info(sc.Text())
	}
	log.Info("test output kept", "file", redOut)
	return sc.Err()
}

// LocalAnnotate runs one annotate job in this process. It is what a worker
// executes.
func (e *Engine) LocalAnnotate(ctx context.Context, algName, inPath, outName string, params types.Params) error {
	inst, err := e.Registry.Resolve(algName, alg.ModeAnnotate.DefaultClass())
	if err != nil {
		return err
	}
	src, err := pubstore.Open(inPath, e.Config.FileDigits)
	if err != nil {
		return fmt.Errorf("%w: %w", alg.ErrConfig, err)
	}
	defer src.Close()
	return annotate.RunAnnotate(ctx, src, inst, params, outName, annotate.RunOptions{
		Config:    e.Config,
		Sectioner: e.Sectioner,
		Logger:    e.log(),
	})
}

// LocalMap runs one map job in this process.
func (e *Engine) LocalMap(ctx context.Context, algName, inPath, outName string, params types.Params) error {
	inst, err := e.Registry.Resolve(algName, alg.ModeMap.DefaultClass())
	if err != nil {
		return err
	}
	src, err := pubstore.Open(inPath, e.Config.FileDigits)
	if err != nil {
		return fmt.Errorf("%w: %w", alg.ErrConfig, err)
	}
	defer src.Close()
	return mapreduce.RunMap(ctx, src, inst, params, outName, mapreduce.MapOptions{Config: e.Config, Logger: e.log()})
}

// Reduce merges the map outputs at inPath (a directory or one file) into
// outName.
func (e *Engine) Reduce(ctx context.Context, algName, inPath, outName string, params types.Params) error {
	inst, err := e.Registry.Resolve(algName, alg.ModeReduce.DefaultClass())
	if err != nil {
		return err
	}
	return mapreduce.RunReduce(ctx, inst, params, inPath, outName, mapreduce.ReduceOptions{
		Config:   e.Config,
		Progress: e.progress(),
		Logger:   e.log(),
	})
}
