// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/pdiddy/pubrun/internal/fsutil"
)

const logsDir = "logs"

// executor abstracts process execution for testing.
type executor interface {
	Run(ctx context.Context, args []string, stdout, stderr io.Writer) (exitCode int, err error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (osExecutor) Run(ctx context.Context, args []string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

type queued struct {
	id  int64
	cmd Command
}

// LocalRunner runs submitted commands as child processes with bounded
// parallelism and records them in <batchDir>/batch.db.
type LocalRunner struct {
	dir      string
	parallel int
	exec     executor
	ledger   *ledger
	log      *slog.Logger

	mu      sync.Mutex
	pending []queued
	done    chan error

	// firstID is the first job submitted since the last Finish, 0 if none.
	firstID int64
}

// NewLocalRunner creates the batch directory and its job ledger. parallel
// below 1 runs one job at a time.
func NewLocalRunner(batchDir string, parallel int, log *slog.Logger) (*LocalRunner, error) {
	return newLocalRunner(batchDir, parallel, osExecutor{}, log)
}

func newLocalRunner(batchDir string, parallel int, exec executor, log *slog.Logger) (*LocalRunner, error) {
	if err := os.MkdirAll(filepath.Join(batchDir, logsDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating batch directory: %w", err)
	}
	l, err := openLedger(batchDir)
	if err != nil {
		return nil, err
	}
	if parallel < 1 {
		parallel = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &LocalRunner{
		dir:      batchDir,
		parallel: parallel,
		exec:     exec,
		ledger:   l,
		log:      log.With("batch", batchDir),
	}, nil
}

func (r *LocalRunner) BatchDir() string { return r.dir }

// Submit records cmd in the ledger and queues it. A command whose output
// already exists is recorded as skipped.
func (r *LocalRunner) Submit(ctx context.Context, cmd Command) error {
	if len(cmd.Args) == 0 {
		return errors.New("empty command")
	}
	id, err := r.ledger.add(cmd)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.firstID == 0 {
		r.firstID = id
	}
	r.mu.Unlock()
	if cmd.Output != "" && fsutil.Exists(cmd.Output) {
		r.log.Debug("output exists, skipping job", "job", id, "output", cmd.Output)
		return r.ledger.finish(id, StatusSkipped, 0, "output exists")
	}
	r.log.Debug("job queued", "job", id, "cmd", cmd.String())

	r.mu.Lock()
	r.pending = append(r.pending, queued{id: id, cmd: cmd})
	r.mu.Unlock()
	return nil
}

// Finish runs every queued job. Without wait the jobs run in the
// background; Wait collects their result.
func (r *LocalRunner) Finish(ctx context.Context, wait, cleanup bool) error {
	r.mu.Lock()
	jobs := r.pending
	firstID := r.firstID
	r.pending = nil
	r.firstID = 0
	done := make(chan error, 1)
	r.done = done
	r.mu.Unlock()

	r.log.Info("running batch", "jobs", len(jobs), "parallel", r.parallel)
	go func() {
		err := r.run(ctx, jobs, firstID)
		if cleanup {
			if cerr := r.Cleanup(); err == nil {
				err = cerr
			}
		}
		done <- err
	}()

	if !wait {
		return nil
	}
	return r.Wait(ctx)
}

// Wait blocks until the jobs started by the last Finish are done.
func (r *LocalRunner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *LocalRunner) run(ctx context.Context, jobs []queued, firstID int64) error {
	p := pool.New().WithMaxGoroutines(r.parallel).WithContext(ctx)
	for _, j := range jobs {
		p.Go(func(ctx context.Context) error {
			return r.runJob(ctx, j)
		})
	}
	err := p.Wait()

	counts, cerr := r.ledger.counts(firstID)
	if cerr == nil {
		r.log.Info("batch finished", "done", counts[StatusDone], "skipped", counts[StatusSkipped], "failed", counts[StatusFailed])
	}
	if err != nil {
		return fmt.Errorf("%w: %d failed: %w", ErrJobsFailed, counts[StatusFailed], err)
	}
	return nil
}

func (r *LocalRunner) runJob(ctx context.Context, j queued) error {
	if err := r.ledger.start(j.id); err != nil {
		return err
	}
	logPath := filepath.Join(r.dir, logsDir, fmt.Sprintf("job%05d.log", j.id))
	logFile, err := os.Create(logPath)
	if err != nil {
		return err
	}
	defer logFile.Close()

	r.log.Debug("job started", "job", j.id, "cmd", j.cmd.String())
	code, err := r.exec.Run(ctx, j.cmd.Args, logFile, logFile)
	switch {
	case err != nil:
		r.ledger.finish(j.id, StatusFailed, code, err.Error())
		return fmt.Errorf("job %d (%s): %w", j.id, j.cmd, err)
	case code != 0:
		r.ledger.finish(j.id, StatusFailed, code, "see "+logPath)
		return fmt.Errorf("job %d (%s): exit code %d, log %s", j.id, j.cmd, code, logPath)
	case j.cmd.Output != "" && !fsutil.Exists(j.cmd.Output):
		r.ledger.finish(j.id, StatusFailed, 0, "no output")
		return fmt.Errorf("job %d (%s): exited 0 without writing %s", j.id, j.cmd, j.cmd.Output)
	}
	r.log.Debug("job done", "job", j.id)
	return r.ledger.finish(j.id, StatusDone, 0, "")
}

// Jobs returns every job recorded in the ledger, in submission order.
func (r *LocalRunner) Jobs() ([]JobRecord, error) {
	return r.ledger.jobs()
}

// Cleanup closes the ledger and removes it together with the job logs.
func (r *LocalRunner) Cleanup() error {
	if err := r.ledger.close(); err != nil {
		return err
	}
	for _, name := range []string{ledgerFile, ledgerFile + "-wal", ledgerFile + "-shm"} {
		if err := fsutil.RemoveIfExists(filepath.Join(r.dir, name)); err != nil {
			return err
		}
	}
	return os.RemoveAll(filepath.Join(r.dir, logsDir))
}

// Close releases the ledger without removing it.
func (r *LocalRunner) Close() error {
	return r.ledger.close()
}
