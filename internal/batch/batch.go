// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch defines the scheduler contract jobs are submitted through
// and a local implementation that runs them on this machine.
package batch

import (
	"context"
	"errors"
	"strings"
)

// ErrJobsFailed is returned by Finish when one or more jobs failed.
var ErrJobsFailed = errors.New("batch jobs failed")

// Command is one worker invocation.
type Command struct {
	// Args is the argument vector; Args[0] is the executable.
	Args []string

	// Output is the file the command produces, if any. A job whose output
	// already exists is not run again.
	Output string
}

// String returns the command as a shell-like line.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Runner accepts worker commands and runs them as one batch.
type Runner interface {
	// Submit queues a command.
	Submit(ctx context.Context, cmd Command) error

	// Finish starts the queued commands. With wait it blocks until all
	// have finished and reports failures; cleanup removes the runner's
	// bookkeeping once the batch is done.
	Finish(ctx context.Context, wait, cleanup bool) error

	// BatchDir is the runner's working directory.
	BatchDir() string
}
