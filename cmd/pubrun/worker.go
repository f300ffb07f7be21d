// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/internal/jobs"
)

var workerCmd = &cobra.Command{
	Use:   "worker <algorithm> <map|annotate> <inPartition> <outFile|stdout> <paramFile>",
	Short: "Run one job: an algorithm over one stored partition",
	Long: `Worker runs one algorithm over one stored partition. In annotate mode it
writes annotation rows, in map mode the partition's map output. The
parameter file is the bundle written at submission time.

Submitted jobs invoke this command; it is also useful for debugging a
single partition.`,
	Args:   cobra.ExactArgs(5),
	Hidden: true,
	RunE:   runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	algName, mode, in, out, paramFile := args[0], alg.Mode(args[1]), args[2], args[3], args[4]

	params, err := jobs.ReadParams(paramFile)
	if err != nil {
		return err
	}
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}
	slog.Debug("worker starting", "alg", algName, "mode", mode, "in", in, "out", out)

	switch mode {
	case alg.ModeAnnotate:
		return e.LocalAnnotate(cmd.Context(), algName, in, out, params)
	case alg.ModeMap:
		return e.LocalMap(cmd.Context(), algName, in, out, params)
	}
	return fmt.Errorf("%w: unknown worker mode %q, use map or annotate", alg.ErrConfig, mode)
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
