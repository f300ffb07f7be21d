// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubrun/internal/jobs"
)

var mapReduceCmd = &cobra.Command{
	Use:   "mapreduce <algorithm> <datasets> <outFile>",
	Short: "Map datasets with an algorithm and reduce the results into one table",
	Long: `MapReduce first maps one partition locally as a test, then submits one map
job per partition, waits for all of them, and reduces their outputs into a
single tab-separated file.`,
	Args: cobra.ExactArgs(3),
	RunE: runMapReduce,
}

func runMapReduce(cmd *cobra.Command, args []string) error {
	params, err := paramsFromFlags(cmd)
	if err != nil {
		return err
	}
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}

	tmpDir, _ := cmd.Flags().GetString("tmp-dir")
	updates, _ := cmd.Flags().GetStringSlice("update")
	batchDir, _ := cmd.Flags().GetString("batch-dir")
	noTest, _ := cmd.Flags().GetBool("no-test")
	onlyTest, _ := cmd.Flags().GetBool("only-test")
	skipMap, _ := cmd.Flags().GetBool("skip-map")
	cleanup, _ := cmd.Flags().GetBool("cleanup")

	return e.MapReduce(cmd.Context(), jobs.MapReduceRequest{
		Alg:       args[0],
		Datasets:  splitList(args[1]),
		OutFile:   args[2],
		Params:    params,
		TmpDir:    tmpDir,
		UpdateIDs: updates,
		BatchDir:  batchDir,
		RunTest:   !noTest,
		OnlyTest:  onlyTest,
		SkipMap:   skipMap,
		Cleanup:   cleanup,
	})
}

var reduceCmd = &cobra.Command{
	Use:   "reduce <algorithm> <inPath> <outFile|stdout>",
	Short: "Reduce map outputs (a directory or a single file)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := paramsFromFlags(cmd)
		if err != nil {
			return err
		}
		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		return e.Reduce(cmd.Context(), args[0], args[1], args[2], params)
	},
}

var algorithmsCmd = &cobra.Command{
	Use:   "algorithms",
	Short: "List the available algorithms",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range newRegistry().Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	paramFlags(mapReduceCmd)
	mapReduceCmd.Flags().String("tmp-dir", "", "directory for map outputs (default: <map_reduce_tmp_dir>/<algorithm>)")
	mapReduceCmd.Flags().StringSlice("update", nil, "only process partitions of these updates")
	mapReduceCmd.Flags().String("batch-dir", "", "batch working directory (default: derived from the batch)")
	mapReduceCmd.Flags().Bool("no-test", false, "skip the local test run on one partition")
	mapReduceCmd.Flags().Bool("only-test", false, "stop after the local test run")
	mapReduceCmd.Flags().Bool("skip-map", false, "reuse existing map outputs and only reduce")
	mapReduceCmd.Flags().Bool("cleanup", false, "remove map outputs and batch bookkeeping afterwards")

	paramFlags(reduceCmd)

	rootCmd.AddCommand(mapReduceCmd)
	rootCmd.AddCommand(reduceCmd)
	rootCmd.AddCommand(algorithmsCmd)
}
