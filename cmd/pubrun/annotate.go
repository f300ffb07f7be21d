// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubrun/internal/annotate"
	"github.com/pdiddy/pubrun/internal/jobs"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <algorithms> <datasets> <outDirs>",
	Short: "Annotate datasets with one or more algorithms",
	Long: `Annotate runs each algorithm (comma-separated) over every partition of the
datasets (comma-separated names or directories) and writes one
<dataset>_<partition>.tab.gz per partition into the algorithm's output
directory. Algorithms and output directories pair up by position.

Every algorithm is instantiated and started before any job is submitted.
Algorithms run together get disjoint annotation id ranges.`,
	Args: cobra.ExactArgs(3),
	RunE: runAnnotate,
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	params, err := paramsFromFlags(cmd)
	if err != nil {
		return err
	}
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}

	addFields, _ := cmd.Flags().GetStringSlice("add-fields")
	updates, _ := cmd.Flags().GetStringSlice("update")
	batchDir, _ := cmd.Flags().GetString("batch-dir")
	noWait, _ := cmd.Flags().GetBool("no-wait")
	cleanup, _ := cmd.Flags().GetBool("cleanup")
	concat, _ := cmd.Flags().GetBool("concat")

	names, err := e.Annotate(cmd.Context(), jobs.AnnotateRequest{
		Algs:      splitList(args[0]),
		Datasets:  splitList(args[1]),
		OutDirs:   splitList(args[2]),
		Params:    params,
		AddFields: addFields,
		UpdateIDs: updates,
		BatchDir:  batchDir,
		Wait:      !noWait,
		Cleanup:   cleanup,
		Concat:    concat,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Annotated %d partitions\n", len(names))
	return nil
}

var concatCmd = &cobra.Command{
	Use:   "concat <inDir> <outFile>",
	Short: "Concatenate the .tab.gz annotation files of a directory keeping one header line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := annotate.ConcatFiles(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Concatenated %d files into %s\n", n, args[1])
		return nil
	},
}

func init() {
	paramFlags(annotateCmd)
	annotateCmd.Flags().StringSlice("add-fields", nil, "article fields to add to every row (comma-separated)")
	annotateCmd.Flags().StringSlice("update", nil, "only process partitions of these updates")
	annotateCmd.Flags().String("batch-dir", "", "batch working directory (default: derived from the batch)")
	annotateCmd.Flags().Bool("no-wait", false, "return after submitting instead of waiting for the jobs")
	annotateCmd.Flags().Bool("cleanup", false, "remove parameter files and batch bookkeeping afterwards")
	annotateCmd.Flags().Bool("concat", false, "concatenate each output directory into <outDir>.tab")

	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(concatCmd)
}
