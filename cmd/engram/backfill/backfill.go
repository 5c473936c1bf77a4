// Package backfillcmder provides the `engram backfill` CLI command.
package backfillcmder

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/engramlabs/engram/cmd/engram/runtime"
	"github.com/engramlabs/engram/pkg/backfill"
	"github.com/engramlabs/engram/pkg/logger"
)

const backfillLongDesc string = `Ingest a directory of historical window files.

Scans the directory recursively for JSON window files of the form
{"owner": "...", "turns": [...]} and runs each through the memory pipeline.
Malformed files are counted and skipped, never fatal. Runs for the same
owner serialize on the owner lock; distinct owners process in parallel
across the worker pool.

Examples:
  engram backfill ./exports
  engram backfill ./exports --dry-run
  engram backfill ./exports --workers 8`

const backfillShortDesc string = "Ingest a directory of window files"

type backfillCommander struct {
	dryRun  bool
	workers uint
	flags   runtime.PipelineFlags

	v *viper.Viper
}

// NewBackfillCmd creates the backfill cobra command.
func NewBackfillCmd() *cobra.Command {
	cmder := &backfillCommander{}

	cmd := &cobra.Command{
		Use:   "backfill <dir>",
		Short: backfillShortDesc,
		Long:  backfillLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.v, err = runtime.InitPipelineViper(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd, configDir, args[0], debug)
		},
	}

	cmd.Flags().BoolVar(&cmder.dryRun, "dry-run", false, "Parse and validate window files without ingesting")
	cmd.Flags().UintVarP(&cmder.workers, "workers", "w", 0, "Ingestion pool size (0 = default)")
	runtime.AddPipelineFlags(cmd, &cmder.flags)

	return cmd
}

func (c *backfillCommander) run(cmd *cobra.Command, configDir, dir string, debug bool) error {
	log := logger.NewLogger(debug)
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()

	rt, err := runtime.Build(ctx, c.v, configDir, log)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if c.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "Dry run mode: no windows will be ingested")
	}

	b := backfill.NewBackfiller(rt.Orchestrator, backfill.Options{
		DryRun:  c.dryRun,
		Workers: c.workers,
	}, log)

	result, err := b.Run(ctx, dir)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
	return nil
}
