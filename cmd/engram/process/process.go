// Package processcmder provides the process command for running one
// conversation window through the memory pipeline.
package processcmder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/cmd/engram/runtime"
	"github.com/engramlabs/engram/pkg/backfill"
	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/consolidate"
	"github.com/engramlabs/engram/pkg/conversation"
	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/pipeline"
	"github.com/engramlabs/engram/pkg/utils"
)

const processLongDesc string = `Process a conversation window into durable facts.

Reads a window file and runs it through the memory pipeline: fact
extraction, neighbor retrieval, consolidation against the owner's existing
facts, and commit. Facts contradicted by the window are transitioned to
outdated, never deleted.

A window file is JSON of the form:
  {"owner": "u1", "turns": [{"role": "user", "content": "..."}]}

With --owner set, the file may instead be a bare turns array; pass "-" to
read from stdin.

Examples:
  engram process window.json
  engram process --owner u1 turns.json
  echo '[{"role":"user","content":"I moved to Berlin"}]' | engram process --owner u1 -`

const processShortDesc string = "Process a conversation window into facts"

type processCommander struct {
	owner string
	flags runtime.PipelineFlags

	v      *viper.Viper
	debug  bool
	logger *zap.Logger
}

func NewProcessCmd() *cobra.Command {
	cmder := &processCommander{}

	cmd := &cobra.Command{
		Use:   "process <window-file>",
		Short: processShortDesc,
		Long:  processLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.v, err = runtime.InitPipelineViper(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd, configDir, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.owner, "owner", "o", "", "Owner for bare turns input (omit for {owner,turns} window files)")
	runtime.AddPipelineFlags(cmd, &cmder.flags)

	return cmd
}

func (c *processCommander) run(cmd *cobra.Command, configDir, path string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	owner, window, err := c.readWindow(path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	rt, err := runtime.Build(ctx, c.v, configDir, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	var result pipeline.Result
	err = cliui.Step(os.Stdout, fmt.Sprintf("Processing %d turns for %s", len(window), owner), func() error {
		var runErr error
		result, runErr = rt.Orchestrator.ProcessWindow(ctx, owner, window)
		return runErr
	})
	if err != nil {
		return renderFailure(err)
	}

	renderResult(owner, result)
	return nil
}

// readWindow loads the window from the given path ("-" means stdin). With
// --owner set the input is a bare turns array; otherwise it must be a full
// {owner, turns} window file.
func (c *processCommander) readWindow(path string) (string, conversation.Window, error) {
	if c.owner != "" {
		data, err := readInput(path)
		if err != nil {
			return "", nil, err
		}

		var window conversation.Window
		if err := json.Unmarshal(data, &window); err != nil {
			return "", nil, fmt.Errorf("parsing turns: %w", err)
		}
		if err := window.Validate(); err != nil {
			return "", nil, err
		}
		return c.owner, window, nil
	}

	if path == "-" {
		data, err := readInput(path)
		if err != nil {
			return "", nil, err
		}

		var wf backfill.WindowFile
		if err := json.Unmarshal(data, &wf); err != nil {
			return "", nil, fmt.Errorf("parsing window file: %w", err)
		}
		if wf.Owner == "" {
			return "", nil, errors.New("window file has no owner; pass --owner for bare turns input")
		}
		if err := wf.Turns.Validate(); err != nil {
			return "", nil, err
		}
		return wf.Owner, wf.Turns, nil
	}

	wf, err := backfill.ParseWindowFile(path)
	if err != nil {
		return "", nil, err
	}
	if wf.Owner == "" {
		return "", nil, errors.New("window file has no owner; pass --owner for bare turns input")
	}
	return wf.Owner, wf.Turns, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading window file: %w", err)
	}
	return data, nil
}

func renderResult(owner string, result pipeline.Result) {
	if len(result.Committed) == 0 {
		fmt.Printf("\n  %s No durable facts in this window.\n\n", cliui.DimStyle.Render("●"))
		return
	}

	var inserted, outdated int
	for _, f := range result.Committed {
		if f.Status == fact.StatusOutdated {
			outdated++
		} else {
			inserted++
		}
	}

	fmt.Printf("\n  %s %s\n\n",
		cliui.HeaderStyle.Render("Committed facts for"),
		cliui.NameStyle.Render(owner),
	)

	for _, f := range result.Committed {
		fmt.Printf("  %s  %s  %s  %s\n",
			cliui.IDStyle.Render(shortID(f.ID)),
			cliui.StatusBadge(string(f.Status)),
			cliui.KeyStyle.Render(string(f.Category)),
			cliui.PreviewStyle.Render(utils.Truncate(f.Content, 72)),
		)
	}

	fmt.Printf("\n  %s %d new, %d outdated\n", cliui.SuccessMark, inserted, outdated)

	if len(result.Failed) > 0 {
		fmt.Printf("  %s %d commit actions failed:\n", cliui.WarnStyle.Render("!"), len(result.Failed))
		for _, af := range result.Failed {
			id := af.Action.TargetID
			if af.Action.Op == consolidate.OpInsert {
				id = af.Action.Fact.ID
			}
			fmt.Printf("    %s %s\n", cliui.IDStyle.Render(shortID(id)), cliui.DimStyle.Render(af.Err.Error()))
		}
	}

	fmt.Println()
}

func renderFailure(err error) error {
	var perr *pipeline.Error
	if errors.As(err, &perr) {
		return fmt.Errorf("pipeline failed at %s (%s): %w", perr.Stage, perr.Kind, perr.Err)
	}
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
