package factscmder

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/engramlabs/engram/cmd/engram/runtime"
	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/utils"
)

const listLongDesc string = `List all of an owner's facts, newest first.

Both active and outdated facts are shown; outdated facts render struck
through. Use --status to narrow to one.

Examples:
  engram facts list --owner u1
  engram facts list --owner u1 --status active`

const listShortDesc string = "List an owner's facts"

type listCommander struct {
	owner  string
	status string
	flags  runtime.PipelineFlags

	v *viper.Viper
}

func newListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.v, err = runtime.InitPipelineViper(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd, configDir, debug)
		},
	}

	cmd.Flags().StringVarP(&cmder.owner, "owner", "o", "", "Owner whose facts to list (required)")
	_ = cmd.MarkFlagRequired("owner")
	cmd.Flags().StringVar(&cmder.status, "status", "", "Filter by status (active, outdated)")
	runtime.AddPipelineFlags(cmd, &cmder.flags)

	return cmd
}

func (c *listCommander) run(cmd *cobra.Command, configDir string, debug bool) error {
	log := logger.NewLogger(debug)
	defer func() { _ = log.Sync() }()

	var filter fact.Status
	if c.status != "" {
		parsed, err := fact.ParseStatus(c.status)
		if err != nil {
			return err
		}
		filter = parsed
	}

	ctx := cmd.Context()

	rt, err := runtime.Build(ctx, c.v, configDir, log)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	facts, err := rt.Store.List(ctx, c.owner)
	if err != nil {
		return err
	}

	if filter != "" {
		kept := facts[:0]
		for _, f := range facts {
			if f.Status == filter {
				kept = append(kept, f)
			}
		}
		facts = kept
	}

	if len(facts) == 0 {
		fmt.Printf("\n  %s No facts stored for %s.\n\n",
			cliui.DimStyle.Render("●"), cliui.NameStyle.Render(c.owner))
		return nil
	}

	fmt.Printf("\n  %s %s %s\n\n",
		cliui.HeaderStyle.Render("Facts for"),
		cliui.NameStyle.Render(c.owner),
		cliui.DimStyle.Render(fmt.Sprintf("(%d)", len(facts))),
	)

	for _, f := range facts {
		fmt.Printf("  %s  %s  %s  %s\n",
			cliui.IDStyle.Render(f.ID[:8]),
			cliui.StatusBadge(string(f.Status)),
			cliui.KeyStyle.Render(string(f.Category)),
			cliui.PreviewStyle.Render(utils.Truncate(f.Content, 72)),
		)
	}
	fmt.Println()

	return nil
}
