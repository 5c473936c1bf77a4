// Package searchcmder provides the search command for semantic search over
// an owner's facts.
package searchcmder

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/cmd/engram/runtime"
	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/config"
	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/utils"
	"github.com/engramlabs/engram/pkg/vector"
)

const searchLongDesc string = `Search an owner's facts by meaning.

Embeds the query text and returns the owner's nearest facts, closest first.
Outdated facts are included and rendered struck through; the full history of
what the system once believed stays searchable.

Use --quiet to output only fact ids, one per line, for piping into other
commands.

Examples:
  engram search "where does he live" --owner u1
  engram search "dietary preferences" --owner u1 --limit 3
  engram search "job" --owner u1 --quiet`

const searchShortDesc string = "Semantic search over an owner's facts"

type searchCommander struct {
	query string
	owner string
	limit int
	quiet bool
	flags runtime.PipelineFlags

	v      *viper.Viper
	debug  bool
	logger *zap.Logger
}

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.v, err = runtime.InitPipelineViper(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd, configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.owner, "owner", "o", "", "Owner whose facts to search (required)")
	_ = cmd.MarkFlagRequired("owner")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only fact ids, one per line (for piping)")

	fs := config.FlagSet{
		config.FlagSearchLimit: {Name: "limit", Shorthand: "n", ViperKey: "pipeline.search_limit", Description: "Maximum facts to return"},
	}
	config.AddIntFlag(cmd, fs, config.FlagSearchLimit, &cmder.limit)
	runtime.AddPipelineFlags(cmd, &cmder.flags)

	return cmd
}

func (c *searchCommander) run(cmd *cobra.Command, configDir string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx := cmd.Context()

	rt, err := runtime.Build(ctx, c.v, configDir, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	results, err := rt.Orchestrator.SearchFacts(ctx, c.owner, c.query, c.limit)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		if !c.quiet {
			fmt.Println("No results found.")
		}
		return nil
	}

	if c.quiet {
		for _, r := range results {
			fmt.Println(r.Fact.ID)
		}
		return nil
	}

	fmt.Printf("\n%s %s %s\n\n",
		cliui.HeaderStyle.Render("Facts matching:"),
		cliui.IDStyle.Render(fmt.Sprintf("%q", c.query)),
		cliui.DimStyle.Render("(owner "+c.owner+")"),
	)

	for i, r := range results {
		printResult(i+1, r)
	}

	return nil
}

func printResult(rank int, r vector.QueryResult) {
	fmt.Printf("  %s  %s  %s\n",
		cliui.RankStyle.Render(fmt.Sprintf("#%d", rank)),
		cliui.ScoreStyle.Render(fmt.Sprintf("distance: %.4f", r.Distance)),
		cliui.IDStyle.Render(r.Fact.ID),
	)

	fmt.Printf("  %s  %s  %s\n",
		cliui.StatusBadge(string(r.Fact.Status)),
		cliui.KeyStyle.Render(string(r.Fact.Category)),
		cliui.PreviewStyle.Render(utils.Truncate(r.Fact.Content, 80)),
	)

	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("created "+r.Fact.CreatedAt.Format("2006-01-02 15:04")))
}
