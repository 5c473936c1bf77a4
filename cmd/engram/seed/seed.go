// Package seedcmder provides the seed command for loading demo facts into
// the fact store.
package seedcmder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/engramlabs/engram/cmd/engram/runtime"
	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/logger"
)

const seedLongDesc string = `Seed demo facts into the fact store.

Writes a small set of facts for a demo owner, including one outdated fact
with its active replacement, so search and facts list have something to
show. Embeddings are computed through the configured embedding provider.

Examples:
  engram seed
  engram seed --owner demo
  engram seed --overwrite`

const seedShortDesc string = "Seed demo facts"

type seedCommander struct {
	owner     string
	overwrite bool
	flags     runtime.PipelineFlags

	v *viper.Viper
}

func NewSeedCmd() *cobra.Command {
	cmder := &seedCommander{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: seedShortDesc,
		Long:  seedLongDesc,
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

	cmd.Flags().StringVarP(&cmder.owner, "owner", "o", "demo", "Owner to seed facts for")
	cmd.Flags().BoolVarP(&cmder.overwrite, "overwrite", "f", false, "Purge the owner's facts before seeding")
	runtime.AddPipelineFlags(cmd, &cmder.flags)

	return cmd
}

// demoFact is one canned record; outdated entries carry the content their
// replacement superseded.
type demoFact struct {
	content  string
	category fact.Category
	outdated bool
}

var demoFacts = []demoFact{
	{content: "Lives in Amsterdam", category: fact.CategoryPersonal, outdated: true},
	{content: "Moved to Berlin in early 2026", category: fact.CategoryPersonal},
	{content: "Works as a data engineer at a logistics startup", category: fact.CategoryProfessional},
	{content: "Is vegetarian", category: fact.CategoryPreference},
	{content: "Runs three times a week, training for a half marathon", category: fact.CategoryActivity},
	{content: "Allergic to penicillin", category: fact.CategoryHealth},
	{content: "Plans to visit Japan in the autumn", category: fact.CategoryPlan},
}

func (c *seedCommander) run(cmd *cobra.Command, configDir string, debug bool) error {
	log := logger.NewLogger(debug)
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()

	rt, err := runtime.Build(ctx, c.v, configDir, log)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if c.overwrite {
		if err := rt.Store.Purge(ctx, c.owner); err != nil {
			return fmt.Errorf("purging owner before seed: %w", err)
		}
	}

	var count int
	if err := cliui.Step(os.Stdout, "Seeding demo facts", func() error {
		var seedErr error
		count, seedErr = c.seed(ctx, rt)
		return seedErr
	}); err != nil {
		return err
	}

	fmt.Printf("\n  %s Seeded %s facts for %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(strconv.Itoa(count)),
		cliui.NameStyle.Render(c.owner),
	)
	return nil
}

func (c *seedCommander) seed(ctx context.Context, rt *runtime.Runtime) (int, error) {
	// Spread created_at so list and tie-break ordering are visible.
	base := time.Now().UTC().Add(-time.Duration(len(demoFacts)) * time.Hour)

	facts := make([]fact.Fact, 0, len(demoFacts))
	for i, d := range demoFacts {
		f, err := fact.New(c.owner, d.content, d.category)
		if err != nil {
			return 0, err
		}

		embedding, err := rt.Embedder.Embed(ctx, f.Content)
		if err != nil {
			return 0, fmt.Errorf("embedding %q: %w", d.content, err)
		}
		f.Embedding = embedding

		f.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		f.UpdatedAt = f.CreatedAt
		if d.outdated {
			f.Status = fact.StatusOutdated
			f.UpdatedAt = time.Now().UTC()
		}

		facts = append(facts, f)
	}

	if err := rt.Store.Upsert(ctx, facts); err != nil {
		return 0, err
	}
	return len(facts), nil
}
