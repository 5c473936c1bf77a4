// Package engramcmder
package engramcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/engramlabs/engram/cmd/engram/auth"
	backfillcmder "github.com/engramlabs/engram/cmd/engram/backfill"
	configcmder "github.com/engramlabs/engram/cmd/engram/config"
	factscmder "github.com/engramlabs/engram/cmd/engram/facts"
	initcmder "github.com/engramlabs/engram/cmd/engram/init"
	processcmder "github.com/engramlabs/engram/cmd/engram/process"
	searchcmder "github.com/engramlabs/engram/cmd/engram/search"
	seedcmder "github.com/engramlabs/engram/cmd/engram/seed"
	statuscmder "github.com/engramlabs/engram/cmd/engram/status"
	watchcmder "github.com/engramlabs/engram/cmd/engram/watch"
	versioncmder "github.com/engramlabs/engram/cmd/version"
)

const engramLongDesc string = `Engram is long-term memory for your agents.

Feed conversation windows through the memory pipeline:
  engram process       Process a conversation window into facts
  engram watch         Watch a directory for dropped window files
  engram backfill      Ingest a directory of historical window files

Inspect the fact store:
  engram search        Semantic search over an owner's facts
  engram facts         List or purge an owner's facts`

const engramShortDesc string = "Engram - Agent Memory"

func NewEngramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engram",
		Short: engramShortDesc,
		Long:  engramLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .engram/ directory")

	// Add subcommands
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(backfillcmder.NewBackfillCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(factscmder.NewFactsCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(processcmder.NewProcessCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(seedcmder.NewSeedCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
