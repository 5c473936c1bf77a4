// Package factscmder provides the facts command for inspecting and
// administering an owner's stored facts.
package factscmder

import (
	"github.com/spf13/cobra"
)

const factsLongDesc string = `Inspect or administer an owner's stored facts.

The pipeline itself never deletes: contradicted facts are transitioned to
outdated and stay retrievable. Purge is the administrative escape hatch for
wiping an owner entirely (e.g. a data-removal request); it is not part of
normal operation.

Use subcommands:
  engram facts list  --owner <owner>    List all facts, newest first
  engram facts purge --owner <owner>    Delete all of an owner's facts

Examples:
  engram facts list --owner u1
  engram facts purge --owner u1 --force`

const factsShortDesc string = "List or purge an owner's facts"

func NewFactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts",
		Short: factsShortDesc,
		Long:  factsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newPurgeCmd())

	return cmd
}
