package factscmder

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/engramlabs/engram/cmd/engram/runtime"
	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/logger"
)

const purgeLongDesc string = `Delete every fact belonging to an owner.

This is an administrative operation outside the pipeline contract: it
destroys the owner's full history, including outdated facts. It prompts for
confirmation unless --force is given.

Examples:
  engram facts purge --owner u1
  engram facts purge --owner u1 --force`

const purgeShortDesc string = "Delete all of an owner's facts"

type purgeCommander struct {
	owner string
	force bool
	flags runtime.PipelineFlags

	v *viper.Viper
}

func newPurgeCmd() *cobra.Command {
	cmder := &purgeCommander{}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: purgeShortDesc,
		Long:  purgeLongDesc,
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

	cmd.Flags().StringVarP(&cmder.owner, "owner", "o", "", "Owner whose facts to purge (required)")
	_ = cmd.MarkFlagRequired("owner")
	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Skip the confirmation prompt")
	runtime.AddPipelineFlags(cmd, &cmder.flags)

	return cmd
}

func (c *purgeCommander) run(cmd *cobra.Command, configDir string, debug bool) error {
	log := logger.NewLogger(debug)
	defer func() { _ = log.Sync() }()

	if !c.force && !confirm(c.owner) {
		fmt.Println("Aborted.")
		return nil
	}

	ctx := cmd.Context()

	rt, err := runtime.Build(ctx, c.v, configDir, log)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if err := rt.Store.Purge(ctx, c.owner); err != nil {
		return err
	}

	fmt.Printf("\n  %s Purged all facts for %s.\n\n",
		cliui.SuccessMark, cliui.NameStyle.Render(c.owner))
	return nil
}

func confirm(owner string) bool {
	fmt.Printf("Permanently delete ALL facts for %q, including history? [y/N]: ", owner)

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
