// Package statuscmder provides the status command for displaying the
// resolved engram environment.
package statuscmder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/pkg/cliui"
	"github.com/engramlabs/engram/pkg/config"
	"github.com/engramlabs/engram/pkg/credentials"
	"github.com/engramlabs/engram/pkg/dotdir"
)

const statusLongDesc string = `Show the resolved engram environment.

Displays which .engram/ directory is in effect, the configured providers,
stored credentials, and how many window files the watcher's ingest ledger
has recorded.

Examples:
  engram status`

const statusShortDesc string = "Show the resolved engram environment"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runStatus(configDir)
		},
	}

	return cmd
}

func runStatus(configDir string) error {
	ddm := dotdir.NewManager()

	target, err := ddm.Target(configDir)
	if err != nil {
		return fmt.Errorf("resolving .engram directory: %w", err)
	}

	fmt.Println()
	if target == "" {
		fmt.Printf("  %s No .engram/ directory found. Run 'engram init' to create one.\n\n",
			cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Directory:  "), cliui.ValueStyle.Render(target))

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Vector store:"), cliui.ValueStyle.Render(describeTarget(cfg.VectorStore.Provider, cfg.VectorStore.Target)))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Embeddings: "), cliui.ValueStyle.Render(fmt.Sprintf("%s (%s, %d dims)", cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimensions)))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Reasoning:  "), cliui.ValueStyle.Render(fmt.Sprintf("%s (%s)", cfg.Reasoning.Provider, cfg.Reasoning.Model)))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Owner lock: "), cliui.ValueStyle.Render(describeTarget(cfg.Lock.Provider, cfg.Lock.Target)))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Events:     "), cliui.ValueStyle.Render(describeTarget(cfg.Events.Provider, cfg.Events.Brokers)))

	printCredentials(configDir)
	printLedger(ddm, configDir)

	fmt.Println()
	return nil
}

func describeTarget(provider, target string) string {
	if strings.TrimSpace(target) == "" {
		return provider
	}
	return fmt.Sprintf("%s (%s)", provider, target)
}

func printCredentials(configDir string) {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return
	}

	providers, err := mgr.ListProviders()
	if err != nil || len(providers) == 0 {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Credentials:"), cliui.DimStyle.Render("none stored"))
		return
	}

	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Credentials:"), cliui.ValueStyle.Render(strings.Join(providers, ", ")))
}

func printLedger(ddm *dotdir.Manager, configDir string) {
	ledger, err := ddm.LoadIngestLedger(configDir)
	if err != nil {
		return
	}

	count := len(ledger.Entries)
	if count == 0 {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Ingested:   "), cliui.DimStyle.Render("no window files recorded"))
		return
	}

	var facts int
	for _, e := range ledger.Entries {
		facts += e.Facts
	}

	fmt.Printf("  %s  %s window files %s\n",
		cliui.KeyStyle.Render("Ingested:   "),
		cliui.NameStyle.Render(strconv.Itoa(count)),
		cliui.DimStyle.Render(fmt.Sprintf("(%d facts committed)", facts)),
	)
}
