// Package watchcmder provides the watch command: a long-running ingester
// that feeds window files through the pipeline as they are dropped into a
// directory.
package watchcmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/cmd/engram/runtime"
	"github.com/engramlabs/engram/pkg/backfill"
	"github.com/engramlabs/engram/pkg/dotdir"
	"github.com/engramlabs/engram/pkg/logger"
	"github.com/engramlabs/engram/pkg/pipeline"
)

const watchLongDesc string = `Watch a directory and ingest window files as they arrive.

Runs until interrupted. Window files ({"owner": "...", "turns": [...]})
dropped into the directory are processed through the memory pipeline. The
ingest ledger in the .engram/ directory records which files have been
handled, so restarting the watcher does not re-ingest (and duplicate) facts
from files it already processed.

Files already present at startup are ingested first unless they appear in
the ledger.

Examples:
  engram watch ./drop
  engram watch ./drop --reset-ledger`

const watchShortDesc string = "Watch a directory for window files"

type watchCommander struct {
	resetLedger bool
	flags       runtime.PipelineFlags

	v      *viper.Viper
	logger *zap.Logger
}

func NewWatchCmd() *cobra.Command {
	cmder := &watchCommander{}

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: watchShortDesc,
		Long:  watchLongDesc,
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

	cmd.Flags().BoolVar(&cmder.resetLedger, "reset-ledger", false, "Forget previously ingested files and start fresh")
	runtime.AddPipelineFlags(cmd, &cmder.flags)

	return cmd
}

func (c *watchCommander) run(cmd *cobra.Command, configDir, dir string, debug bool) error {
	c.logger = logger.NewLogger(debug)
	defer func() { _ = c.logger.Sync() }()

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch target is not a directory: %s", dir)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ddm := dotdir.NewManager()

	if c.resetLedger {
		if err := ddm.ClearIngestLedger(configDir); err != nil {
			return fmt.Errorf("clearing ingest ledger: %w", err)
		}
	}

	ledger, err := ddm.LoadIngestLedger(configDir)
	if err != nil {
		return fmt.Errorf("loading ingest ledger: %w", err)
	}

	rt, err := runtime.Build(ctx, c.v, configDir, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ing := &ingester{
		orch:      rt.Orchestrator,
		ddm:       ddm,
		ledger:    ledger,
		configDir: configDir,
		logger:    c.logger,
	}

	// Catch up on files that were dropped while the watcher was down.
	existing, err := backfill.ScanWindowDir(dir)
	if err != nil {
		return fmt.Errorf("scanning watch directory: %w", err)
	}
	for _, path := range existing {
		ing.ingest(ctx, path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching directory: %w", err)
	}

	c.logger.Info("watching for window files",
		zap.String("dir", dir),
		zap.Int("already_ingested", len(ledger.Entries)),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("watcher stopping")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			ing.ingest(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// ingester feeds one window file at a time through the pipeline and records
// handled files in the ingest ledger. Per-owner serialization is the owner
// lock's job; the watcher itself processes arrivals in order.
type ingester struct {
	orch      *pipeline.Orchestrator
	ddm       *dotdir.Manager
	ledger    *dotdir.IngestLedger
	configDir string
	logger    *zap.Logger
}

func (i *ingester) ingest(ctx context.Context, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	if i.ledger.Seen(abs) {
		return
	}

	wf, err := backfill.ParseWindowFile(abs)
	if err != nil {
		// Likely a file still being written; a later Write event retries.
		i.logger.Debug("skipping unparseable window file",
			zap.String("path", abs),
			zap.Error(err),
		)
		return
	}

	result, err := i.orch.ProcessWindow(ctx, wf.Owner, wf.Turns)
	if err != nil {
		i.logger.Warn("window processing failed",
			zap.String("path", abs),
			zap.String("owner", wf.Owner),
			zap.Error(err),
		)
		return
	}

	i.ledger.Record(abs, dotdir.IngestEntry{
		Owner:      wf.Owner,
		IngestedAt: time.Now().UTC(),
		Facts:      len(result.Committed),
	})
	if err := i.ddm.SaveIngestLedger(i.ledger, i.configDir); err != nil {
		i.logger.Warn("saving ingest ledger", zap.Error(err))
	}

	i.logger.Info("ingested window file",
		zap.String("path", abs),
		zap.String("owner", wf.Owner),
		zap.Int("facts", len(result.Committed)),
	)
}
