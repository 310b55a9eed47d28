package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/contextforge/contextforge/pkg/chunker"
	"github.com/contextforge/contextforge/pkg/indexer"
	"github.com/contextforge/contextforge/pkg/types"
	"github.com/contextforge/contextforge/pkg/vectorindex"
	"github.com/contextforge/contextforge/pkg/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a directory and keep its index current",
	Long: `Starts a polling watch over the given directory (default: the
configured workspace root) and applies created, modified, and deleted
files to the index until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		root := cfg.WorkspaceRoot
		if len(args) > 0 {
			root = args[0]
		}

		ch := chunker.New(chunker.ModeAuto, cfg.MaxChunkSize)
		vidx := vectorindex.NewMemory(vectorindex.NewHashEmbedder(0))
		ix := indexer.New(ch, vidx)

		w := watcher.New()
		live, err := indexer.NewLive(ix, w, watcher.Config{
			Root:            root,
			Recursive:       true,
			IgnorePatterns:  []string{".*", "node_modules", "vendor"},
			PollInterval:    cfg.PollInterval,
			DebounceSeconds: cfg.DebounceSeconds,
		}, func(event types.FileEventType, path, language string, chunks []types.CodeChunk) {
			switch event {
			case types.FileDeleted:
				color.Yellow("removed  %s", path)
			default:
				color.Green("indexed  %s (%s, %d chunks)", path, language, len(chunks))
			}
		})
		if err != nil {
			return err
		}
		defer live.Stop()

		color.Cyan("Watching %s (Ctrl+C to stop)", root)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		return nil
	},
}
