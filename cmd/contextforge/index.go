package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/contextforge/contextforge/pkg/chunker"
	"github.com/contextforge/contextforge/pkg/indexer"
	"github.com/contextforge/contextforge/pkg/vectorindex"
)

var (
	indexQuery string
	indexTopK  int
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a directory and optionally search it",
	Long: `Walks the given directory (default: the configured workspace root),
chunks every supported source file, and builds an in-memory vector index.
With --query, runs a similarity search over the result.`,
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

		files := 0
		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor" {
					return filepath.SkipDir
				}
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil || int64(len(content)) > cfg.MaxFileSize {
				return nil
			}
			language := chunker.DetectLanguage(path, content)
			if language == "" {
				return nil
			}
			if _, err := ix.IndexFile(path, string(content), language); err != nil {
				return err
			}
			files++
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", root, err)
		}

		stats, err := vidx.Stats()
		if err != nil {
			return err
		}
		color.Green("Indexed %d files, %d chunks", files, stats.TotalVectors)

		if indexQuery == "" {
			return nil
		}
		hits, err := vidx.Search(indexQuery, indexTopK)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			color.Yellow("No matches for %q", indexQuery)
			return nil
		}
		for _, hit := range hits {
			fmt.Printf("%s %s:%s-%s (%.3f)\n",
				color.CyanString("%2d.", hit.Rank),
				hit.Meta["file_path"],
				hit.Meta["start_line"],
				hit.Meta["end_line"],
				hit.Score)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVarP(&indexQuery, "query", "q", "", "similarity search query")
	indexCmd.Flags().IntVarP(&indexTopK, "top", "k", 10, "number of search results")
}
