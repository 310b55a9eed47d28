package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/contextforge/contextforge/pkg/config"
	"github.com/contextforge/contextforge/pkg/tasklist"
)

var tasksValidateOnly bool

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage the persisted task list",
}

var tasksExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the task list as markdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openTasks()
		if err != nil {
			return err
		}
		fmt.Print(m.ToMarkdown())
		return nil
	},
}

var tasksImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Reorganize the task list from a markdown file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openTasks()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		result, err := m.Reorganize(string(data), tasksValidateOnly)
		if err != nil {
			for _, msg := range result.Errors {
				color.Red("  %s", msg)
			}
			return err
		}
		if tasksValidateOnly {
			color.Green("Markdown is valid")
			return nil
		}
		if err := m.Save(""); err != nil {
			return err
		}
		color.Green("Reorganized: %d added, %d moved, %d removed",
			result.Added, result.Moved, result.Removed)
		return nil
	},
}

var tasksTemplateCmd = &cobra.Command{
	Use:   "template <name> <title>",
	Short: "Expand a task template",
	Long: fmt.Sprintf("Expands one of the registered templates (%v) with the given title.",
		tasklist.TemplateNames()),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openTasks()
		if err != nil {
			return err
		}
		created, err := m.ApplyTemplate(args[0], args[1], "")
		if err != nil {
			return err
		}
		if err := m.Save(""); err != nil {
			return err
		}
		color.Green("Created %d tasks", len(created))
		fmt.Print(m.ToMarkdown())
		return nil
	},
}

func openTasks() (*tasklist.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.TasksPath
	if path == "" {
		path = filepath.Join(cfg.WorkspaceRoot, config.TasksFileName)
	}
	return tasklist.NewManager(tasklist.Options{
		Path:        path,
		UndoHistory: cfg.UndoHistory,
		AutoLoad:    true,
	}), nil
}

func init() {
	tasksImportCmd.Flags().BoolVar(&tasksValidateOnly, "validate-only", false, "check the markdown without applying it")
	tasksCmd.AddCommand(tasksExportCmd)
	tasksCmd.AddCommand(tasksImportCmd)
	tasksCmd.AddCommand(tasksTemplateCmd)
}
