package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/daryltucker/llm-pipeline/internal/assets"
	"github.com/daryltucker/llm-pipeline/internal/output"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write an example pipeline.toml and prompts.txt",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir := "."
		if len(args) == 1 {
			targetDir = args[0]
		}
		n, err := writeExamples(targetDir, forceInit)
		if err != nil {
			return err
		}
		output.Logger.Info("Initialization Complete", "dir", targetDir, "total_files", n)
		return nil
	},
}

// writeExamples copies the embedded examples into dir. Existing files are
// kept unless force is set.
func writeExamples(dir string, force bool) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create target directory %s: %w", dir, err)
	}

	entries, err := fs.ReadDir(assets.Examples, "examples")
	if err != nil {
		return 0, fmt.Errorf("failed to read embedded examples: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		targetPath := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(targetPath); err == nil && !force {
			output.Logger.Warn("File exists, skipping (use --force to overwrite)", "path", targetPath)
			continue
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return count, err
		}

		content, err := fs.ReadFile(assets.Examples, "examples/"+entry.Name())
		if err != nil {
			return count, fmt.Errorf("failed to read embedded file %s: %w", entry.Name(), err)
		}
		if err := os.WriteFile(targetPath, content, 0644); err != nil {
			return count, fmt.Errorf("failed to write %s: %w", targetPath, err)
		}

		output.Logger.Info("Wrote example", "path", targetPath)
		count++
	}
	return count, nil
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}
