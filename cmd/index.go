package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docprompt/docprompt/internal/embeddings"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index <project-id> <dir>",
	Short: "Index the documentation files under a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(args[0], args[1])
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "reindex files even when unchanged")
	rootCmd.AddCommand(indexCmd)
}

// indexableExtensions are the file types the section parser understands.
var indexableExtensions = map[string]bool{
	".md":   true,
	".mdx":  true,
	".mdoc": true,
	".rst":  true,
	".html": true,
	".htm":  true,
	".txt":  true,
}

func runIndex(project, dir string) error {
	projectID, err := uuid.Parse(project)
	if err != nil {
		return fmt.Errorf("project id must be a UUID: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	files, err := collectFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no indexable files under %s", dir)
	}
	a.logger.Info("indexing files", "dir", dir, "count", len(files))

	errs := a.indexer.IndexFiles(ctx, projectID, files, embeddings.IndexOptions{Force: indexForce})
	for _, fileErr := range errs {
		a.logger.Error("file not indexed", "path", fileErr.Path, "reason", fileErr.Message)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d files failed", len(errs), len(files))
	}
	return nil
}

func collectFiles(dir string) ([]embeddings.FileData, error) {
	var files []embeddings.FileData
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !indexableExtensions[filepath.Ext(path)] {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		files = append(files, embeddings.FileData{
			Path:    filepath.ToSlash(rel),
			Name:    d.Name(),
			Content: string(content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}
