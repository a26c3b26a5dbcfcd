package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var cleanupDryRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [root]",
	Short: "Remove stray pipeline artifacts left by interrupted runs",
	Long: `cleanup walks a directory and removes the pipeline's own leftovers: sidecar
merges (*.pdfduo-merged.pdf), staged input copies (__temp_input_*.pdf) and
abandoned merge temporaries (*_tmp_*.pdf). Backups and finished documents are
never touched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		root := e.cfg.PDFRoot
		if len(args) == 1 {
			root = args[0]
		}

		var removed int
		err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() || !isStrayArtifact(entry.Name()) {
				return nil
			}
			if cleanupDryRun {
				fmt.Println("would remove", path)
				removed++
				return nil
			}
			if err := os.Remove(path); err != nil {
				e.logger.Warn("could not remove artifact", "path", path, "error", err)
				return nil
			}
			e.logger.Info("removed artifact", "path", path)
			removed++
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Printf("artifacts: %d\n", removed)
		return nil
	},
}

func isStrayArtifact(name string) bool {
	if !strings.HasSuffix(name, ".pdf") {
		return false
	}
	stem := strings.TrimSuffix(name, ".pdf")
	switch {
	case strings.HasSuffix(name, ".pdfduo-merged.pdf"):
		return true
	case strings.HasPrefix(name, "__temp_input_"):
		return true
	case strings.Contains(stem, "_tmp_"):
		return true
	}
	return false
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "list artifacts without removing them")
	rootCmd.AddCommand(cleanupCmd)
}
