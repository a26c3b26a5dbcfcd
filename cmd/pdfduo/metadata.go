package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdfduo/pdfduo/internal/docset"
	"github.com/pdfduo/pdfduo/internal/metadata"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Inspect or backfill embedded translation records",
}

var metadataInspectCmd = &cobra.Command{
	Use:   "inspect <file.pdf>",
	Short: "Print the embedded translation record of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, err := metadata.NewManager()
		if err != nil {
			return err
		}
		rec, err := meta.ReadRecord(args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Println("no record embedded")
			return nil
		}
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var metadataBackfillCmd = &cobra.Command{
	Use:   "backfill [root]",
	Short: "Embed records into documents translated before records existed",
	Long: `backfill walks a directory for *_original.pdf backups whose translated
counterpart carries no embedded record, reconstructs the record from the two
documents' page geometry (including the merge gap) and embeds it. Backups are
marked untranslated. Documents that already carry a record are left alone.`,
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

		meta, err := metadata.NewManager()
		if err != nil {
			return err
		}

		docs, err := docset.Walk(root)
		if err != nil {
			return err
		}

		var filled, skipped int
		for _, doc := range docs {
			if !doc.IsBackup() {
				continue
			}
			mainPath := strings.TrimSuffix(doc.Path, docset.BackupSuffix+".pdf") + ".pdf"
			if _, err := os.Stat(mainPath); err != nil {
				continue
			}

			sourceSizes, err := metadata.PageSizes(doc.Path)
			if err != nil {
				e.logger.Warn("unreadable backup", "pdf", doc.Path, "error", err)
				continue
			}
			resultSizes, err := metadata.PageSizes(mainPath)
			if err != nil {
				e.logger.Warn("unreadable document", "pdf", mainPath, "error", err)
				continue
			}

			rec := metadata.NewRecord(metadata.StatusTranslated)
			rec.SourcePageSizesPt = sourceSizes
			rec.ResultPageSizesPt = resultSizes
			rec.GapPt = metadata.InferGap(sourceSizes, resultSizes)

			already, err := meta.Embed(mainPath, rec)
			if err != nil {
				e.logger.Warn("could not embed record", "pdf", mainPath, "error", err)
				continue
			}
			if already {
				skipped++
			} else {
				filled++
				e.logger.Info("record backfilled", "pdf", mainPath, "gap_pt", rec.GapPt)
			}

			if _, err := meta.Embed(doc.Path, metadata.NewRecord(metadata.StatusUntranslated)); err != nil {
				e.logger.Warn("could not mark backup", "pdf", doc.Path, "error", err)
			}
		}

		fmt.Printf("backfilled: %d  already recorded: %d\n", filled, skipped)
		return nil
	},
}

func init() {
	metadataCmd.AddCommand(metadataInspectCmd, metadataBackfillCmd)
	rootCmd.AddCommand(metadataCmd)
}
