package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdfduo/pdfduo/internal/docset"
	"github.com/pdfduo/pdfduo/internal/metadata"
	"github.com/pdfduo/pdfduo/internal/pagemerge"
)

var splitForce bool

var splitCmd = &cobra.Command{
	Use:   "split <dual.pdf> [output.pdf]",
	Short: "Restore the original-only view of a dual document",
	Long: `split narrows every page of a side-by-side dual document back to its left
half. It refuses documents whose embedded record shows a nonzero merge gap,
since halving the page width would then cut into the translation; pass
--force to split anyway.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}

		doc, err := docset.FromPath(args[0])
		if err != nil {
			return err
		}
		input := doc.Path
		output := ""
		if len(args) == 2 {
			output = args[1]
		} else {
			output = filepath.Join(doc.Dir(), doc.Stem()+".split.pdf")
		}

		meta, err := metadata.NewManager()
		if err != nil {
			return err
		}
		rec, err := meta.ReadRecord(input)
		if err != nil {
			e.logger.Warn("could not read embedded record", "pdf", input, "error", err)
		}
		if rec != nil {
			if rec.Status != metadata.StatusTranslated {
				return fmt.Errorf("%s is not marked as a translated dual document", input)
			}
			if rec.GapPt != 0 && !splitForce {
				return fmt.Errorf("%s was merged with a %.2fpt gap; splitting at the midline would be wrong (use --force to override)", input, rec.GapPt)
			}
		}

		if err := pagemerge.NewEngine().Split(input, output); err != nil {
			return err
		}
		fmt.Println("wrote", output)
		return nil
	},
}

func init() {
	splitCmd.Flags().BoolVar(&splitForce, "force", false, "split even when the recorded gap is nonzero")
	rootCmd.AddCommand(splitCmd)
}
