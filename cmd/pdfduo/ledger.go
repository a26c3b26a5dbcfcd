package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdfduo/pdfduo/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or reset the cross-run failure ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded failure counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		repo := ledger.NewFile(e.home.LedgerPath(), e.logger)
		counts, err := repo.All()
		if err != nil {
			return err
		}
		if len(counts) == 0 {
			fmt.Println("no failures recorded")
			return nil
		}

		paths := make([]string, 0, len(counts))
		for p := range counts {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			marker := ""
			if counts[p] >= e.cfg.Limits.MaxFailures {
				marker = "  (blocked)"
			}
			fmt.Printf("%3d  %s%s\n", counts[p], p, marker)
		}
		return nil
	},
}

var ledgerResetCmd = &cobra.Command{
	Use:   "reset [path]",
	Short: "Clear failure counts, for one document or all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		repo := ledger.NewFile(e.home.LedgerPath(), e.logger)

		target := ""
		if len(args) == 1 {
			target = args[0]
		}
		if err := repo.Reset(target); err != nil {
			return err
		}
		if target == "" {
			fmt.Println("failure ledger cleared")
		} else {
			fmt.Println("cleared", target)
		}
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerListCmd, ledgerResetCmd)
	rootCmd.AddCommand(ledgerCmd)
}
