package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdfduo/pdfduo/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pdfduo version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pdfduo %s", version.GitRelease)
		if version.GitCommit != "" {
			fmt.Printf(" (%s)", version.GitCommit)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
