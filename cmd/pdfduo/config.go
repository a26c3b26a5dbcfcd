package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdfduo/pdfduo/internal/config"
	"github.com/pdfduo/pdfduo/internal/home"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the pdfduo configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file to the pdfduo home directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := home.New(homePath)
		if err != nil {
			return err
		}
		if err := dir.EnsureExists(); err != nil {
			return err
		}

		path := dir.ConfigPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Println("wrote", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
