package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the application version, overridden at build time with
//
//	go build -ldflags "-X github.com/halfdata/gphoto-backup/cmd.Version=v1.2.3"
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version.",
	// Skips config loading; version must work on a blank machine.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
