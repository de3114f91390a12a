package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"automd/pkg/version"
)

// versionCmd displays build-time version information. The --short flag
// prints only the version number.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the version of automd",
	RunE: func(cmd *cobra.Command, args []string) error {
		short, err := cmd.Flags().GetBool("short")
		if err != nil {
			return fmt.Errorf("error reading flags: %w", err)
		}

		v := version.Get()
		if short {
			fmt.Println(v.Version)
		} else {
			fmt.Println(v.String())
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "Print the version number only")
	RootCmd.AddCommand(versionCmd)
}
