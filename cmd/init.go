package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/nodemap/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize nodemap configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure the telemetry source, clustering strategy and server, and writes a .nodemap.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
