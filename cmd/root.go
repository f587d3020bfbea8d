package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tessa",
	Short: "Title insurance knowledge management server",
	Long: `Tessa is the knowledge backend for a title insurance operation. It
turns uploaded underwriting documents into reviewed knowledge entries,
manages standard operating procedures through a draft/pending/approved
lifecycle, and serves both over a REST API with semantic search.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "tessa.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
