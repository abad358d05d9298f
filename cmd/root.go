package cmd

import (
	"go.uber.org/zap"

	"github.com/harlytics/harlytics/logging"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
	Logger    *zap.Logger

	rootCmd = &cobra.Command{
		Use:   "harlytics",
		Short: "Web-privacy tracking analysis over captured browser visits",
		Long: `Harlytics mines HAR captures from automated news-site visits under
three consent regimes (accept, reject, block) and quantifies third-party
tracking exposure: request, domain and entity counts, cross-entity
redirect chains, CNAME cloaking of trackers, cookie issuance, and
security-header posture.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Config{Level: logLevel, Format: logFormat})
			if err != nil {
				return err
			}
			Logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if Logger != nil {
				logging.Sync(Logger)
			}
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (json|console)")
}
