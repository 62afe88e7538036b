// Package cli implements the taskctl commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/logger"
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "Operate the task manager API",
	Long: `taskctl runs operator tasks against the task manager's store and broker.

It reads the same environment (and .env file) as the API server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the environment the same way the server does.
var loadConfig = config.Load

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
