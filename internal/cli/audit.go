package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/iliyamo/task-manager/internal/queue"
)

var auditLogPath string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Consume domain events into the audit log",
	Long: `Consume events published by the API (registrations, logins, task and
user changes) and append one line per event to the audit log. Runs until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if cfg.AMQPURL == "" {
			return errors.New("RABBITMQ_URL is not set")
		}
		ctx, stop := signalContext()
		defer stop()

		err := queue.AuditConsumer{URL: cfg.AMQPURL, Queue: cfg.EventsQueue, LogPath: auditLogPath}.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditLogPath, "log", "logs/audit.log", "audit log file")
	rootCmd.AddCommand(auditCmd)
}
