package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"filevault-backend/internal/shared/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	telemetry.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reconciler",
		Short: "Keep file and lead records consistent with object storage",
		Long: `reconciler runs the background jobs that keep the file and lead
records in Postgres consistent with the object store.

Jobs:
  signed_url_refresh  re-sign URLs of files expiring within the lookahead
  orphan_cleanup      delete stored objects no file record references
  lead_expiry         delete pending registrations older than the TTL

Configuration is read from the environment (and .env), optionally layered
over a YAML file named by CONFIG_FILE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRunCmd(), newMigrateCmd())
	return root
}
