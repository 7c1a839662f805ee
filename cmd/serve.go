package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/halfdata/gphoto-backup/internal/auth"
	"github.com/halfdata/gphoto-backup/internal/observability"
	"github.com/halfdata/gphoto-backup/internal/server"
	"github.com/halfdata/gphoto-backup/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local web UI.",
	Long: `Starts the local web server: sign in with Google there, browse the
mirrored library and trigger backup passes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		defer observability.Sync()

		if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
			return fmt.Errorf("failed to create storage folder: %w", err)
		}
		st, err := store.Open(cfg.Storage.DatabasePath(), logger)
		if err != nil {
			return err
		}
		defer st.Close()

		flow, err := auth.NewFlow(cfg.OAuth.ClientSecretFile,
			cfg.Server.ExternalURL+"/callback", cfg.OAuth.Scopes, logger)
		if err != nil {
			return err
		}
		sessions, err := auth.NewSessions(cfg.Session.SigningKey, cfg.Session.TTL)
		if err != nil {
			return err
		}

		srv, err := server.New(cfg, st, flow, sessions, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
