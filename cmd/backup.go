package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/halfdata/gphoto-backup/internal/auth"
	"github.com/halfdata/gphoto-backup/internal/backup"
	"github.com/halfdata/gphoto-backup/internal/observability"
	"github.com/halfdata/gphoto-backup/internal/photosapi"
	"github.com/halfdata/gphoto-backup/internal/store"
)

var backupEmail string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run one backup pass from the terminal.",
	Long: `Runs a single headless backup pass for an account that already
authorized via the web UI. Suitable for cron.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		defer observability.Sync()

		st, err := store.Open(cfg.Storage.DatabasePath(), logger)
		if err != nil {
			return err
		}
		defer st.Close()

		user, err := resolveUser(st, backupEmail)
		if err != nil {
			return err
		}
		token, err := auth.LoadToken(st, user.ID)
		if err != nil {
			return err
		}
		if token == nil {
			return fmt.Errorf("account %s is not authorized; sign in via the web UI first", user.Email)
		}
		flow, err := auth.NewFlow(cfg.OAuth.ClientSecretFile,
			cfg.Server.ExternalURL+"/callback", cfg.OAuth.Scopes, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		httpClient := flow.HTTPClient(ctx, st, user.ID, token, photosapi.NewTransport())
		photos := photosapi.New(httpClient, logger,
			photosapi.WithRateLimit(cfg.Backup.RequestsPerSecond))
		files := backup.NewDownloader(httpClient, backup.UserRoot(cfg.Storage, *user), logger)
		runner := backup.NewRunner(cfg.Backup, cfg.Storage, st, photos, files,
			backup.NewLock(), *user, logger)

		progress := make(chan string)
		consumed := make(chan struct{})
		go func() {
			for msg := range progress {
				fmt.Println(msg)
			}
			close(consumed)
		}()

		err = runner.Run(ctx, progress)
		close(progress)
		<-consumed
		return err
	},
}

// resolveUser picks the account to back up. With a single stored
// account the flag is optional.
func resolveUser(st *store.Store, email string) (*store.User, error) {
	if email != "" {
		user, err := st.UserByEmail(email)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, fmt.Errorf("no stored account with email %s", email)
		}
		return user, nil
	}
	users, err := st.Users()
	if err != nil {
		return nil, err
	}
	switch len(users) {
	case 0:
		return nil, fmt.Errorf("no accounts yet; run serve and sign in first")
	case 1:
		return &users[0], nil
	default:
		return nil, fmt.Errorf("multiple accounts stored; pick one with --email")
	}
}

func init() {
	backupCmd.Flags().StringVar(&backupEmail, "email", "", "account to back up (default: the only stored account)")
	rootCmd.AddCommand(backupCmd)
}
