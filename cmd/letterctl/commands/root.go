package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zlnvch/letterbox/config"
	"github.com/zlnvch/letterbox/logging"
)

var (
	home       string
	passphrase string
	cfg        config.Config
)

func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:          "letterctl",
		Short:        "End-to-end encrypted delayed letters",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.DevMode)

			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".letterbox")
			}
			if passphrase == "" {
				passphrase = os.Getenv("LETTERBOX_PASSPHRASE")
			}
			return os.MkdirAll(home, 0o700)
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "device state dir (default ~/.letterbox)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the device key (or LETTERBOX_PASSPHRASE)")

	root.AddCommand(
		initCmd(),
		registerCmd(),
		inviteCmd(),
		consumeCmd(),
		requestsCmd(),
		acceptCmd(),
		rejectCmd(),
		friendsCmd(),
		unfriendCmd(),
		sendCmd(),
		inboxCmd(),
		openCmd(),
		deleteCmd(),
		heartbeatCmd(),
		resetCmd(),
		demoCmd(),
	)
	return root.ExecuteContext(ctx)
}
