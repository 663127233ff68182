package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zlnvch/letterbox/service"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the device key pair and store it securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := openVault()
			if err != nil {
				return err
			}
			publicKey, err := vault.GetOrCreatePublicKey(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Device key ready.\nPublic key: %s\n", hex.EncodeToString(publicKey))
			return nil
		},
	}
}

func registerCmd() *cobra.Command {
	var name, emoji string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an identity for this device and publish its public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := connect(ctx)
			if err != nil {
				return err
			}

			publicKey, err := a.vault.GetOrCreatePublicKey(ctx)
			if err != nil {
				return err
			}

			// The device key doubles as the login, so registering twice
			// returns the same identity
			identity, err := a.svc.RegisterIdentity(ctx, service.OAuthLogin{
				Provider:   "device",
				ProviderId: hex.EncodeToString(publicKey),
				Username:   name,
			}, name, emoji)
			if err != nil {
				return err
			}
			identity, err = a.svc.PublishPublicKey(ctx, identity, publicKey)
			if err != nil {
				return err
			}
			if err := saveState(deviceState{IdentityId: identity.Id}); err != nil {
				return err
			}

			fmt.Printf("Registered %s\nIdentity: %s\n", identity.Display(), identity.Id)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&emoji, "emoji", "", "display emoji")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func heartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Record that you are active, postponing your inactivity letters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := connect(ctx)
			if err != nil {
				return err
			}
			me, err := a.me(ctx)
			if err != nil {
				return err
			}
			if err := a.svc.RecordHeartbeat(ctx, me.Id); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the device key and local state",
		Long: "Delete the device key and local state. Letters sealed to the old key\n" +
			"can no longer be opened on this device.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete the device key without --yes")
			}
			vault, err := openVault()
			if err != nil {
				return err
			}
			if err := vault.DeletePrivateKey(cmd.Context()); err != nil {
				return err
			}
			if err := removeState(); err != nil {
				return err
			}
			fmt.Println("Device reset.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
