package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zlnvch/letterbox/models"
)

type meRunE func(ctx context.Context, a *app, me models.Identity, args []string) error

// asMe connects and loads the device identity before running fn.
func asMe(fn meRunE) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := connect(ctx)
		if err != nil {
			return err
		}
		me, err := a.me(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, a, me, args)
	}
}

func inviteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invite",
		Short: "Issue a one-time invite link",
		RunE: asMe(func(ctx context.Context, a *app, me models.Identity, args []string) error {
			link, err := a.svc.CreateInviteLink(ctx, me)
			if err != nil {
				return err
			}
			fmt.Printf("Invite: %s\nExpires: %s\n", link.Id, link.ExpiresAt.Format(time.RFC3339))
			return nil
		}),
	}
}

func consumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume <invite>",
		Short: "Send a pairing request through an invite link",
		Args:  cobra.ExactArgs(1),
		RunE: asMe(func(ctx context.Context, a *app, me models.Identity, args []string) error {
			link, err := a.svc.GetInviteLink(ctx, args[0])
			if err != nil {
				return err
			}
			if _, err := a.svc.ConsumeInviteLink(ctx, me, link.Id); err != nil {
				return err
			}
			fmt.Printf("Pairing request sent to %s\n", link.IssuerDisplay)
			return nil
		}),
	}
}

func requestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requests",
		Short: "List pending pairing requests",
		RunE: asMe(func(ctx context.Context, a *app, me models.Identity, args []string) error {
			requests, err := a.svc.ListPairingRequests(ctx, me)
			if err != nil {
				return err
			}
			if len(requests) == 0 {
				fmt.Println("No pending requests.")
				return nil
			}
			for _, req := range requests {
				fmt.Printf("%s  %s  %s\n", req.FromId, req.FromDisplay, req.CreatedAt.Format(time.RFC3339))
			}
			return nil
		}),
	}
}

func acceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <identity>",
		Short: "Accept a pairing request",
		Args:  cobra.ExactArgs(1),
		RunE: asMe(func(ctx context.Context, a *app, me models.Identity, args []string) error {
			pairing, err := a.svc.AcceptPairingRequest(ctx, me, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Paired with %s\n", pairing.PeerDisplay)
			return nil
		}),
	}
}

func rejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <identity>",
		Short: "Reject a pairing request",
		Args:  cobra.ExactArgs(1),
		RunE: asMe(func(ctx context.Context, a *app, me models.Identity, args []string) error {
			if err := a.svc.RejectPairingRequest(ctx, me, args[0]); err != nil {
				return err
			}
			fmt.Println("Rejected.")
			return nil
		}),
	}
}

func friendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "friends",
		Short: "List the identities you are paired with",
		RunE: asMe(func(ctx context.Context, a *app, me models.Identity, args []string) error {
			pairings, err := a.svc.ListPairings(ctx, me)
			if err != nil {
				return err
			}
			if len(pairings) == 0 {
				fmt.Println("No friends yet. Share an invite.")
				return nil
			}
			for _, p := range pairings {
				fmt.Printf("%s  %s  pending: %d\n", p.PeerId, p.PeerDisplay, p.PendingLetterCount)
			}
			return nil
		}),
	}
}

func unfriendCmd() *cobra.Command {
	var block bool

	cmd := &cobra.Command{
		Use:   "unfriend <identity>",
		Short: "Remove a pairing",
		Args:  cobra.ExactArgs(1),
		RunE: asMe(func(ctx context.Context, a *app, me models.Identity, args []string) error {
			var err error
			if block {
				err = a.svc.BlockIdentity(ctx, me, args[0])
			} else {
				err = a.svc.RemoveFriend(ctx, me, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Println("Removed.")
			return nil
		}),
	}
	cmd.Flags().BoolVar(&block, "block", false, "also block future requests from them")
	return cmd
}
