package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	memoryblob "github.com/zlnvch/letterbox/blob/memory"
	memorycache "github.com/zlnvch/letterbox/cache/memory"
	"github.com/zlnvch/letterbox/flow"
	"github.com/zlnvch/letterbox/keyvault"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/mq/memorymq"
	"github.com/zlnvch/letterbox/service"
	memorystore "github.com/zlnvch/letterbox/store/memory"
	"github.com/zlnvch/letterbox/worker"
)

func demoCmd() *cobra.Command {
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a full exchange between two devices against in-memory backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), delay)
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 3*time.Second, "how long the demo letter waits before delivery")
	return cmd
}

func runDemo(ctx context.Context, delay time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := memorymq.NewMemoryMessageQueue()
	defer queue.Close()

	svc, err := service.NewService(
		memorystore.NewMemoryLetterStore(),
		memorycache.NewMemoryLetterCache(),
		queue,
		memoryblob.NewMemoryBlobStore(),
		nil,
		nil,
		nil,
	)
	if err != nil {
		return err
	}
	go worker.NewJobConsumer(queue, svc).Run(ctx)
	go worker.NewDeliverySweeper(svc, time.Second).Run(ctx)

	alice, err := demoDevice(ctx, svc, "Alice", "🦊")
	if err != nil {
		return err
	}
	bob, err := demoDevice(ctx, svc, "Bob", "🐻")
	if err != nil {
		return err
	}

	link, err := svc.CreateInviteLink(ctx, alice.identity)
	if err != nil {
		return err
	}
	fmt.Printf("%s issued invite %s\n", alice.identity.Display(), link.Id)

	if _, err := svc.ConsumeInviteLink(ctx, bob.identity, link.Id); err != nil {
		return err
	}
	if _, err := svc.AcceptPairingRequest(ctx, alice.identity, bob.identity.Id); err != nil {
		return err
	}
	fmt.Printf("%s and %s are paired\n", alice.identity.Display(), bob.identity.Display())

	letter, err := bob.sender.Send(ctx, bob.identity, flow.SendRequest{
		RecipientId: alice.identity.Id,
		Body:        []byte("See you on the other side of the wait."),
		Attachments: [][]byte{[]byte("a small attachment")},
		Condition:   models.FixedDate{At: time.Now().Add(delay)},
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s sent letter %s, deliverable at %s\n", bob.identity.Display(), letter.Id, letter.DeliverAt.Format(time.TimeOnly))

	if _, err := svc.GetLetter(ctx, alice.identity, letter.Id); err == nil {
		return fmt.Errorf("letter visible before delivery")
	}
	fmt.Println("Waiting for delivery...")

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, err := svc.GetLetter(ctx, alice.identity, letter.Id); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	opened, err := alice.receiver.Open(ctx, alice.identity, letter.Id)
	if err != nil {
		return err
	}
	fmt.Printf("%s opened it: %q with %d attachment(s)\n", alice.identity.Display(), opened.Body, len(opened.Attachments))

	stored, err := svc.Store.GetLetter(ctx, letter.Id)
	if err != nil {
		return err
	}
	fmt.Printf("Relay copy is now %s, sealed content removed: %t\n", stored.Status, stored.SealedContent == "")
	return nil
}

type demoDeviceState struct {
	identity models.Identity
	sender   *flow.Sender
	receiver *flow.Receiver
}

func demoDevice(ctx context.Context, svc *service.Service, name, emoji string) (demoDeviceState, error) {
	vault := keyvault.New(keyvault.NewMemoryStorage(), keyvault.DefaultServiceTag)
	publicKey, err := vault.GetOrCreatePublicKey(ctx)
	if err != nil {
		return demoDeviceState{}, err
	}

	identity, err := svc.RegisterIdentity(ctx, service.OAuthLogin{Provider: "device", ProviderId: name}, name, emoji)
	if err != nil {
		return demoDeviceState{}, err
	}
	identity, err = svc.PublishPublicKey(ctx, identity, publicKey)
	if err != nil {
		return demoDeviceState{}, err
	}

	return demoDeviceState{
		identity: identity,
		sender:   flow.NewSender(svc),
		receiver: flow.NewReceiver(svc, vault),
	}, nil
}
