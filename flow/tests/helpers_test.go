package flow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
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

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	svc   *service.Service
	store *memorystore.MemoryLetterStore
	blobs *memoryblob.MemoryBlobStore
	clock *fakeClock
}

// newEnv wires the service over in-memory backends with a job consumer
// running, the way the relay runs in production.
func newEnv(t *testing.T) *env {
	t.Helper()

	st := memorystore.NewMemoryLetterStore()
	blobs := memoryblob.NewMemoryBlobStore()
	queue := memorymq.NewMemoryMessageQueue()

	svc, err := service.NewService(st, memorycache.NewMemoryLetterCache(), queue, blobs, nil, nil, []byte("secret"))
	require.NoError(t, err)

	clock := &fakeClock{now: time.Now().Truncate(time.Second)}
	svc.Now = clock.Now

	ctx, cancel := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		worker.NewJobConsumer(queue, svc).Run(ctx)
		close(consumerDone)
	}()
	t.Cleanup(func() {
		cancel()
		<-consumerDone
		queue.Close()
	})

	return &env{svc: svc, store: st, blobs: blobs, clock: clock}
}

type device struct {
	identity models.Identity
	vault    *keyvault.Vault
	sender   *flow.Sender
	receiver *flow.Receiver
}

func (e *env) newDevice(t *testing.T, name string) *device {
	t.Helper()
	ctx := context.Background()

	identity, err := e.svc.RegisterIdentity(ctx, service.OAuthLogin{Provider: "test", ProviderId: name}, name, "")
	require.NoError(t, err)

	vault := keyvault.New(keyvault.NewMemoryStorage(), keyvault.DefaultServiceTag)
	publicKey, err := vault.GetOrCreatePublicKey(ctx)
	require.NoError(t, err)

	identity, err = e.svc.PublishPublicKey(ctx, identity, publicKey)
	require.NoError(t, err)

	return &device{
		identity: identity,
		vault:    vault,
		sender:   flow.NewSender(e.svc),
		receiver: flow.NewReceiver(e.svc, vault),
	}
}

func (e *env) pair(t *testing.T, issuer, requester *device) {
	t.Helper()
	ctx := context.Background()

	link, err := e.svc.CreateInviteLink(ctx, issuer.identity)
	require.NoError(t, err)
	_, err = e.svc.ConsumeInviteLink(ctx, requester.identity, link.Id)
	require.NoError(t, err)
	_, err = e.svc.AcceptPairingRequest(ctx, issuer.identity, requester.identity.Id)
	require.NoError(t, err)
}
