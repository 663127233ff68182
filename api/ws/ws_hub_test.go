package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/letterbox/cache"
	memorycache "github.com/zlnvch/letterbox/cache/memory"
	"github.com/zlnvch/letterbox/models"
)

func testClient(identityId string) *Client {
	return &Client{
		identity: models.Identity{Id: identityId},
		Send:     make(chan []byte, 8),
		rejected: make(chan struct{}),
	}
}

// publishUntilReceived retries because the hub subscribes asynchronously.
func publishUntilReceived(t *testing.T, c cache.LetterCache, identityId string, client *Client) []byte {
	t.Helper()

	var got []byte
	require.Eventually(t, func() bool {
		c.Publish(context.Background(), cache.IdentityChannel(identityId), []byte(`{"type":"letter_delivered"}`))
		select {
		case got = <-client.Send:
			return true
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, time.Second, 20*time.Millisecond)
	return got
}

func TestHub_ForwardsIdentityNotifications(t *testing.T) {
	c := memorycache.NewMemoryLetterCache()
	hub := NewHub(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	alice := testClient("alice")
	bob := testClient("bob")
	hub.OpenCh <- alice
	hub.OpenCh <- bob

	got := publishUntilReceived(t, c, "alice", alice)
	assert.JSONEq(t, `{"type":"letter_delivered"}`, string(got))
	assert.Empty(t, bob.Send)
}

func TestHub_LimitsConnectionsPerIdentity(t *testing.T) {
	c := memorycache.NewMemoryLetterCache()
	hub := NewHub(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	clients := make([]*Client, maxConnectionsPerIdentity+1)
	for i := range clients {
		clients[i] = testClient("alice")
		hub.OpenCh <- clients[i]
	}

	select {
	case <-clients[maxConnectionsPerIdentity].rejected:
	case <-time.After(time.Second):
		t.Fatal("extra connection was not rejected")
	}

	for i := 0; i < maxConnectionsPerIdentity; i++ {
		select {
		case <-clients[i].rejected:
			t.Fatalf("client %d rejected", i)
		default:
		}
	}
}

func TestHub_ResubscribesAfterLastClientLeaves(t *testing.T) {
	c := memorycache.NewMemoryLetterCache()
	hub := NewHub(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	first := testClient("alice")
	hub.OpenCh <- first
	publishUntilReceived(t, c, "alice", first)

	hub.CloseCh <- first

	second := testClient("alice")
	hub.OpenCh <- second
	publishUntilReceived(t, c, "alice", second)
}
