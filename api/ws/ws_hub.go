package ws

import (
	"context"

	"github.com/zlnvch/letterbox/cache"
	"github.com/zlnvch/letterbox/logging"
)

const maxConnectionsPerIdentity = 3

type notification struct {
	identityId string
	message    []byte
}

// Hub tracks the open connections of each identity and forwards what is
// published on that identity's channel to all of them. A channel is
// subscribed while at least one of the identity's clients is connected.
type Hub struct {
	letterCache       cache.LetterCache
	OpenCh            chan *Client
	CloseCh           chan *Client
	notifyCh          chan notification
	identityToClients map[string]map[*Client]struct{}
	subscriberCancel  map[string]context.CancelFunc
}

func NewHub(letterCache cache.LetterCache) *Hub {
	return &Hub{
		letterCache:       letterCache,
		OpenCh:            make(chan *Client, 256),
		CloseCh:           make(chan *Client, 256),
		notifyCh:          make(chan notification, 1024),
		identityToClients: make(map[string]map[*Client]struct{}),
		subscriberCancel:  make(map[string]context.CancelFunc),
	}
}

func (h *Hub) Run(shutdownCtx context.Context) {
	for {
		select {
		case client := <-h.OpenCh:
			h.open(shutdownCtx, client)

		case client := <-h.CloseCh:
			h.close(client)

		case n := <-h.notifyCh:
			for client := range h.identityToClients[n.identityId] {
				select {
				case client.Send <- n.message:
				default:
					logging.Log.Warnf("Dropping notification for slow client of %s", n.identityId)
				}
			}

		case <-shutdownCtx.Done():
			for identityId, cancel := range h.subscriberCancel {
				cancel()
				delete(h.subscriberCancel, identityId)
			}
			return
		}
	}
}

func (h *Hub) open(shutdownCtx context.Context, client *Client) {
	identityId := client.identity.Id
	clients := h.identityToClients[identityId]

	if len(clients) >= maxConnectionsPerIdentity {
		logging.Log.Warnf("Identity %s reached max connections (%d)", identityId, maxConnectionsPerIdentity)
		close(client.rejected)
		return
	}

	if clients == nil {
		ctx, cancel := context.WithCancel(shutdownCtx)
		err := h.letterCache.Subscribe(ctx, cache.IdentityChannel(identityId), func(message []byte) {
			select {
			case h.notifyCh <- notification{identityId: identityId, message: message}:
			default:
				logging.Log.Warnf("Hub backed up, dropping notification for %s", identityId)
			}
		})
		if err != nil {
			cancel()
			logging.Log.WithError(err).Errorf("Failed to subscribe to notifications of %s", identityId)
			close(client.rejected)
			return
		}
		clients = make(map[*Client]struct{})
		h.identityToClients[identityId] = clients
		h.subscriberCancel[identityId] = cancel
	}

	clients[client] = struct{}{}
}

func (h *Hub) close(client *Client) {
	identityId := client.identity.Id
	clients, ok := h.identityToClients[identityId]
	if !ok {
		return
	}

	delete(clients, client)
	if len(clients) > 0 {
		return
	}

	if cancel, ok := h.subscriberCancel[identityId]; ok {
		cancel()
		delete(h.subscriberCancel, identityId)
	}
	delete(h.identityToClients, identityId)
}
