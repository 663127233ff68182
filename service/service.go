package service

import (
	"math/rand/v2"
	"time"

	"github.com/zlnvch/letterbox/blob"
	"github.com/zlnvch/letterbox/cache"
	"github.com/zlnvch/letterbox/mq"
	"github.com/zlnvch/letterbox/store"
	"github.com/zlnvch/letterbox/worker"
	"golang.org/x/oauth2"
)

type Service struct {
	Store            store.LetterStore
	Cache            cache.LetterCache
	MQ               mq.MessageQueue
	Blobs            blob.BlobStore
	HeartbeatBatcher *worker.HeartbeatBatcher
	OAuthConfigs     map[string]*oauth2.Config
	JWTSecret        []byte

	// Now and Rng are replaceable so tests can pin time and window sampling.
	Now func() time.Time
	Rng *rand.Rand
}

func NewService(
	store store.LetterStore,
	cache cache.LetterCache,
	mq mq.MessageQueue,
	blobs blob.BlobStore,
	heartbeatBatcher *worker.HeartbeatBatcher,
	oauthConfigs map[string]*oauth2.Config,
	jwtSecret []byte,
) (*Service, error) {
	oauthConfigs, err := addOauthEndpointsAndScopes(oauthConfigs)
	if err != nil {
		return nil, err
	}

	return &Service{
		Store:            store,
		Cache:            cache,
		MQ:               mq,
		Blobs:            blobs,
		HeartbeatBatcher: heartbeatBatcher,
		OAuthConfigs:     oauthConfigs,
		JWTSecret:        jwtSecret,
		Now:              time.Now,
	}, nil
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
