package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zlnvch/letterbox/blob/postgres"
	"github.com/zlnvch/letterbox/cache/redis"
	"github.com/zlnvch/letterbox/flow"
	"github.com/zlnvch/letterbox/keyvault"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/mq/sqsmq"
	"github.com/zlnvch/letterbox/service"
	"github.com/zlnvch/letterbox/store/dynamo"
)

const stateFile = "state.json"

// deviceState is what the device remembers between runs besides its key.
type deviceState struct {
	IdentityId string `json:"identityId"`
}

type app struct {
	svc      *service.Service
	vault    *keyvault.Vault
	sender   *flow.Sender
	receiver *flow.Receiver
}

func openVault() (*keyvault.Vault, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase required (-p)")
	}
	storage, err := keyvault.NewFileStorage(filepath.Join(home, "keys"), passphrase)
	if err != nil {
		return nil, err
	}
	return keyvault.New(storage, keyvault.DefaultServiceTag), nil
}

// connect opens the device vault and the relay backends named by the
// environment.
func connect(ctx context.Context) (*app, error) {
	vault, err := openVault()
	if err != nil {
		return nil, err
	}

	letterStore, err := dynamo.NewDynamoLetterStore(ctx, cfg.DevMode, cfg.DynamoDBEndpoint, cfg.DynamoDBTable)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamodb store: %w", err)
	}
	jobsQueue, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.SQSEndpoint, cfg.JobsQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQS MQ: %w", err)
	}
	letterCache, err := redis.NewRedisLetterCache(ctx, cfg.DevMode, cfg.RedisEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	blobs, err := postgres.NewPostgresBlobStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres blob store: %w", err)
	}

	svc, err := service.NewService(letterStore, letterCache, jobsQueue, blobs, nil, nil, cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	return newApp(svc, vault), nil
}

func newApp(svc *service.Service, vault *keyvault.Vault) *app {
	return &app{
		svc:      svc,
		vault:    vault,
		sender:   flow.NewSender(svc),
		receiver: flow.NewReceiver(svc, vault),
	}
}

// me loads the registered identity of this device.
func (a *app) me(ctx context.Context) (models.Identity, error) {
	state, err := loadState()
	if err != nil {
		return models.Identity{}, err
	}
	return a.svc.Store.GetIdentity(ctx, state.IdentityId)
}

func loadState() (deviceState, error) {
	b, err := os.ReadFile(filepath.Join(home, stateFile))
	if errors.Is(err, os.ErrNotExist) {
		return deviceState{}, fmt.Errorf("device not registered, run letterctl register")
	}
	if err != nil {
		return deviceState{}, err
	}

	var state deviceState
	if err := json.Unmarshal(b, &state); err != nil {
		return deviceState{}, fmt.Errorf("corrupted device state: %w", err)
	}
	return state, nil
}

func saveState(state deviceState) error {
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(home, stateFile), b, 0o600)
}

func removeState() error {
	err := os.Remove(filepath.Join(home, stateFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
