package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/zlnvch/letterbox/api/rest"
	"github.com/zlnvch/letterbox/api/ws"
	"github.com/zlnvch/letterbox/blob"
	"github.com/zlnvch/letterbox/cache"
	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/mq"
	"github.com/zlnvch/letterbox/service"
	"github.com/zlnvch/letterbox/store"
	"github.com/zlnvch/letterbox/worker"
	"golang.org/x/oauth2"
)

const heartbeatFlushMilliseconds = 30000

type LetterboxAPI struct {
	Service     *service.Service
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	shutdownCtx context.Context
}

// NewLetterboxAPI starts the background workers and the websocket hub, all
// bound to shutdownCtx, and builds the service they share.
func NewLetterboxAPI(
	letterStore store.LetterStore,
	jobsQueue mq.MessageQueue,
	letterCache cache.LetterCache,
	blobs blob.BlobStore,
	oauthConfigs map[string]*oauth2.Config,
	jwtSecret []byte,
	sweepInterval time.Duration,
	shutdownCtx context.Context,
) (*LetterboxAPI, error) {
	heartbeatBatcher := worker.NewHeartbeatBatcher(letterStore, heartbeatFlushMilliseconds)
	go heartbeatBatcher.Run(shutdownCtx)

	svc, err := service.NewService(
		letterStore,
		letterCache,
		jobsQueue,
		blobs,
		heartbeatBatcher,
		oauthConfigs,
		jwtSecret,
	)
	if err != nil {
		logging.Log.WithError(err).Error("Failed to create service")
		return &LetterboxAPI{}, err
	}

	jobConsumer := worker.NewJobConsumer(jobsQueue, svc)
	go jobConsumer.Run(shutdownCtx)

	sweeper := worker.NewDeliverySweeper(svc, sweepInterval)
	go sweeper.Run(shutdownCtx)

	wsHub := ws.NewHub(letterCache)
	go wsHub.Run(shutdownCtx)

	return &LetterboxAPI{
		Service:     svc,
		restHandler: rest.NewHandler(svc),
		wsHandler:   ws.NewHandler(svc, wsHub),
		shutdownCtx: shutdownCtx,
	}, nil
}

func (letterboxAPI *LetterboxAPI) RegisterRoutes(router *mux.Router, requiredOrigin string) {
	// Health check endpoint (no auth required)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	letterboxAPI.restHandler.RegisterRoutes(router)

	wsUpgrader := letterboxAPI.wsHandler.NewWsUpgrader(requiredOrigin)
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		letterboxAPI.wsHandler.ServeWS(wsUpgrader, w, r, letterboxAPI.shutdownCtx)
	})
}
