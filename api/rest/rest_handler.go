package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/service"
	"github.com/zlnvch/letterbox/store"
)

const maxJSONBodySize = 1 << 20

type Handler struct {
	Service *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{Service: svc}
}

// RegisterRoutes mounts the login route on r and everything else behind
// token authentication.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/login", h.HandleLogin).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(h.authMiddleware)

	api.HandleFunc("/me", h.HandleGetMe).Methods(http.MethodGet)
	api.HandleFunc("/me/profile", h.HandleUpdateProfile).Methods(http.MethodPut)
	api.HandleFunc("/me/public-key", h.HandlePublishPublicKey).Methods(http.MethodPut)
	api.HandleFunc("/me/heartbeat", h.HandleHeartbeat).Methods(http.MethodPost)

	api.HandleFunc("/invites", h.HandleCreateInvite).Methods(http.MethodPost)
	api.HandleFunc("/invites/{inviteId}", h.HandleGetInvite).Methods(http.MethodGet)
	api.HandleFunc("/invites/{inviteId}/consume", h.HandleConsumeInvite).Methods(http.MethodPost)

	api.HandleFunc("/requests", h.HandleListRequests).Methods(http.MethodGet)
	api.HandleFunc("/requests/{fromId}/accept", h.HandleAcceptRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests/{fromId}/reject", h.HandleRejectRequest).Methods(http.MethodPost)

	api.HandleFunc("/pairings", h.HandleListPairings).Methods(http.MethodGet)
	api.HandleFunc("/pairings/{peerId}", h.HandleGetPairing).Methods(http.MethodGet)
	api.HandleFunc("/pairings/{peerId}", h.HandleRemovePairing).Methods(http.MethodDelete)

	api.HandleFunc("/blocks/{identityId}", h.HandleBlock).Methods(http.MethodPut)
	api.HandleFunc("/blocks/{identityId}", h.HandleUnblock).Methods(http.MethodDelete)

	api.HandleFunc("/letters", h.HandleCreateLetter).Methods(http.MethodPost)
	api.HandleFunc("/letters/inbox", h.HandleListInbox).Methods(http.MethodGet)
	api.HandleFunc("/letters/outbox", h.HandleListOutbox).Methods(http.MethodGet)
	api.HandleFunc("/letters/{letterId}", h.HandleGetLetter).Methods(http.MethodGet)
	api.HandleFunc("/letters/{letterId}", h.HandleDeleteLetter).Methods(http.MethodDelete)
	api.HandleFunc("/letters/{letterId}/open", h.HandleMarkOpened).Methods(http.MethodPost)

	api.HandleFunc("/attachments/letters/{letterId}/{blobId}", h.HandleUploadAttachment).Methods(http.MethodPut)
	api.HandleFunc("/attachments/letters/{letterId}/{blobId}", h.HandleDownloadAttachment).Methods(http.MethodGet)
	api.HandleFunc("/attachments/letters/{letterId}/{blobId}", h.HandleDeleteAttachment).Methods(http.MethodDelete)
}

type contextKey struct{}

var identityKey contextKey

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.getTokenFromAuthHeader(r)
		identity, err := h.Service.AuthenticateToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrItemNotFound) {
				err = service.ErrUnauthorized
			}
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

func identityFrom(r *http.Request) models.Identity {
	identity, _ := r.Context().Value(identityKey).(models.Identity)
	return identity
}

type loginRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
}

type loginResponse struct {
	Identity identityResponse `json:"identity"`
	Token    string           `json:"token"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	identity, token, err := h.Service.Login(r.Context(), req.Provider, req.Code)
	if err != nil {
		logging.Log.WithError(err).Warn("Login failed")
		h.writeError(w, r, service.ErrUnauthorized)
		return
	}

	h.sendResponse(w, http.StatusOK, loginResponse{
		Identity: newIdentityResponse(identity),
		Token:    token,
	})
}

func (h *Handler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	h.sendResponse(w, http.StatusOK, newIdentityResponse(identityFrom(r)))
}

type updateProfileRequest struct {
	DisplayName  string `json:"displayName"`
	DisplayEmoji string `json:"displayEmoji"`
}

func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	identity, err := h.Service.UpdateProfile(r.Context(), identityFrom(r), req.DisplayName, req.DisplayEmoji)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, newIdentityResponse(identity))
}

type publishPublicKeyRequest struct {
	PublicKey []byte `json:"publicKey"`
}

func (h *Handler) HandlePublishPublicKey(w http.ResponseWriter, r *http.Request) {
	var req publishPublicKeyRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	identity, err := h.Service.PublishPublicKey(r.Context(), identityFrom(r), req.PublicKey)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, newIdentityResponse(identity))
}

func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.RecordHeartbeat(r.Context(), identityFrom(r).Id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.sendResponse(w, http.StatusBadRequest, errorResponse{Error: "invalid_request_body"})
		return false
	}
	return true
}

func (h *Handler) sendResponse(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Log.WithError(err).Warn("Failed to encode response")
	}
}

func (h *Handler) getTokenFromAuthHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, prefix)
}
