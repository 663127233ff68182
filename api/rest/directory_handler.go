package rest

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (h *Handler) HandleCreateInvite(w http.ResponseWriter, r *http.Request) {
	link, err := h.Service.CreateInviteLink(r.Context(), identityFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusCreated, newInviteResponse(link))
}

func (h *Handler) HandleGetInvite(w http.ResponseWriter, r *http.Request) {
	link, err := h.Service.GetInviteLink(r.Context(), mux.Vars(r)["inviteId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, newInviteResponse(link))
}

func (h *Handler) HandleConsumeInvite(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.ConsumeInviteLink(r.Context(), identityFrom(r), mux.Vars(r)["inviteId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusCreated, newRequestResponse(req))
}

func (h *Handler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Service.ListPairingRequests(r.Context(), identityFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]requestResponse, 0, len(requests))
	for _, req := range requests {
		resp = append(resp, newRequestResponse(req))
	}
	h.sendResponse(w, http.StatusOK, resp)
}

func (h *Handler) HandleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	pairing, err := h.Service.AcceptPairingRequest(r.Context(), identityFrom(r), mux.Vars(r)["fromId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, newPairingResponse(pairing))
}

func (h *Handler) HandleRejectRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.RejectPairingRequest(r.Context(), identityFrom(r), mux.Vars(r)["fromId"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListPairings(w http.ResponseWriter, r *http.Request) {
	pairings, err := h.Service.ListPairings(r.Context(), identityFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]pairingResponse, 0, len(pairings))
	for _, p := range pairings {
		resp = append(resp, newPairingResponse(p))
	}
	h.sendResponse(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetPairing(w http.ResponseWriter, r *http.Request) {
	pairing, err := h.Service.GetPairing(r.Context(), identityFrom(r), mux.Vars(r)["peerId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, newPairingResponse(pairing))
}

func (h *Handler) HandleRemovePairing(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.RemoveFriend(r.Context(), identityFrom(r), mux.Vars(r)["peerId"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleBlock(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.BlockIdentity(r.Context(), identityFrom(r), mux.Vars(r)["identityId"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleUnblock(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.UnblockIdentity(r.Context(), identityFrom(r), mux.Vars(r)["identityId"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
