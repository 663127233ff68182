package rest

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/service"
)

type createLetterRequest struct {
	Id             string               `json:"id"`
	RecipientId    string               `json:"recipientId"`
	SealedContent  string               `json:"sealedContent"`
	AttachmentRefs []string             `json:"attachmentRefs"`
	Condition      models.ConditionSpec `json:"condition"`
	Ephemeral      bool                 `json:"ephemeral"`
}

func (h *Handler) HandleCreateLetter(w http.ResponseWriter, r *http.Request) {
	var req createLetterRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	condition, err := req.Condition.Condition()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	me := identityFrom(r)
	letter, err := h.Service.CreateLetter(r.Context(), me, service.CreateLetterParams{
		Id:             req.Id,
		RecipientId:    req.RecipientId,
		SealedContent:  req.SealedContent,
		AttachmentRefs: req.AttachmentRefs,
		Condition:      condition,
		Ephemeral:      req.Ephemeral,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusCreated, newLetterResponse(letter, me.Id))
}

func (h *Handler) HandleListInbox(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)
	letters, err := h.Service.ListInbox(r.Context(), me)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, newLetterResponses(letters, me.Id))
}

func (h *Handler) HandleListOutbox(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)
	letters, err := h.Service.ListOutbox(r.Context(), me)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, newLetterResponses(letters, me.Id))
}

func (h *Handler) HandleGetLetter(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)
	letter, err := h.Service.GetLetter(r.Context(), me, mux.Vars(r)["letterId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, newLetterResponse(letter, me.Id))
}

func (h *Handler) HandleMarkOpened(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)
	letter, err := h.Service.MarkOpened(r.Context(), me, mux.Vars(r)["letterId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, newLetterResponse(letter, me.Id))
}

func (h *Handler) HandleDeleteLetter(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteLetter(r.Context(), identityFrom(r), mux.Vars(r)["letterId"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func attachmentPath(r *http.Request) string {
	vars := mux.Vars(r)
	return "letters/" + vars["letterId"] + "/" + vars["blobId"]
}

func (h *Handler) HandleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxSealedAttachmentSize)
	sealed, err := io.ReadAll(r.Body)
	if err != nil {
		h.sendResponse(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "attachment_too_large"})
		return
	}

	if err := h.Service.UploadAttachment(r.Context(), identityFrom(r), attachmentPath(r), sealed); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) HandleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	sealed, err := h.Service.DownloadAttachment(r.Context(), identityFrom(r), attachmentPath(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(sealed)
}

func (h *Handler) HandleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteAttachment(r.Context(), identityFrom(r), attachmentPath(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
