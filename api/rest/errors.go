package rest

import (
	"errors"
	"net/http"

	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/service"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type errorKind struct {
	err    error
	status int
	code   string
}

// errorKinds is checked in order; the first match wins.
var errorKinds = []errorKind{
	{service.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{service.ErrInvalidCondition, http.StatusBadRequest, "invalid_condition"},
	{service.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{service.ErrCannotAddSelf, http.StatusBadRequest, "cannot_add_self"},
	{service.ErrMissingPublicKey, http.StatusPreconditionFailed, "missing_public_key"},
	{service.ErrLinkExpired, http.StatusGone, "link_expired"},
	{service.ErrInviteNotFound, http.StatusNotFound, "invite_not_found"},
	{service.ErrRequestNotFound, http.StatusNotFound, "request_not_found"},
	{service.ErrLetterNotFound, http.StatusNotFound, "letter_not_found"},
	{service.ErrNotPaired, http.StatusForbidden, "not_paired"},
	{service.ErrAlreadyPaired, http.StatusConflict, "already_paired"},
	{service.ErrRequestAlreadySent, http.StatusConflict, "request_already_sent"},
	{service.ErrTooManyPendingLetters, http.StatusTooManyRequests, "too_many_pending_letters"},
	{service.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
}

func statusFor(err error) (int, string) {
	for _, kind := range errorKinds {
		if errors.Is(err, kind.err) {
			return kind.status, kind.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeError maps a service error to its status code. Unknown errors are
// logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	resp := errorResponse{Error: code}
	if status == http.StatusInternalServerError {
		logging.Log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	} else {
		resp.Message = err.Error()
	}
	h.sendResponse(w, status, resp)
}
