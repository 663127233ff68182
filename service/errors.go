package service

import (
	"errors"

	"github.com/zlnvch/letterbox/models"
)

var (
	ErrLinkExpired           = errors.New("invite link expired")
	ErrCannotAddSelf         = errors.New("cannot pair with yourself")
	ErrAlreadyPaired         = errors.New("already paired")
	ErrRequestAlreadySent    = errors.New("pairing request already sent")
	ErrTooManyPendingLetters = errors.New("too many pending letters to this recipient")
	ErrLetterNotFound        = errors.New("letter not found")

	ErrNotPaired        = errors.New("not paired")
	ErrInviteNotFound   = errors.New("invite link not found")
	ErrRequestNotFound  = errors.New("pairing request not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrMissingPublicKey = errors.New("public key not published")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")

	ErrLastActiveUnavailable = errors.New("last activity unavailable")

	ErrInvalidCondition = models.ErrInvalidCondition
)
