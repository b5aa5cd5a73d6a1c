package protonmail

import "errors"

// Login errors
var (
	ErrAuthElementsUnavailable = errors.New("Could not find the auth input elements.")
	ErrSubmitButtonUnavailable = errors.New("Could not find the authentication credentials submission button.")
	ErrTOTPFieldUnavailable    = errors.New("Could not find the two-factor authentication code field.")
	ErrInboxUnreachable        = errors.New("Could not reach the inbox after submitting the credentials.")
)

// Compose and send errors
var (
	ErrComposeButtonUnavailable = errors.New("Could not find the new message button.")
	ErrComposeWindowUnavailable = errors.New("Could not find the new message window.")
	ErrToFieldUnavailable       = errors.New("Could not find the 'to' address input field element.")
	ErrSubjectFieldUnavailable  = errors.New("Could not find the subject input field element.")
	ErrBodyFieldUnavailable     = errors.New("Could not find the message input field element.")
	ErrSendButtonUnavailable    = errors.New("Could not find the send message button.")

	// ErrDeliveryNotConfirmed is reserved for a per-message delivery check.
	// Send never returns it; see selSentBanner.
	ErrDeliveryNotConfirmed = errors.New("Message submitted, but delivery was unsuccessful.")
)
