// Package obliquetypes defines the error taxonomy shared across packages.
package obliquetypes

import "errors"

var (
	// ErrTransport is a network-level failure; retried after a long pause.
	ErrTransport = errors.New("transport error")
	// ErrRateLimited is a structured rate-limit error; retried after a short pause.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstream is a non-200 status or any other structured API error.
	ErrUpstream = errors.New("upstream error")
	// ErrEmptyCompletion means the response held nothing usable.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrAgentClosed is returned when enqueueing on a shut down agent.
	ErrAgentClosed = errors.New("agent closed")

	// ErrSessionNotFound means no session is registered under the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotOwner means the requester does not own the session.
	ErrNotOwner = errors.New("not the session owner")
	// ErrOutOfRange means a navigation target is outside the history.
	ErrOutOfRange = errors.New("index out of range")
	// ErrUnknownProfile means no model profile exists for the key.
	ErrUnknownProfile = errors.New("unknown model profile")
)
