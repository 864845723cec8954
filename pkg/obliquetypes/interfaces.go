// Package obliquetypes defines the collaborator interfaces the generation
// core calls into. Implementations live outside the core: the chat platform
// client, the terminal front end and the request log sink.
package obliquetypes

import (
	"context"
	"time"
)

// RenderSurface displays a session to its owner.
type RenderSurface interface {
	// RenderInitial shows a placeholder and returns the handle that
	// identifies the session from then on.
	RenderInitial(ctx context.Context, params SessionParameters, placeholder string) (string, error)
	// RenderUpdate replaces the visible content of a session.
	RenderUpdate(ctx context.Context, handle string, text string, page, totalPages int) error
}

// HistorySource supplies channel history older than before.
type HistorySource interface {
	FetchHistory(ctx context.Context, before time.Time, limit int) ([]ChatEntry, error)
}

// RequestLogger receives one event per completion attempt. Log must not block.
type RequestLogger interface {
	Log(event RequestLogEvent)
}
