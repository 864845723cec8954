// Package obliquetypes defines the request log event.
package obliquetypes

import "time"

// RequestLogEvent records one completion attempt.
type RequestLogEvent struct {
	RequestKey  string         `json:"request_key"`
	Time        time.Time      `json:"time"`
	Attempt     int            `json:"attempt"`
	Endpoint    string         `json:"endpoint"`
	Model       string         `json:"model"`
	Params      map[string]any `json:"params,omitempty"`
	Prompt      string         `json:"prompt"`
	Status      int            `json:"status,omitempty"`
	RawResponse string         `json:"raw_response,omitempty"`
	Extracted   []string       `json:"extracted,omitempty"`
	Error       string         `json:"error,omitempty"`
}
