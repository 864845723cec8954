package completion

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const maskedValue = "***[MASKED]***"

// debugTransport logs every HTTP exchange with credentials masked.
type debugTransport struct {
	base   http.RoundTripper
	logger *log.Logger
}

// NewDebugTransport wraps base (http.DefaultTransport when nil) so that each
// request and response is written to logger at debug level.
func NewDebugTransport(base http.RoundTripper, logger *log.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &debugTransport{base: base, logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (dt *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	reqBody := dt.peekRequest(req)

	resp, err := dt.base.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		dt.logger.Debug("http exchange failed",
			"method", req.Method, "url", req.URL.String(),
			"headers", sanitizeHeaders(req.Header), "body", reqBody,
			"error", err, "duration_ms", elapsed)
		return resp, err
	}

	respBody := dt.peekResponse(resp)
	dt.logger.Debug("http exchange",
		"method", req.Method, "url", req.URL.String(),
		"headers", sanitizeHeaders(req.Header), "body", reqBody,
		"status", resp.StatusCode, "response", respBody, "duration_ms", elapsed)
	return resp, nil
}

// CloseIdleConnections forwards to base so http.Client.CloseIdleConnections
// still reaches the pooled connections.
func (dt *debugTransport) CloseIdleConnections() {
	type closeIdler interface {
		CloseIdleConnections()
	}
	if ci, ok := dt.base.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}

func (dt *debugTransport) peekRequest(req *http.Request) string {
	if req.Body == nil {
		return ""
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		dt.logger.Error("failed to capture request body", "error", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	return compactJSON(data)
}

func (dt *debugTransport) peekResponse(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		dt.logger.Error("failed to capture response body", "error", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return compactJSON(data)
}

func compactJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}

// sanitizeHeaders masks credential-bearing headers, keeping a short prefix.
func sanitizeHeaders(headers http.Header) map[string]string {
	sanitized := make(map[string]string, len(headers))
	for name, values := range headers {
		value := strings.Join(values, ",")
		lower := strings.ToLower(name)
		if strings.Contains(lower, "authorization") ||
			strings.Contains(lower, "api-key") ||
			strings.Contains(lower, "token") {
			if len(value) > 10 {
				value = value[:10] + maskedValue
			} else {
				value = maskedValue
			}
		}
		sanitized[name] = value
	}
	return sanitized
}
