package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/roach88/chronod/internal/gateway"
	"github.com/roach88/chronod/internal/trigger"
	"github.com/roach88/chronod/internal/vlc"
	"github.com/roach88/chronod/internal/wire"
)

// ClockInfoItem is one row of a clock info page.
type ClockInfoItem struct {
	Seq int64 `json:"seq"`
	vlc.ClockInfo
}

// MergeLogItem is one row of a merge log page.
type MergeLogItem struct {
	Seq int64 `json:"seq"`
	vlc.MergeLog
}

// MessageItem is one row of a message page.
type MessageItem struct {
	Seq int64 `json:"seq"`
	vlc.ApplicationMessage
}

// Response is the JSON body of every API reply. Only the fields relevant to
// the route are set.
type Response struct {
	// Status is not marshalled; Serve writes it as the HTTP status code.
	// Defaults to 200.
	Status int `json:"-"`

	Error string `json:"error,omitempty"`

	ClockInfo  *vlc.ClockInfo          `json:"clock_info,omitempty"`
	Message    *vlc.ApplicationMessage `json:"message,omitempty"`
	ClockInfos []ClockInfoItem         `json:"clock_infos,omitempty"`
	MergeLogs  []MergeLogItem          `json:"merge_logs,omitempty"`
	Messages   []MessageItem           `json:"messages,omitempty"`
	Next       *int64                  `json:"next,omitempty"`
	Totals     *wire.Status            `json:"totals,omitempty"`
	Stats      *trigger.Stats          `json:"stats,omitempty"`
	Pending    *int                    `json:"pending,omitempty"`
	Halted     *bool                   `json:"halted,omitempty"`
}

// Fail records err on the response and picks the matching status code.
func (resp *Response) Fail(err error) {
	resp.Status = StatusFor(err)
	resp.Error = err.Error()
}

// Serve writes the response as JSON.
func (resp *Response) Serve(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	if resp.Status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", resp.Status, "error", resp.Error)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warn("encode response", "path", r.URL.Path, "error", err)
	}
}

// StatusFor maps an error from the facade or pipeline to an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, trigger.ErrClosed), trigger.IsPersistError(err):
		return http.StatusServiceUnavailable
	case vlc.IsMalformed(err), vlc.IsHashMismatch(err):
		return http.StatusBadRequest
	case vlc.IsOverflow(err):
		return http.StatusConflict
	}

	switch gateway.CodeFor(err) {
	case gateway.CodeNotFound:
		return http.StatusNotFound
	case gateway.CodeInvalid:
		return http.StatusBadRequest
	case gateway.CodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
