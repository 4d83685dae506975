package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
)

// ExecError is a tool failure the model can recover from. The formatted
// payload is submitted as the tool output with is_error set, so the model
// reads it on the next turn and can adjust the call.
type ExecError struct {
	Type         string `json:"error_type"`
	Message      string `json:"message"`
	StatusCode   int    `json:"status_code,omitempty"`
	URL          string `json:"url,omitempty"`
	ResponseText string `json:"response_text,omitempty"`
	Traceback    string `json:"traceback,omitempty"`
}

func (e *ExecError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Type, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ValidationError reports a malformed argument together with how to fix it.
func ValidationError(format string, args ...any) error {
	return &ExecError{Type: "validation_error", Message: fmt.Sprintf(format, args...)}
}

// HTTPError reports an upstream fetch failure. A 403 gets a steer toward a
// different source rather than a retry of the same URL.
func HTTPError(status int, url, body string) error {
	msg := fmt.Sprintf("the request to %s failed with status %d", url, status)
	if status == 403 {
		msg += ". Access to this page is blocked; do not retry it, pick a different URL instead"
	}
	return &ExecError{Type: "http_error", Message: msg, StatusCode: status, URL: url, ResponseText: body}
}

// PagingError reports an out-of-bounds page request and tells the model to
// stop scrolling.
func PagingError(page, total int) error {
	return &ExecError{
		Type:    "paging_error",
		Message: fmt.Sprintf("page %d does not exist, the document has %d pages (0-indexed). Stop scrolling; you have reached the end", page, total),
	}
}

// FormatErrorPayload renders any handler error as the JSON payload submitted
// to the model. surfaceTraceback additionally attaches the current stack,
// for environments where operators want it echoed to the conversation.
func FormatErrorPayload(err error, surfaceTraceback bool) string {
	var ee *ExecError
	if !errors.As(err, &ee) {
		ee = &ExecError{Type: "tool_execution_error", Message: err.Error()}
	}
	out := *ee
	if surfaceTraceback && out.Traceback == "" {
		out.Traceback = string(debug.Stack())
	}
	raw, merr := json.Marshal(&out)
	if merr != nil {
		return fmt.Sprintf(`{"error_type":"tool_execution_error","message":%q}`, err.Error())
	}
	return string(raw)
}
