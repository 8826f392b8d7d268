package dispatch

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"creative-dispatch/internal/creative"
)

// verdict is the terminal classification of one worker response.
type verdict struct {
	State     string
	Status    int
	Message   string
	Duplicate bool
	Payload   json.RawMessage
	Headers   map[string]string
}

// classify applies the response rules in order: parse body, resolve business
// status, detect duplicate conflicts, then decide received or error.
func classify(resp *WorkerResponse) verdict {
	body := parseBody(resp.Body)
	entry := asMap(body["dispatch"])
	status := businessStatus(entry, resp.StatusCode)

	dup := IsDuplicateConflict(resp.StatusCode, entry, body) ||
		(status != resp.StatusCode && IsDuplicateConflict(status, entry, body))

	v := verdict{
		State:     creative.StateReceived,
		Status:    status,
		Duplicate: dup,
		Payload:   rawPayload(resp.Body, body),
		Headers:   responseHeaders(entry, resp.Header),
	}
	if dup {
		return v
	}
	switch {
	case resp.StatusCode >= http.StatusBadRequest:
		v.State = creative.StateError
		v.Message = failureMessage(entry, body, resp.StatusCode)
	case status >= http.StatusBadRequest:
		v.State = creative.StateError
		v.Message = failureMessage(entry, body, status)
	case dispatchFailed(entry):
		v.State = creative.StateError
		v.Message = failureMessage(entry, body, status)
	}
	return v
}

// parseBody decodes a JSON object body. Anything else is treated as no
// structured body.
func parseBody(raw []byte) map[string]any {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// businessStatus prefers dispatch.response.status, then dispatch.status, then HTTP.
func businessStatus(entry map[string]any, httpStatus int) int {
	if resp := asMap(entry["response"]); resp != nil {
		if n, ok := statusOf(resp); ok {
			return n
		}
	}
	if n, ok := statusOf(entry); ok {
		return n
	}
	return httpStatus
}

func statusOf(m map[string]any) (int, bool) {
	for _, k := range []string{"status", "statusCode"} {
		if n, ok := toInt(m[k]); ok {
			return n, true
		}
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func dispatchFailed(entry map[string]any) bool {
	s, _ := entry["status"].(string)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "failed":
		return true
	}
	return false
}

func failureMessage(entry, body map[string]any, status int) string {
	if s, ok := entry["errorMessage"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if msgs := candidateMessages(entry, body); len(msgs) > 0 {
		return msgs[0]
	}
	return fmt.Sprintf("Integration dispatch failed with status %d.", status)
}

// rawPayload keeps a JSON body verbatim and wraps anything else as a JSON string.
func rawPayload(raw []byte, parsed map[string]any) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil
	}
	if parsed != nil || json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	b, _ := json.Marshal(trimmed)
	return b
}

// responseHeaders prefers the third-party headers relayed by the worker.
func responseHeaders(entry map[string]any, h http.Header) map[string]string {
	if relayed := asMap(asMap(entry["response"])["headers"]); len(relayed) > 0 {
		out := make(map[string]string, len(relayed))
		for k, v := range relayed {
			out[k] = fmt.Sprint(v)
		}
		return out
	}
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}
