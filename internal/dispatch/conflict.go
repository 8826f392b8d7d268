package dispatch

import (
	"net/http"
	"regexp"
	"strings"
)

// duplicatePatterns must all match the same message for a 409 to count as a
// benign resubmission. The wording is the remote system's and may drift.
var duplicatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)duplicate`),
	regexp.MustCompile(`(?i)already\s+(exists|exist|submitted|been\s+submitted|received|uploaded|processed)`),
}

var messageKeys = []string{"errorMessage", "message", "error", "detail", "title"}

// IsDuplicateConflict reports whether a failure is the remote side saying the
// same content was already submitted. It only fires on 409.
func IsDuplicateConflict(statusCode int, dispatchEntry, parsed map[string]any) bool {
	if statusCode != http.StatusConflict {
		return false
	}
	for _, msg := range candidateMessages(dispatchEntry, parsed) {
		if matchesAll(msg) {
			return true
		}
	}
	return false
}

func matchesAll(msg string) bool {
	for _, re := range duplicatePatterns {
		if !re.MatchString(msg) {
			return false
		}
	}
	return true
}

// candidateMessages collects human-readable messages from the dispatch entry
// first, then from the whole response.
func candidateMessages(sources ...map[string]any) []string {
	var out []string
	for _, src := range sources {
		if src == nil {
			continue
		}
		out = append(out, messagesIn(src)...)
		out = append(out, messagesIn(asMap(src["body"]))...)
		out = append(out, bodyString(src["body"])...)
		if resp := asMap(src["response"]); resp != nil {
			out = append(out, messagesIn(asMap(resp["body"]))...)
			out = append(out, bodyString(resp["body"])...)
		}
	}
	return out
}

func messagesIn(m map[string]any) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, k := range messageKeys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			// {"error": {"message": "..."}}
			for _, kk := range messageKeys {
				if s, ok := v[kk].(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
		}
	}
	return out
}

func bodyString(v any) []string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return []string{strings.TrimSpace(s)}
	}
	return nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
