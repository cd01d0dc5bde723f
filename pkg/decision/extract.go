package decision

import "strings"

// Markers the model is asked to wrap its decision object in. Marker
// extraction is tried first because it survives conversational wrapper
// text better than fence or brace scanning.
const (
	jsonStartMarker = "=====JSON_START====="
	jsonEndMarker   = "=====JSON_END====="
)

// extractPayload pulls the decision JSON out of raw model text. Priority:
// marked envelope, then fenced code block, then the trimmed text as-is.
func extractPayload(raw string) string {
	if payload, ok := extractMarked(raw); ok {
		return payload
	}
	if payload, ok := extractFenced(raw); ok {
		return payload
	}
	return strings.TrimSpace(raw)
}

func extractMarked(raw string) (string, bool) {
	start := strings.Index(raw, jsonStartMarker)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(jsonStartMarker):]
	end := strings.Index(rest, jsonEndMarker)
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func extractFenced(raw string) (string, bool) {
	start := strings.Index(raw, "```")
	if start == -1 {
		return "", false
	}
	rest := raw[start+3:]
	// Skip an optional language tag on the fence line.
	if newline := strings.Index(rest, "\n"); newline != -1 {
		tag := strings.TrimSpace(rest[:newline])
		if !strings.Contains(tag, "{") {
			rest = rest[newline+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
