package delivery

import (
	"encoding/json"
	"unicode/utf8"
)

// TruncateChars cuts a string to at most max runes and reports whether
// anything was cut.
func TruncateChars(input string, max int) (string, bool) {
	if max <= 0 {
		return "", input != ""
	}
	if utf8.RuneCountInString(input) <= max {
		return input, false
	}
	runes := []rune(input)
	return string(runes[:max]), true
}

// TruncateWithNotice truncates and appends a visible marker when content
// was dropped.
func TruncateWithNotice(input string, max int) string {
	truncated, wasTruncated := TruncateChars(input, max)
	if wasTruncated {
		return truncated + " ...(truncated)"
	}
	return truncated
}

// Serialize renders a value as compact JSON. Marshal failures fall back to
// an empty object so size accounting stays defined.
func Serialize(value interface{}) string {
	data, err := json.Marshal(value)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// CharLen returns the serialized size of a value in runes.
func CharLen(value interface{}) int {
	return utf8.RuneCountInString(Serialize(value))
}

// Preview serializes a value and truncates it to max runes, reporting
// whether truncation occurred.
func Preview(value interface{}, max int) (string, bool) {
	return TruncateChars(Serialize(value), max)
}
