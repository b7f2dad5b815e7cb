package oracle

import (
	"encoding/json"
	"regexp"
	"strings"
)

var lenientJSONPattern = regexp.MustCompile(`(?s)\{.*?\}|\[.*?\]`)

// ExtractJSON returns the first syntactically complete JSON object or array
// embedded in text. Prose and markdown fences around the value are ignored.
func ExtractJSON(text string) (any, bool) {
	for start := 0; start < len(text); {
		offset := strings.IndexAny(text[start:], "{[")
		if offset < 0 {
			break
		}
		begin := start + offset
		if end, ok := matchDelimiters(text, begin); ok {
			var value any
			if err := json.Unmarshal([]byte(text[begin:end+1]), &value); err == nil {
				return value, true
			}
		}
		start = begin + 1
	}

	for _, candidate := range lenientJSONPattern.FindAllString(text, -1) {
		var value any
		if err := json.Unmarshal([]byte(candidate), &value); err == nil {
			return value, true
		}
	}
	return nil, false
}

// ExtractObject is ExtractJSON restricted to objects.
func ExtractObject(text string) (map[string]any, bool) {
	for start := 0; start < len(text); {
		offset := strings.IndexByte(text[start:], '{')
		if offset < 0 {
			return nil, false
		}
		begin := start + offset
		if end, ok := matchDelimiters(text, begin); ok {
			var value map[string]any
			if err := json.Unmarshal([]byte(text[begin:end+1]), &value); err == nil {
				return value, true
			}
		}
		start = begin + 1
	}
	return nil, false
}

// matchDelimiters returns the index of the bracket closing the one at begin.
// Brackets inside JSON strings are skipped.
func matchDelimiters(text string, begin int) (int, bool) {
	stack := make([]byte, 0, 8)
	inString := false
	escaped := false
	for i := begin; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// StripMarkdown removes a surrounding ``` fence, with or without a language tag.
func StripMarkdown(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 && !strings.ContainsAny(trimmed[:newline], " \t") {
		trimmed = trimmed[newline+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
