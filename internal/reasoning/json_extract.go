package reasoning

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// codeBlockPattern matches markdown code blocks with an optional language tag.
var codeBlockPattern = regexp.MustCompile(`(?s)` + "```" + `(\w*)\s*\n(.+?)\n` + "```")

// ExtractJSON pulls a JSON value out of a model response that may be wrapped
// in prose or markdown. Code blocks tagged json (or untagged) are preferred;
// otherwise the first balanced raw object or array is used.
func ExtractJSON(response string) (string, error) {
	if s, ok := extractFromCodeBlock(response); ok {
		return s, nil
	}
	if s, ok := extractRawJSON(response); ok {
		return s, nil
	}
	return "", fmt.Errorf("no valid JSON value found in response")
}

func extractFromCodeBlock(response string) (string, bool) {
	for _, match := range codeBlockPattern.FindAllStringSubmatch(response, -1) {
		if len(match) < 3 {
			continue
		}
		lang := strings.ToLower(match[1])
		if lang != "" && lang != "json" {
			continue
		}
		content := strings.TrimSpace(match[2])
		if !strings.HasPrefix(content, "{") && !strings.HasPrefix(content, "[") {
			continue
		}
		if json.Valid([]byte(content)) {
			return content, true
		}
	}
	return "", false
}

func extractRawJSON(response string) (string, bool) {
	startObj := strings.Index(response, "{")
	startArr := strings.Index(response, "[")

	start := startObj
	open, closeCh := byte('{'), byte('}')
	if startObj < 0 || (startArr >= 0 && startArr < startObj) {
		start = startArr
		open, closeCh = '[', ']'
	}
	if start < 0 {
		return "", false
	}

	// Scan for the matching close bracket, tolerating strings.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closeCh:
			depth--
			if depth == 0 {
				candidate := response[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}
