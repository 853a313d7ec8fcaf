package parser

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n?(.*?)```")

// StripFences returns the body of the first fenced code block in text, or the trimmed text when
// it carries no fence. An unterminated opening fence is dropped as well.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			return strings.TrimSpace(text[nl+1:])
		}
		return ""
	}
	return text
}
