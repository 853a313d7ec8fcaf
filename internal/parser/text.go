package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// markupTag matches the formatting tags generators emit. Anything else in angle brackets, such as
// List<String>, is text.
var markupTag = regexp.MustCompile(`(?i)</?(?:a|b|i|u|p|br|em|strong|span|div|ul|ol|li|code|pre|sup|sub|h[1-6])\b[^<>]*>`)

var angleEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// cleanText NFC-normalises s, drops known HTML tags, decodes entities and trims it.
func cleanText(s string) string {
	s = norm.NFC.String(s)
	if strings.ContainsAny(s, "<&") {
		s = stripMarkup(s)
	}
	return strings.TrimSpace(s)
}

// stripMarkup escapes the angle brackets outside known tags, then lets the HTML parser drop the
// tags and decode entities.
func stripMarkup(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range markupTag.FindAllStringIndex(s, -1) {
		b.WriteString(angleEscaper.Replace(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(angleEscaper.Replace(s[last:]))

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(b.String()))
	if err != nil {
		return s
	}
	return doc.Text()
}

// shortText collapses whitespace and bounds the result to limit code points.
func shortText(s string, limit int, placeholder string) string {
	s = strings.Join(strings.Fields(cleanText(s)), " ")
	s = truncate(s, limit)
	if s == "" {
		return placeholder
	}
	return s
}

func longText(s string, placeholder string) string {
	s = cleanText(s)
	if s == "" {
		return placeholder
	}
	return s
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}
