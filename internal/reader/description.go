package reader

import (
	"bytes"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
)

// ExtractDescription converts a scraped description field into plain text.
// Source extractors frequently hand back raw HTML fragments; those are
// parsed with readability, everything else is only whitespace-cleaned.
func ExtractDescription(raw, productURL string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !looksLikeHTML(trimmed) {
		return CleanText(trimmed)
	}

	pageURL, err := url.Parse(strings.TrimSpace(productURL))
	if err != nil || pageURL.Host == "" {
		pageURL = &url.URL{Scheme: "https", Host: "localhost"}
	}

	article, err := readability.FromReader(bytes.NewReader([]byte(wrapFragment(trimmed))), pageURL)
	if err != nil {
		return CleanText(stripTags(trimmed))
	}

	var renderedText bytes.Buffer
	if err := article.RenderText(&renderedText); err != nil {
		return CleanText(stripTags(trimmed))
	}

	text := CleanText(renderedText.String())
	if text == "" {
		text = CleanText(article.Excerpt())
	}
	if text == "" {
		text = CleanText(stripTags(trimmed))
	}
	return text
}

// CleanText normalizes line endings and collapses extra in-line whitespace.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}

func looksLikeHTML(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range []string{"<p", "<div", "<span", "<ul", "<li", "<br", "<table", "<html", "<body"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// wrapFragment makes bare fragments parseable as a document.
func wrapFragment(fragment string) string {
	lower := strings.ToLower(fragment)
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<body") {
		return fragment
	}
	return "<html><body>" + fragment + "</body></html>"
}

func stripTags(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	depth := 0
	for _, r := range text {
		switch {
		case r == '<':
			depth++
			b.WriteRune(' ')
		case r == '>':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
