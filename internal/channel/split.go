package channel

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	markupLinkPattern    = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
	markupHeadingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	markupBoldPattern    = regexp.MustCompile(`(\*\*|__)(.*?)(\*\*|__)`)
	markupInlinePattern  = regexp.MustCompile("[*_`]")
)

// StripMarkup removes rich-text markup the chat platforms render
// literally: markdown links become "text (url)", headings, bold, italic,
// and code markers are dropped.
func StripMarkup(text string) string {
	text = markupLinkPattern.ReplaceAllString(text, "$1 ($2)")
	text = markupHeadingPattern.ReplaceAllString(text, "")
	text = markupBoldPattern.ReplaceAllString(text, "$2")
	text = markupInlinePattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// SplitText splits text into chunks of at most limit bytes, preferring
// paragraph boundaries, then line boundaries, then a hard cut on a valid
// UTF-8 rune boundary. Chunk order matches display order.
func SplitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	current := ""
	flush := func() {
		if trimmed := strings.TrimSpace(current); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		current = ""
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		candidate := paragraph
		if current != "" {
			candidate = current + "\n\n" + paragraph
		}
		if len(candidate) <= limit {
			current = candidate
			continue
		}
		flush()
		if len(paragraph) <= limit {
			current = paragraph
			continue
		}
		for _, piece := range splitLongBlock(paragraph, limit) {
			chunks = append(chunks, piece)
		}
	}
	flush()
	return chunks
}

// splitLongBlock breaks an over-limit paragraph on line boundaries where
// possible, falling back to rune-boundary cuts.
func splitLongBlock(block string, limit int) []string {
	var pieces []string
	current := ""
	for _, line := range strings.Split(block, "\n") {
		candidate := line
		if current != "" {
			candidate = current + "\n" + line
		}
		if len(candidate) <= limit {
			current = candidate
			continue
		}
		if trimmed := strings.TrimSpace(current); trimmed != "" {
			pieces = append(pieces, trimmed)
		}
		current = ""
		for len(line) > limit {
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			pieces = append(pieces, strings.TrimSpace(line[:cut]))
			line = line[cut:]
		}
		current = line
	}
	if trimmed := strings.TrimSpace(current); trimmed != "" {
		pieces = append(pieces, trimmed)
	}
	return pieces
}
