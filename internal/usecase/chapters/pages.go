package chapters

import "strings"

// DefaultPageRunes is the page budget used when none is configured.
const DefaultPageRunes = 4000

// Paginate splits markdown content into pages of at most limit runes.
// Breaks prefer blank lines between paragraphs, then single newlines, then a hard cut.
// The result always holds at least one page.
func Paginate(content string, limit int) []string {
	if limit <= 0 {
		limit = DefaultPageRunes
	}
	trimmed := strings.TrimSpace(content)
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return []string{trimmed}
	}

	var pages []string
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				pages = append(pages, chunk)
			}
			break
		}

		split := lastBreak(runes, start, end, true)
		if split == -1 {
			split = lastBreak(runes, start, end, false)
		}
		if split == -1 {
			split = end
		}

		if chunk := strings.TrimSpace(string(runes[start:split])); chunk != "" {
			pages = append(pages, chunk)
		}
		start = split
		for start < len(runes) && (runes[start] == '\n' || runes[start] == '\r') {
			start++
		}
	}

	if len(pages) == 0 {
		return []string{trimmed}
	}
	return pages
}

// lastBreak finds the last newline in runes[start:end]; with paragraph set it
// only accepts a newline that ends a blank line.
func lastBreak(runes []rune, start, end int, paragraph bool) int {
	for i := end; i > start+1; i-- {
		if runes[i-1] != '\n' {
			continue
		}
		if !paragraph || runes[i-2] == '\n' {
			return i
		}
	}
	return -1
}
