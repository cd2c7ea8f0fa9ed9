package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/usecase/reading"
)

const baseWidth = 80

var themeStyles = map[reading.Theme][2]string{
	reading.ThemeLight: {"", ""},
	reading.ThemeDark:  {"\x1b[97;40m", "\x1b[0m"},
	reading.ThemeSepia: {"\x1b[38;5;94;48;5;230m", "\x1b[0m"},
}

// lineWidth shrinks the column as the font grows, like a browser reflow.
func lineWidth(fontSize int) int {
	if fontSize <= 0 {
		fontSize = reading.DefaultFontSize
	}
	w := baseWidth * reading.DefaultFontSize / fontSize
	if w < 30 {
		w = 30
	}
	return w
}

func render(out io.Writer, p domain.Page, prefs reading.Preferences) {
	style := themeStyles[prefs.Theme]
	width := lineWidth(prefs.FontSize)

	fmt.Fprint(out, style[0])
	fmt.Fprintf(out, "%s  (page %d/%d)\n%s\n\n", p.Title, p.Page, p.TotalPages, strings.Repeat("=", min(width, utf8.RuneCountInString(p.Title)+20)))
	for _, paragraph := range strings.Split(p.Content, "\n\n") {
		for _, line := range wrap(paragraph, width) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprint(out, style[1])
}

func wrap(paragraph string, width int) []string {
	var lines []string
	for _, raw := range strings.Split(paragraph, "\n") {
		words := strings.Fields(raw)
		if len(words) == 0 {
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if utf8.RuneCountInString(line)+1+utf8.RuneCountInString(w) > width {
				lines = append(lines, line)
				line = w
				continue
			}
			line += " " + w
		}
		lines = append(lines, line)
	}
	return lines
}
