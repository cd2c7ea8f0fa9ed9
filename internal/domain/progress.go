package domain

import (
	"math"
	"strings"
	"unicode"
)

// CompletionThreshold is the scroll fraction a chapter must exceed to count as read.
const CompletionThreshold = 0.95

// WordsPerMinute is the reading speed used for read time estimates.
const WordsPerMinute = 200

// IsCompleted reports whether a scroll position marks the chapter as read.
func IsCompleted(scrollPosition float64) bool {
	return scrollPosition > CompletionThreshold
}

// ClampFraction limits v to [0, 1]. NaN becomes 0.
func ClampFraction(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// EstimateReadTime returns the reading time of content in whole minutes, at least 1.
func EstimateReadTime(content string) int {
	words := len(strings.FieldsFunc(content, func(r rune) bool {
		return unicode.IsSpace(r)
	}))
	minutes := int(math.Ceil(float64(words) / WordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}
